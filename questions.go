package main

const questionCount = 10

// The ten fixed yes/no questions of a quiz round, in play order.
// Question indices on the wire are 1-based.
var questions = [questionCount]string{
	"Have you ever traveled abroad?",
	"Have you ever traveled alone?",
	"Have you ever missed the plane?",
	"Have you ever done a road trip?",
	"Have we already lost your suitcase?",
	"Do you always make a list before going on a trip?",
	"Have you ever traveled camping?",
	"Have you ever tasted a local food while traveling?",
	"Do you prefer to travel with friends rather than with family?",
	"Have you ever used a translation application while traveling?",
}
