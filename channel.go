package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const maxMessageSize = 4096

// ClientMessage is the single inbound envelope; Type selects the operation.
type ClientMessage struct {
	Type       string         `json:"type"`                 // "join-session", "save-answers", "player-completed", "get-session-stats", "leave-session"
	GameCode   string         `json:"gameCode"`             // session code, any literal string
	PlayerName string         `json:"playerName,omitempty"` // join-session only
	Answers    map[int]string `json:"answers,omitempty"`    // question index -> "yes"|"no"
}

// PlayerInfo is the per-player entry carried by membership broadcasts.
type PlayerInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsCompleted bool      `json:"isCompleted"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// PlayerJoinedMessage is broadcast to the whole session on every join.
type PlayerJoinedMessage struct {
	Type         string       `json:"type"` // "player-joined"
	PlayerID     string       `json:"playerId"`
	PlayerName   string       `json:"playerName"`
	TotalPlayers int          `json:"totalPlayers"`
	Players      []PlayerInfo `json:"players"`
}

// PlayerLeftMessage is broadcast to the remaining members after a leave or
// disconnect.
type PlayerLeftMessage struct {
	Type         string       `json:"type"` // "player-left"
	PlayerID     string       `json:"playerId"`
	PlayerName   string       `json:"playerName"`
	TotalPlayers int          `json:"totalPlayers"`
	Players      []PlayerInfo `json:"players"`
}

// PlayerUpdatedMessage tells the other members a player saved answers,
// without revealing their content.
type PlayerUpdatedMessage struct {
	Type       string `json:"type"` // "player-updated"
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	HasAnswers bool   `json:"hasAnswers"`
}

// PlayerFinishedMessage is broadcast to the whole session when a player
// completes the quiz.
type PlayerFinishedMessage struct {
	Type             string `json:"type"` // "player-finished"
	PlayerID         string `json:"playerId"`
	PlayerName       string `json:"playerName"`
	CompletedPlayers int    `json:"completedPlayers"`
	TotalPlayers     int    `json:"totalPlayers"`
	AllCompleted     bool   `json:"allCompleted"`
}

// QuestionStats is the per-question aggregate within collective results.
type QuestionStats struct {
	Question       string `json:"question"`
	YesCount       int    `json:"yesCount"`
	NoCount        int    `json:"noCount"`
	TotalResponses int    `json:"totalResponses"`
	TotalPlayers   int    `json:"totalPlayers"`
	YesPercentage  int    `json:"yesPercentage"`
	NoPercentage   int    `json:"noPercentage"`
}

// PlayerAnswers pairs a completed player with its final answer map.
type PlayerAnswers struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Answers map[int]string `json:"answers"`
}

// CollectiveResultsMessage is broadcast to the whole session exactly once
// per round, after the last player completes. TotalPlayers counts completed
// players only.
type CollectiveResultsMessage struct {
	Type            string                `json:"type"` // "collective-results"
	GameCode        string                `json:"gameCode"`
	TotalPlayers    int                   `json:"totalPlayers"`
	CollectiveStats map[int]QuestionStats `json:"collectiveStats"`
	Players         []PlayerAnswers       `json:"players"`
}

// SessionStatsMessage is a unicast snapshot, sent on join and on request.
type SessionStatsMessage struct {
	Type             string       `json:"type"` // "session-stats"
	GameCode         string       `json:"gameCode"`
	TotalPlayers     int          `json:"totalPlayers"`
	CompletedPlayers int          `json:"completedPlayers"`
	IsActive         bool         `json:"isActive"`
	Players          []PlayerInfo `json:"players"`
}

// Client is one channel connection. It has no session membership until its
// first join-session message.
type Client struct {
	conn *websocket.Conn
	send chan any
	id   string
}

// serveQuizChannel upgrades the connection and runs the client loops. Each
// connection gets a fresh uuid as its connection id.
func serveQuizChannel(cfg *Config, reg *Registry) httprouter.Handle {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.originAllowed(r.Header.Get("Origin"))
		},
	}

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "QUIZ: Upgrade failed for %s: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 32),
			id:   uuid.NewString(),
		}

		logf(cfg, "QUIZ: Connection %s opened from %s", client.id, realIP(r))

		go client.writePump()
		client.readPump(cfg, reg)

		logf(cfg, "QUIZ: Connection %s closed", client.id)
	}
}

// readPump dispatches inbound messages into the registry. A message that
// fails to decode is dropped on its own; the connection stays open. When the
// connection dies the registry cleanup runs once, whether or not an explicit
// leave-session already happened.
func (c *Client) readPump(cfg *Config, reg *Registry) {
	defer func() {
		reg.disconnect(c)
		close(c.send)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logf(cfg, "QUIZ: Rejected malformed message from %s: %v", c.id, err)
			continue
		}

		switch msg.Type {
		case "join-session":
			reg.join(c, msg.GameCode, msg.PlayerName)
		case "save-answers":
			reg.saveAnswers(c, msg.GameCode, msg.Answers)
		case "player-completed":
			reg.complete(c, msg.GameCode, msg.Answers)
		case "get-session-stats":
			reg.sessionStats(c, msg.GameCode)
		case "leave-session":
			reg.leave(c, msg.GameCode)
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
