package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
)

func newWebServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()

	cfg := testConfig()
	reg := newRegistry(cfg)
	errs := make(chan error, 64)

	mux := httprouter.New()
	mux.GET("/", serveHomePage(cfg))
	mux.GET("/api/session/:code", serveSessionStatus(cfg, reg))
	mux.GET("/api/questions", serveQuestions(cfg, errs))
	mux.GET("/session/:code/qr", serveSessionQR(cfg))
	mux.GET("/healthz", serveHealthCheck(cfg, errs))
	mux.GET("/version", serveVersion(cfg, errs))
	mux.GET("/robots.txt", serveRobots(cfg, errs))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, reg
}

func TestSessionStatusEndpoint(t *testing.T) {
	srv, reg := newWebServer(t)

	resp, err := http.Get(srv.URL + "/api/session/ABC123")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", resp.StatusCode)
	}

	reg.join(newTestClient("conn-1"), "ABC123", "Alice")

	resp, err = http.Get(srv.URL + "/api/session/ABC123")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var status SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Code != "ABC123" || status.TotalPlayers != 1 || status.CompletedPlayers != 0 {
		t.Errorf("unexpected status: %+v", status)
	}
	if !status.IsActive || status.StartTime.IsZero() {
		t.Errorf("unexpected lifecycle fields: %+v", status)
	}
}

func TestQuestionsEndpoint(t *testing.T) {
	srv, _ := newWebServer(t)

	resp, err := http.Get(srv.URL + "/api/questions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var served []string
	if err := json.NewDecoder(resp.Body).Decode(&served); err != nil {
		t.Fatalf("failed to decode questions: %v", err)
	}
	if len(served) != questionCount {
		t.Errorf("expected %d questions, got %d", questionCount, len(served))
	}
}

func TestSessionQREndpoint(t *testing.T) {
	srv, _ := newWebServer(t)

	resp, err := http.Get(srv.URL + "/session/ABC123/qr")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
}

func TestHealthCheckEndpoint(t *testing.T) {
	srv, _ := newWebServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestVersionEndpoint(t *testing.T) {
	srv, _ := newWebServer(t)

	resp, err := http.Get(srv.URL + "/version")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
