package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestAPI(t *testing.T) (*APIServer, *LobbyStore, *PlayerRegistry) {
	t.Helper()
	sender := &recordingSender{}
	lobbies := NewLobbyStore(10, testLogger())
	players := NewPlayerRegistry()
	reliability := NewReliability(sender.send, testLogger())
	return NewAPIServer(lobbies, players, reliability, testLogger()), lobbies, players
}

func TestHealthEndpoint(t *testing.T) {
	api, _, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleHealth(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status field: got %q, want %q", resp.Status, "ok")
	}
}

func TestStatsEndpointCounts(t *testing.T) {
	api, lobbies, players := newTestAPI(t)

	lobbies.GetOrCreate("one", "")
	lobbies.GetOrCreate("two", "")
	players.GetOrCreate(mustAddr(t, "127.0.0.1:4000"), "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleStats(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Lobbies != 2 || resp.Players != 1 {
		t.Errorf("counts: got lobbies=%d players=%d, want 2 and 1", resp.Lobbies, resp.Players)
	}
}

func TestLobbiesEndpointListsLobbies(t *testing.T) {
	api, lobbies, _ := newTestAPI(t)

	l, _ := lobbies.GetOrCreate("visible", "")
	l.AddPlayer(1, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/lobbies", nil)
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleLobbies(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp []LobbyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp) != 1 || resp[0].Name != "visible" || resp[0].Players != 1 {
		t.Errorf("unexpected lobby list: %+v", resp)
	}
}
