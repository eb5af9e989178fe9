package main

import (
	"testing"
	"time"

	"lobbycoop/store"
)

func TestEvictTimedOutPlayers(t *testing.T) {
	sender := &recordingSender{}
	lobbies := NewLobbyStore(10, testLogger())
	players := NewPlayerRegistry()
	reliability := NewReliability(sender.send, testLogger())
	cfg := Default()
	cfg.ClientTimeoutSeconds = 1
	d := NewDispatcher(lobbies, players, reliability, sender.send, cfg, testLogger())
	h := NewHousekeeper(lobbies, players, reliability, d, nil, cfg, testLogger())

	lobby, _ := lobbies.GetOrCreate("coop", "")
	addr := mustAddr(t, "127.0.0.1:7000")
	p := players.GetOrCreate(addr, "alice")
	p.SetLobbyName("coop")
	lobby.AddPlayer(p.ID, "alice")
	p.mu.Lock()
	p.lastSeen = time.Now().Add(-time.Hour)
	p.mu.Unlock()

	h.evictTimedOutPlayers(time.Now())

	if _, ok := players.GetByID(p.ID); ok {
		t.Fatal("expected timed-out player to be removed from the registry")
	}
	if lobby.PlayerCount() != 0 {
		t.Fatalf("expected timed-out player to be removed from the lobby, got %d remaining", lobby.PlayerCount())
	}
}

func TestReclaimIdleLobbiesPersistsBeforeRemoving(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(dir, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	sender := &recordingSender{}
	lobbies := NewLobbyStore(10, testLogger())
	players := NewPlayerRegistry()
	reliability := NewReliability(sender.send, testLogger())
	cfg := Default()
	cfg.LobbyIdleTimeoutSeconds = 0
	cfg.EnablePersistence = true
	d := NewDispatcher(lobbies, players, reliability, sender.send, cfg, testLogger())
	h := NewHousekeeper(lobbies, players, reliability, d, st, cfg, testLogger())

	lobby, _ := lobbies.GetOrCreate("idle", "")
	lobby.AddJiggy(1, 2, "alice")
	time.Sleep(2 * time.Millisecond)

	h.reclaimIdleLobbies(time.Now())

	if _, ok := lobbies.Get("idle"); ok {
		t.Fatal("expected the idle lobby to be removed from the in-memory store")
	}
	loaded := st.LoadAll()
	got, ok := loaded["idle"]
	if !ok {
		t.Fatal("expected the idle lobby to have been persisted before removal")
	}
	if len(got.Jiggies) != 1 {
		t.Fatalf("expected persisted snapshot to carry the jiggy, got %+v", got)
	}
}
