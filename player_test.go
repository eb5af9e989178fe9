package main

import (
	"testing"
	"time"
)

func TestGetOrCreateReusesByAddress(t *testing.T) {
	r := NewPlayerRegistry()
	addr := mustAddr(t, "127.0.0.1:5000")

	p1 := r.GetOrCreate(addr, "alice")
	p2 := r.GetOrCreate(addr, "alice-again")
	if p1.ID != p2.ID {
		t.Fatalf("expected same player id for same address, got %d and %d", p1.ID, p2.ID)
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 registered player, got %d", r.Count())
	}
}

func TestGetOrCreateAssignsDistinctIDs(t *testing.T) {
	r := NewPlayerRegistry()
	p1 := r.GetOrCreate(mustAddr(t, "127.0.0.1:5001"), "alice")
	p2 := r.GetOrCreate(mustAddr(t, "127.0.0.1:5002"), "bob")
	if p1.ID == p2.ID {
		t.Fatal("expected distinct player ids for distinct addresses")
	}
}

func TestRemoveClearsBothMaps(t *testing.T) {
	r := NewPlayerRegistry()
	addr := mustAddr(t, "127.0.0.1:5003")
	p := r.GetOrCreate(addr, "alice")
	r.Remove(p.ID)

	if _, ok := r.GetByID(p.ID); ok {
		t.Fatal("expected player to be gone from the id map")
	}
	if _, ok := r.GetByAddr(addr); ok {
		t.Fatal("expected player to be gone from the address map")
	}
}

func TestTimedOut(t *testing.T) {
	r := NewPlayerRegistry()
	p := r.GetOrCreate(mustAddr(t, "127.0.0.1:5004"), "alice")
	p.mu.Lock()
	p.lastSeen = time.Now().Add(-time.Hour)
	p.mu.Unlock()

	timedOut := r.TimedOut(time.Minute)
	if len(timedOut) != 1 || timedOut[0].ID != p.ID {
		t.Fatalf("expected player %d to be timed out, got %+v", p.ID, timedOut)
	}
	if len(r.TimedOut(2 * time.Hour)) != 0 {
		t.Fatal("expected no timed-out players under a longer timeout")
	}
}

func TestPuppetStateCopiesOnSetAndGet(t *testing.T) {
	p := newPlayer(1, "alice", mustAddr(t, "127.0.0.1:5005"))
	if p.PuppetState() != nil {
		t.Fatal("expected nil puppet state before any update")
	}

	state := []byte{1, 2, 3}
	p.SetPuppetState(state)
	state[0] = 0xFF // mutate caller's copy

	got := p.PuppetState()
	if got[0] != 1 {
		t.Fatal("expected SetPuppetState to copy its input")
	}
	got[0] = 0xFF // mutate the returned copy
	if p.PuppetState()[0] != 1 {
		t.Fatal("expected PuppetState to copy its output")
	}
}
