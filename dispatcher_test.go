package main

import (
	"encoding/binary"
	"testing"
)

// jiggyBodyLE builds the client→server JiggyCollected body proper (two
// little-endian i32 fields, no reliability header).
func jiggyBodyLE(jiggyEnumID, collectedValue int32) []byte {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], uint32(jiggyEnumID))
	binary.LittleEndian.PutUint32(body[4:8], uint32(collectedValue))
	return body
}

func testDispatcher() (*Dispatcher, *recordingSender, *LobbyStore, *PlayerRegistry) {
	sender := &recordingSender{}
	lobbies := NewLobbyStore(10, testLogger())
	players := NewPlayerRegistry()
	reliability := NewReliability(sender.send, testLogger())
	cfg := Default()
	d := NewDispatcher(lobbies, players, reliability, sender.send, cfg, testLogger())
	return d, sender, lobbies, players
}

func TestDispatchHandshakeCreatesLobbyAndPlayer(t *testing.T) {
	d, _, lobbies, players := testDispatcher()
	addr := mustAddr(t, "127.0.0.1:6000")

	body := EncodeHandshake("lobby1", "", "alice")
	d.Dispatch(addr, Encode(TagHandshake, body))

	lobby, ok := lobbies.Get("lobby1")
	if !ok {
		t.Fatal("expected lobby1 to be created")
	}
	if lobby.PlayerCount() != 1 {
		t.Fatalf("expected 1 player in lobby1, got %d", lobby.PlayerCount())
	}
	if _, ok := players.GetByAddr(addr); !ok {
		t.Fatal("expected a player to be registered for addr")
	}
}

func TestDispatchHandshakeBadPasswordRejected(t *testing.T) {
	d, _, lobbies, players := testDispatcher()
	addr1 := mustAddr(t, "127.0.0.1:6001")
	addr2 := mustAddr(t, "127.0.0.1:6002")

	body1 := EncodeHandshake("secured", "correct", "alice")
	d.Dispatch(addr1, Encode(TagHandshake, body1))

	body2 := EncodeHandshake("secured", "wrong", "bob")
	d.Dispatch(addr2, Encode(TagHandshake, body2))

	lobby, _ := lobbies.Get("secured")
	if lobby.PlayerCount() != 1 {
		t.Fatalf("expected only alice to have joined, got %d players", lobby.PlayerCount())
	}
	if _, ok := players.GetByAddr(addr2); ok {
		t.Fatal("expected bob's bad-password join to not register a player")
	}
}

func TestDispatchUnknownSenderDropped(t *testing.T) {
	d, sender, _, _ := testDispatcher()
	addr := mustAddr(t, "127.0.0.1:6003")

	d.Dispatch(addr, EncodeReliable(TagJiggyCollected, 1, jiggyBodyLE(1, 1)))

	// The reliability layer acks every reliable datagram before the sender is
	// resolved; beyond that ack, a pre-handshake sender gets nothing.
	if sender.count() != 1 {
		t.Fatalf("expected only the ack for a pre-handshake sender, got %d sends", sender.count())
	}
	if got := Tag(sender.sent[0].datagram[0]); got != TagReliableAck {
		t.Fatalf("expected the single send to be a ReliableAck, got tag %d", got)
	}
}

func TestDispatchJiggyCollectedBroadcastsToOthers(t *testing.T) {
	d, sender, _, _ := testDispatcher()
	aliceAddr := mustAddr(t, "127.0.0.1:6004")
	bobAddr := mustAddr(t, "127.0.0.1:6005")

	aliceHandshake := EncodeHandshake("coop", "", "alice")
	d.Dispatch(aliceAddr, Encode(TagHandshake, aliceHandshake))
	bobHandshake := EncodeHandshake("coop", "", "bob")
	d.Dispatch(bobAddr, Encode(TagHandshake, bobHandshake))

	before := sender.count()
	d.Dispatch(aliceAddr, EncodeReliable(TagJiggyCollected, 1, jiggyBodyLE(7, 1)))

	if sender.count() <= before {
		t.Fatal("expected the jiggy pickup to trigger at least one send (broadcast to bob)")
	}

	// A repeat of the same pickup with a fresh sequence is acked but not
	// rebroadcast.
	afterFirst := sender.count()
	d.Dispatch(aliceAddr, EncodeReliable(TagJiggyCollected, 2, jiggyBodyLE(7, 1)))
	if got := sender.count(); got != afterFirst+1 {
		t.Fatalf("expected only the ack for the duplicate pickup, got %d extra sends", got-afterFirst)
	}
}

func TestDispatchHandshakeReplySequence(t *testing.T) {
	d, sender, _, _ := testDispatcher()
	addr := mustAddr(t, "127.0.0.1:6010")

	body := EncodeHandshake("fresh", "", "alice")
	d.Dispatch(addr, Encode(TagHandshake, body))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	// A first join to an empty lobby gets Pong, InitialSaveDataRequest, then
	// the full snapshot: nine NoteSaveData slots and the four savefile blobs.
	want := []Tag{TagPong, TagInitialSaveDataRequest,
		TagNoteSaveData, TagNoteSaveData, TagNoteSaveData, TagNoteSaveData, TagNoteSaveData,
		TagNoteSaveData, TagNoteSaveData, TagNoteSaveData, TagNoteSaveData,
		TagFileProgressFlags, TagAbilityProgress, TagHoneycombScore, TagMumboScore}
	if len(sender.sent) != len(want) {
		t.Fatalf("expected %d sends, got %d", len(want), len(sender.sent))
	}
	for i, w := range want {
		if got := Tag(sender.sent[i].datagram[0]); got != w {
			t.Fatalf("send %d: expected tag %d, got %d", i, w, got)
		}
	}
}

func TestDispatchUnknownTagDropped(t *testing.T) {
	d, sender, _, _ := testDispatcher()
	addr := mustAddr(t, "127.0.0.1:6006")
	before := sender.count()
	d.Dispatch(addr, Encode(Tag(250), []byte{1, 2, 3}))
	if sender.count() != before {
		t.Fatal("expected an unknown tag to produce no sends")
	}
}
