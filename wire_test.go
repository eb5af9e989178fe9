package main

import "testing"

func TestHandshakeRoundTrip(t *testing.T) {
	body := EncodeHandshake("mylobby", "secret", "alice")
	h, err := DecodeHandshake(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.LobbyName != "mylobby" || h.Password != "secret" || h.Username != "alice" {
		t.Fatalf("round trip mismatch: %+v", h)
	}
}

func TestDecodeHandshakeTruncated(t *testing.T) {
	if _, err := DecodeHandshake([]byte{0, 0, 0, 5, 'h', 'i'}); err == nil {
		t.Fatal("expected error decoding truncated handshake")
	}
}

func TestDecodeJiggyCollectedIn(t *testing.T) {
	body := []byte{7, 0, 0, 0, 3, 0, 0, 0}
	in, err := DecodeJiggyCollectedIn(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.JiggyEnumID != 7 || in.CollectedValue != 3 {
		t.Fatalf("unexpected fields: %+v", in)
	}
}

func TestEncodeJiggyCollectedOutWidensBigEndian(t *testing.T) {
	out := EncodeJiggyCollectedOut(1, 5, 7)
	want := []byte{0, 0, 0, 1, 0, 0, 0, 5, 0, 0, 0, 7}
	if len(out) != len(want) {
		t.Fatalf("unexpected length %d", len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, out[i], want[i])
		}
	}
}

func TestEncodeSplitReliable(t *testing.T) {
	datagram := EncodeReliable(TagJiggyCollected, 99, []byte{1, 2, 3})
	tag, body, err := Split(datagram)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if tag != TagJiggyCollected {
		t.Fatalf("expected TagJiggyCollected, got %d", tag)
	}
	seq, rest, err := SplitReliable(body)
	if err != nil {
		t.Fatalf("split reliable: %v", err)
	}
	if seq != 99 {
		t.Fatalf("expected seq 99, got %d", seq)
	}
	if len(rest) != 3 || rest[0] != 1 || rest[2] != 3 {
		t.Fatalf("unexpected rest: %v", rest)
	}
}

func TestSplitEmptyDatagram(t *testing.T) {
	if _, _, err := Split(nil); err == nil {
		t.Fatal("expected error splitting empty datagram")
	}
}

func TestReliableAckRoundTrip(t *testing.T) {
	body := EncodeReliableAck(123456)
	seq, err := DecodeReliableAck(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if seq != 123456 {
		t.Fatalf("expected 123456, got %d", seq)
	}
}

func TestPuppetForwardRoundTrip(t *testing.T) {
	body := EncodePuppetForward(9001, []byte{0xAA, 0xBB})
	id, payload, err := DecodePuppetForward(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id != 9001 {
		t.Fatalf("expected sender id 9001, got %d", id)
	}
	if len(payload) != 2 || payload[0] != 0xAA {
		t.Fatalf("unexpected payload: %v", payload)
	}
}
