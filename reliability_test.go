package main

import (
	"net/netip"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type recordingSender struct {
	mu   sync.Mutex
	sent []struct {
		addr     netip.AddrPort
		datagram []byte
	}
}

func (s *recordingSender) send(addr netip.AddrPort, datagram []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(datagram))
	copy(cp, datagram)
	s.sent = append(s.sent, struct {
		addr     netip.AddrPort
		datagram []byte
	}{addr, cp})
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func mustAddr(t *testing.T, s string) netip.AddrPort {
	t.Helper()
	addr, err := netip.ParseAddrPort(s)
	if err != nil {
		t.Fatalf("parse addr %q: %v", s, err)
	}
	return addr
}

func TestHandleInboundDedup(t *testing.T) {
	sender := &recordingSender{}
	r := NewReliability(sender.send, testLogger())
	addr := mustAddr(t, "127.0.0.1:9000")

	if !r.HandleInbound(addr, TagJiggyCollected, 1) {
		t.Fatal("expected first delivery to be accepted")
	}
	if r.HandleInbound(addr, TagJiggyCollected, 1) {
		t.Fatal("expected duplicate seq to be rejected")
	}
	if !r.HandleInbound(addr, TagJiggyCollected, 2) {
		t.Fatal("expected higher seq to be accepted")
	}
	if r.HandleInbound(addr, TagJiggyCollected, 2) {
		t.Fatal("expected repeat of seq 2 to be rejected")
	}

	// Every inbound call, duplicate or not, must ack.
	if sender.count() != 4 {
		t.Fatalf("expected 4 acks sent, got %d", sender.count())
	}
}

func TestSendReliablePerDestinationCap(t *testing.T) {
	sender := &recordingSender{}
	r := NewReliability(sender.send, testLogger())
	addr := mustAddr(t, "127.0.0.1:9001")

	for i := 0; i < maxPendingPerDest; i++ {
		if !r.SendReliable(addr, TagJiggyCollected, []byte{byte(i)}) {
			t.Fatalf("send %d should have been accepted", i)
		}
	}
	if r.SendReliable(addr, TagJiggyCollected, []byte{0xFF}) {
		t.Fatal("expected send beyond per-destination cap to be rejected")
	}
	if r.RejectedTx.Load() != 1 {
		t.Fatalf("expected RejectedTx=1, got %d", r.RejectedTx.Load())
	}
}

func TestSweepResendsAgedEntries(t *testing.T) {
	sender := &recordingSender{}
	r := NewReliability(sender.send, testLogger())
	addr := mustAddr(t, "127.0.0.1:9002")

	r.SendReliable(addr, TagJiggyCollected, []byte{1})
	initialSends := sender.count()

	r.Sweep(time.Now().Add(resendAge + time.Millisecond))

	if sender.count() <= initialSends {
		t.Fatal("expected sweep to resend the aged pending entry")
	}
	if r.Resent.Load() != 1 {
		t.Fatalf("expected Resent=1, got %d", r.Resent.Load())
	}
}

func TestSweepAbandonsAfterMaxAttempts(t *testing.T) {
	sender := &recordingSender{}
	r := NewReliability(sender.send, testLogger())
	addr := mustAddr(t, "127.0.0.1:9005")

	r.SendReliable(addr, TagJiggyCollected, []byte{1})

	now := time.Now()
	for i := 0; i < maxAttempts+1; i++ {
		now = now.Add(resendAge + time.Millisecond)
		r.Sweep(now)
	}

	if r.PendingCount() != 0 {
		t.Fatalf("expected entry to be abandoned, %d still pending", r.PendingCount())
	}
	if r.Abandoned.Load() != 1 {
		t.Fatalf("expected Abandoned=1, got %d", r.Abandoned.Load())
	}
	if r.Resent.Load() != maxAttempts {
		t.Fatalf("expected exactly %d resends before abandonment, got %d", maxAttempts, r.Resent.Load())
	}
}

func TestSweepEmergencyDrainOnOverflow(t *testing.T) {
	sender := &recordingSender{}
	r := NewReliability(sender.send, testLogger())

	// Spread sends across destinations so the per-destination cap never
	// trips before the global table overflows.
	perDest := maxPendingPerDest
	dests := maxPendingGlobal/perDest + 1
	for d := 0; d < dests; d++ {
		addr := mustAddr(t, "127.0.0.1:"+strconv.Itoa(10000+d))
		for i := 0; i < perDest; i++ {
			r.SendReliable(addr, TagJiggyCollected, []byte{byte(i)})
		}
	}
	if r.PendingCount() <= maxPendingGlobal {
		t.Fatalf("setup: expected pending table above %d, got %d", maxPendingGlobal, r.PendingCount())
	}

	r.Sweep(time.Now())

	if r.PendingCount() != 0 {
		t.Fatalf("expected emergency drain to clear the table, %d remain", r.PendingCount())
	}
	if r.Drained.Load() != 1 {
		t.Fatalf("expected Drained=1, got %d", r.Drained.Load())
	}
}

func TestHandleAckRemovesPending(t *testing.T) {
	sender := &recordingSender{}
	r := NewReliability(sender.send, testLogger())
	addr := mustAddr(t, "127.0.0.1:9003")

	r.SendReliable(addr, TagJiggyCollected, []byte{1})
	if r.PendingCount() != 1 {
		t.Fatalf("expected 1 pending entry, got %d", r.PendingCount())
	}
	r.HandleAck(addr, 1)
	if r.PendingCount() != 0 {
		t.Fatalf("expected 0 pending entries after ack, got %d", r.PendingCount())
	}
}

func TestForgetAddrClearsInboundState(t *testing.T) {
	sender := &recordingSender{}
	r := NewReliability(sender.send, testLogger())
	addr := mustAddr(t, "127.0.0.1:9004")

	r.HandleInbound(addr, TagJiggyCollected, 5)
	r.ForgetAddr(addr)

	// After forgetting, a lower sequence number should be accepted again.
	if !r.HandleInbound(addr, TagJiggyCollected, 1) {
		t.Fatal("expected sequence tracking to reset after ForgetAddr")
	}
}
