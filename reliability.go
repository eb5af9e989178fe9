package main

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Reliability protocol constants.
const (
	resendSweepInterval = 250 * time.Millisecond
	resendAge           = 600 * time.Millisecond
	maxAttempts         = 10
	maxPendingGlobal    = 2048
	maxPendingPerDest   = 256
)

// SendFunc transmits a raw datagram to addr. Implemented by the transport's
// UDP socket wrapper; kept as a function value so the reliability layer has
// no direct dependency on net.UDPConn and can be unit-tested with a fake.
type SendFunc func(addr netip.AddrPort, datagram []byte) error

type inboundKey struct {
	addr netip.AddrPort
	tag  Tag
}

type pendingKey struct {
	addr netip.AddrPort
	seq  uint32
}

type pendingEntry struct {
	tag        Tag
	body       []byte
	lastSendMs int64
	attempts   int
}

// Reliability is the selective at-least-once layer over UDP: per-(addr,tag)
// inbound dedup, outbound sequence assignment, a pending-ack table, and a
// periodic resend sweep with bounded attempts.
type Reliability struct {
	send   SendFunc
	logger *logrus.Logger

	nextSeq atomic.Uint32

	mu        sync.Mutex
	inbound   map[inboundKey]uint32
	pending   map[pendingKey]*pendingEntry
	destCount map[netip.AddrPort]int

	Dropped    atomic.Uint64 // duplicate inbound datagrams dropped after acking
	Resent     atomic.Uint64 // resend attempts issued by the sweep
	Abandoned  atomic.Uint64 // pending entries dropped at the attempts cap
	Drained    atomic.Uint64 // emergency clear-all events
	RejectedTx atomic.Uint64 // reliable sends dropped due to per-dest cap
}

// NewReliability constructs a Reliability layer. send is used both for the
// immediate ack on inbound reliable datagrams and for (re)transmitting
// pending outbound entries.
func NewReliability(send SendFunc, logger *logrus.Logger) *Reliability {
	return &Reliability{
		send:      send,
		logger:    logger,
		inbound:   make(map[inboundKey]uint32),
		pending:   make(map[pendingKey]*pendingEntry),
		destCount: make(map[netip.AddrPort]int),
	}
}

// HandleInbound always acks, then reports whether the payload is newly
// accepted (seq > last seen for this (addr,tag) tuple) or a duplicate to be
// silently dropped by the caller.
func (r *Reliability) HandleInbound(addr netip.AddrPort, tag Tag, seq uint32) (accepted bool) {
	if err := r.send(addr, Encode(TagReliableAck, EncodeReliableAck(seq))); err != nil {
		r.logger.Warnf("[reliability] ack send to %s: %v", addr, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := inboundKey{addr: addr, tag: tag}
	last := r.inbound[key]
	if seq <= last {
		r.Dropped.Add(1)
		return false
	}
	r.inbound[key] = seq
	return true
}

// SendReliable assigns the next global sequence, transmits
// tag + seq_le + body, and tracks it in the pending table for the resend
// sweep. Returns false if the per-destination cap rejected the send.
func (r *Reliability) SendReliable(addr netip.AddrPort, tag Tag, body []byte) bool {
	r.mu.Lock()
	if r.destCount[addr] >= maxPendingPerDest {
		r.mu.Unlock()
		r.RejectedTx.Add(1)
		return false
	}
	seq := r.nextSeq.Add(1)
	k := pendingKey{addr: addr, seq: seq}
	r.pending[k] = &pendingEntry{tag: tag, body: body}
	r.destCount[addr]++
	r.mu.Unlock()

	if err := r.send(addr, EncodeReliable(tag, seq, body)); err != nil {
		r.logger.Warnf("[reliability] send to %s: %v", addr, err)
	}
	return true
}

// HandleAck removes the acknowledged (addr, seq) entry from the pending
// table. Unknown acks are ignored.
func (r *Reliability) HandleAck(addr netip.AddrPort, seq uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(pendingKey{addr: addr, seq: seq})
}

func (r *Reliability) removeLocked(k pendingKey) {
	if _, ok := r.pending[k]; !ok {
		return
	}
	delete(r.pending, k)
	if n := r.destCount[k.addr]; n <= 1 {
		delete(r.destCount, k.addr)
	} else {
		r.destCount[k.addr] = n - 1
	}
}

// Sweep runs one resend pass. It is driven by RunResendLoop's ticker rather
// than a timer owned by this type, so tests can call it deterministically
// without sleeping.
func (r *Reliability) Sweep(now time.Time) {
	r.mu.Lock()
	if len(r.pending) > maxPendingGlobal {
		r.pending = make(map[pendingKey]*pendingEntry)
		r.destCount = make(map[netip.AddrPort]int)
		r.mu.Unlock()
		r.Drained.Add(1)
		r.logger.Warnf("[reliability] pending table exceeded %d entries, emergency drain", maxPendingGlobal)
		return
	}

	type resend struct {
		addr netip.AddrPort
		tag  Tag
		seq  uint32
		body []byte
	}
	var toSend []resend
	nowMs := now.UnixMilli()

	for k, e := range r.pending {
		if e.attempts >= maxAttempts {
			r.removeLocked(k)
			r.Abandoned.Add(1)
			continue
		}
		if e.lastSendMs == 0 || nowMs-e.lastSendMs > resendAge.Milliseconds() {
			e.attempts++
			e.lastSendMs = nowMs
			toSend = append(toSend, resend{addr: k.addr, tag: e.tag, seq: k.seq, body: e.body})
		}
	}
	r.mu.Unlock()

	// Resends happen outside the lock so socket I/O never blocks other
	// lock holders.
	for _, rs := range toSend {
		if err := r.send(rs.addr, EncodeReliable(rs.tag, rs.seq, rs.body)); err != nil {
			r.logger.Warnf("[reliability] resend to %s: %v", rs.addr, err)
		}
		r.Resent.Add(1)
	}
}

// PendingCount returns the current global pending-table size, for metrics.
func (r *Reliability) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// ForgetAddr drops all inbound-dedup state for addr. Called when a player
// times out so a reconnecting client (same address, new handshake) starts
// its per-tag sequence tracking fresh rather than inheriting a stale high
// watermark.
func (r *Reliability) ForgetAddr(addr netip.AddrPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.inbound {
		if k.addr == addr {
			delete(r.inbound, k)
		}
	}
}

// RunResendLoop ticks Sweep every resendSweepInterval until ctx is canceled.
// Runs on its own cadence, independent of the housekeeping loop.
func (r *Reliability) RunResendLoop(ctx context.Context) {
	ticker := time.NewTicker(resendSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
