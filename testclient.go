package main

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"
)

// RunTestClient drives a synthetic UDP client against a running server at
// serverAddr: it handshakes into a lobby, then sends a periodic
// PuppetUpdate until ctx is canceled. A manual smoke-test tool, not part of
// the wire-protocol server itself.
func RunTestClient(ctx context.Context, serverAddr netip.AddrPort, lobbyName, password, username string, logger *logrus.Logger) {
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(serverAddr))
	if err != nil {
		logger.Warnf("[testclient] dial: %v", err)
		return
	}
	defer conn.Close()

	handshake := EncodeHandshake(lobbyName, password, username)
	if _, err := conn.Write(Encode(TagHandshake, handshake)); err != nil {
		logger.Warnf("[testclient] send handshake: %v", err)
		return
	}
	logger.Infof("[testclient] %q connecting to lobby %q", username, lobbyName)

	go drainResponses(ctx, conn, logger)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var tick uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := syntheticPuppetState(tick)
			if _, err := conn.Write(Encode(TagPuppetUpdate, state)); err != nil {
				logger.Warnf("[testclient] send puppet update: %v", err)
				return
			}
			tick++
		}
	}
}

// drainResponses reads and discards server datagrams so the kernel receive
// buffer never backs up, acking reliable kinds so the server's resend sweep
// doesn't keep retransmitting the snapshot at us; a real game client would
// decode the payloads instead.
func drainResponses(ctx context.Context, conn *net.UDPConn, logger *logrus.Logger) {
	buf := make([]byte, maxDatagramSize)
	for {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if n < 1 {
			continue
		}
		if IsReliable(Tag(buf[0])) {
			seq, _, err := SplitReliable(buf[1:n])
			if err != nil {
				continue
			}
			if _, err := conn.Write(Encode(TagReliableAck, EncodeReliableAck(seq))); err != nil {
				logger.Warnf("[testclient] send ack: %v", err)
			}
		}
	}
}

// syntheticPuppetState produces a small, deterministically-varying opaque
// blob standing in for a real puppet-position payload; the server never
// inspects PuppetUpdate bodies.
func syntheticPuppetState(tick uint32) []byte {
	out := make([]byte, 12)
	putBE32(out[0:4], tick)
	putBE32(out[4:8], tick*3)
	putBE32(out[8:12], tick*7)
	return out
}
