package main

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// maxDatagramSize is the receive buffer size: any larger datagram is
// truncated at the OS layer and likely fails to decode.
const maxDatagramSize = 2048

// Transport owns the raw UDP socket, with atomic packet/byte counters
// exposed as Prometheus metrics.
type Transport struct {
	conn   *net.UDPConn
	logger *logrus.Logger

	packetsIn  atomic.Uint64
	bytesIn    atomic.Uint64
	packetsOut atomic.Uint64
	bytesOut   atomic.Uint64
}

// NewTransport binds a UDP socket at addr.
func NewTransport(addr netip.AddrPort, logger *logrus.Logger) (*Transport, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, err
	}
	return &Transport{conn: conn, logger: logger}, nil
}

// LocalAddr returns the socket's bound address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// Serve reads datagrams until ctx is canceled, handing each to handle.
// Handlers are expected to do their own minimal-window locking and return
// quickly so the receive loop keeps draining the socket.
func (t *Transport) Serve(ctx context.Context, handle func(src netip.AddrPort, datagram []byte)) error {
	go func() {
		<-ctx.Done()
		t.conn.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.logger.Warnf("[transport] read: %v", err)
			continue
		}
		t.packetsIn.Add(1)
		t.bytesIn.Add(uint64(n))

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		handle(src, datagram)
	}
}

// Send transmits a single datagram to addr. Matches the SendFunc shape the
// reliability layer and dispatcher expect.
func (t *Transport) Send(addr netip.AddrPort, datagram []byte) error {
	n, _, err := t.conn.WriteMsgUDPAddrPort(datagram, nil, addr)
	if err != nil {
		return err
	}
	t.packetsOut.Add(1)
	t.bytesOut.Add(uint64(n))
	return nil
}

// Describe and Collect implement prometheus.Collector, exposing the raw
// socket counters on the admin /metrics endpoint alongside the reliability
// and lobby/player gauges registered in metrics.go.
func (t *Transport) Describe(ch chan<- *prometheus.Desc) {
	ch <- transportPacketsInDesc
	ch <- transportBytesInDesc
	ch <- transportPacketsOutDesc
	ch <- transportBytesOutDesc
}

func (t *Transport) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(transportPacketsInDesc, prometheus.CounterValue, float64(t.packetsIn.Load()))
	ch <- prometheus.MustNewConstMetric(transportBytesInDesc, prometheus.CounterValue, float64(t.bytesIn.Load()))
	ch <- prometheus.MustNewConstMetric(transportPacketsOutDesc, prometheus.CounterValue, float64(t.packetsOut.Load()))
	ch <- prometheus.MustNewConstMetric(transportBytesOutDesc, prometheus.CounterValue, float64(t.bytesOut.Load()))
}

var (
	transportPacketsInDesc  = prometheus.NewDesc("lobbycoop_packets_in_total", "UDP datagrams received.", nil, nil)
	transportBytesInDesc    = prometheus.NewDesc("lobbycoop_bytes_in_total", "UDP bytes received.", nil, nil)
	transportPacketsOutDesc = prometheus.NewDesc("lobbycoop_packets_out_total", "UDP datagrams sent.", nil, nil)
	transportBytesOutDesc   = prometheus.NewDesc("lobbycoop_bytes_out_total", "UDP bytes sent.", nil, nil)
)
