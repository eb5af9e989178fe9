package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// GameMetrics exposes lobby/player/reliability gauges on the admin server's
// /metrics endpoint, registered alongside Transport's own prometheus.Collector.
type GameMetrics struct {
	lobbies     *LobbyStore
	players     *PlayerRegistry
	reliability *Reliability
}

func NewGameMetrics(lobbies *LobbyStore, players *PlayerRegistry, reliability *Reliability) *GameMetrics {
	return &GameMetrics{lobbies: lobbies, players: players, reliability: reliability}
}

var (
	lobbiesDesc     = prometheus.NewDesc("lobbycoop_lobbies", "Live lobby count.", nil, nil)
	playersDesc     = prometheus.NewDesc("lobbycoop_players", "Connected player count.", nil, nil)
	pendingAcksDesc = prometheus.NewDesc("lobbycoop_reliability_pending", "Outstanding unacked reliable sends.", nil, nil)
	droppedDesc     = prometheus.NewDesc("lobbycoop_reliability_dropped_total", "Duplicate inbound datagrams dropped.", nil, nil)
	resentDesc      = prometheus.NewDesc("lobbycoop_reliability_resent_total", "Reliable sends retransmitted.", nil, nil)
	abandonedDesc   = prometheus.NewDesc("lobbycoop_reliability_abandoned_total", "Reliable sends abandoned after max attempts.", nil, nil)
	drainedDesc     = prometheus.NewDesc("lobbycoop_reliability_drained_total", "Emergency clear-all drains of the pending table.", nil, nil)
	rejectedTxDesc  = prometheus.NewDesc("lobbycoop_reliability_rejected_total", "Reliable sends rejected at the per-destination cap.", nil, nil)
)

func (m *GameMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- lobbiesDesc
	ch <- playersDesc
	ch <- pendingAcksDesc
	ch <- droppedDesc
	ch <- resentDesc
	ch <- abandonedDesc
	ch <- drainedDesc
	ch <- rejectedTxDesc
}

func (m *GameMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(lobbiesDesc, prometheus.GaugeValue, float64(m.lobbies.Count()))
	ch <- prometheus.MustNewConstMetric(playersDesc, prometheus.GaugeValue, float64(m.players.Count()))
	ch <- prometheus.MustNewConstMetric(pendingAcksDesc, prometheus.GaugeValue, float64(m.reliability.PendingCount()))
	ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(m.reliability.Dropped.Load()))
	ch <- prometheus.MustNewConstMetric(resentDesc, prometheus.CounterValue, float64(m.reliability.Resent.Load()))
	ch <- prometheus.MustNewConstMetric(abandonedDesc, prometheus.CounterValue, float64(m.reliability.Abandoned.Load()))
	ch <- prometheus.MustNewConstMetric(drainedDesc, prometheus.CounterValue, float64(m.reliability.Drained.Load()))
	ch <- prometheus.MustNewConstMetric(rejectedTxDesc, prometheus.CounterValue, float64(m.reliability.RejectedTx.Load()))
}

// RunMetricsLog periodically logs a one-line lobby/player/reliability
// summary while there is anything live to report.
func RunMetricsLog(ctx context.Context, lobbies *LobbyStore, players *PlayerRegistry, reliability *Reliability, logger *logrus.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lc, pc := lobbies.Count(), players.Count()
			if lc > 0 || pc > 0 {
				logger.Infof("[metrics] lobbies=%d players=%d pending_acks=%d",
					lc, pc, reliability.PendingCount())
			}
		}
	}
}
