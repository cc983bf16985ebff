package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts orchestrator operations and settlement attempts. A nil *Metrics is a no-op.
type Metrics struct {
	operations  *prometheus.CounterVec
	settlements *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// NewMetrics registers the game server collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solana_game_operations_total",
			Help: "Match operations by name and result.",
		}, []string{"op", "result"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solana_game_settlements_total",
			Help: "Settlement transactions by kind and result.",
		}, []string{"kind", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "solana_game_operation_seconds",
			Help:    "Match operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.operations, m.settlements, m.latency)
	return m
}

func (m *Metrics) observeOperation(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeSettlement(kind string, err error) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(kind, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
