package replica

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels.
const (
	OpReport = "report"
	OpCommit = "commit"
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics records storage node calls made during fan-out.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates and registers replica metrics.
// If registry is nil, metrics will be created but not registered.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dittomds",
				Subsystem: "replica",
				Name:      "calls_total",
				Help:      "Storage node calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dittomds",
				Subsystem: "replica",
				Name:      "call_duration_seconds",
				Help:      "Latency of storage node calls",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"op"},
		),
	}
	if registry != nil {
		registry.MustRegister(m.calls, m.duration)
	}
	return m
}

// ObserveCall records one storage node call.
func (m *Metrics) ObserveCall(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}
