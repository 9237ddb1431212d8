package recovery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for block recovery.
type Metrics struct {
	attempts      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	inflight      prometheus.Gauge
	unrecoverable prometheus.Gauge
	queueDepth    prometheus.Gauge
	dropped       prometheus.Counter
}

// NewMetrics creates and registers recovery metrics.
// If registry is nil, metrics will be created but not registered (useful for testing).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dittomds",
				Subsystem: "recovery",
				Name:      "attempts_total",
				Help:      "Recovery attempts by trigger and final state",
			},
			[]string{"trigger", "state"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dittomds",
				Subsystem: "recovery",
				Name:      "duration_seconds",
				Help:      "Wall time of recovery attempts",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"state"},
		),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dittomds",
			Subsystem: "recovery",
			Name:      "in_flight",
			Help:      "Recovery attempts currently running",
		}),
		unrecoverable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dittomds",
			Subsystem: "recovery",
			Name:      "unrecoverable_files",
			Help:      "Files that exhausted their automatic recovery attempts",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dittomds",
			Subsystem: "recovery",
			Name:      "queue_depth",
			Help:      "Requests waiting in the recovery queue",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dittomds",
			Subsystem: "recovery",
			Name:      "queue_dropped_total",
			Help:      "Requests dropped because the recovery queue was full",
		}),
	}

	if registry != nil {
		registry.MustRegister(m.attempts, m.duration, m.inflight, m.unrecoverable, m.queueDepth, m.dropped)
	}
	return m
}

// ObserveAttempt records a finished attempt.
func (m *Metrics) ObserveAttempt(trigger Trigger, state State, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(string(trigger), state.String()).Inc()
	m.duration.WithLabelValues(state.String()).Observe(d.Seconds())
}

// AddInFlight moves the in-flight gauge by delta.
func (m *Metrics) AddInFlight(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}

// AddUnrecoverable moves the unrecoverable gauge by delta.
func (m *Metrics) AddUnrecoverable(delta float64) {
	if m == nil {
		return
	}
	m.unrecoverable.Add(delta)
}

// SetQueueDepth sets the queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveDropped counts a request dropped on a full queue.
func (m *Metrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
