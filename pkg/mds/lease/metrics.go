package lease

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ============================================================================
// Prometheus Metrics for Leases
// ============================================================================

// Label constants for metrics.
const (
	LabelStatus = "status"
	LabelReason = "reason"
)

// Status constants for acquire attempts.
const (
	StatusGranted = "granted"
	StatusRenewed = "renewed"
	StatusDenied  = "denied"
)

// Reason constants for lease release.
const (
	ReasonExplicit = "explicit"
	ReasonTakeover = "takeover"
)

// Metrics provides Prometheus metrics for the lease registry.
type Metrics struct {
	acquireTotal *prometheus.CounterVec
	releaseTotal *prometheus.CounterVec
	renewTotal   prometheus.Counter
	active       prometheus.Gauge
}

// NewMetrics creates and registers lease metrics.
// If registry is nil, metrics will be created but not registered (useful for testing).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		acquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dittomds",
				Subsystem: "leases",
				Name:      "acquire_total",
				Help:      "Total number of lease acquire attempts",
			},
			[]string{LabelStatus},
		),
		releaseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dittomds",
				Subsystem: "leases",
				Name:      "release_total",
				Help:      "Total number of lease releases",
			},
			[]string{LabelReason},
		),
		renewTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dittomds",
				Subsystem: "leases",
				Name:      "renew_total",
				Help:      "Total number of lease renewals",
			},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dittomds",
				Subsystem: "leases",
				Name:      "active",
				Help:      "Number of leases currently held",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(m.acquireTotal, m.releaseTotal, m.renewTotal, m.active)
	}
	return m
}

// ObserveAcquire records a lease acquire attempt.
func (m *Metrics) ObserveAcquire(status string) {
	if m == nil {
		return
	}
	m.acquireTotal.WithLabelValues(status).Inc()
}

// ObserveRelease records a lease release.
func (m *Metrics) ObserveRelease(reason string) {
	if m == nil {
		return
	}
	m.releaseTotal.WithLabelValues(reason).Inc()
}

// ObserveRenew records a renewal.
func (m *Metrics) ObserveRenew() {
	if m == nil {
		return
	}
	m.renewTotal.Inc()
}

// AddActive moves the active lease gauge by delta.
func (m *Metrics) AddActive(delta float64) {
	if m == nil {
		return
	}
	m.active.Add(delta)
}
