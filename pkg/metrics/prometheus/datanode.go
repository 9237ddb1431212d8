// Package prometheus implements the metrics constructors of pkg/metrics.
// Import it for its side effect:
//
//	import _ "github.com/marmos91/dittomds/pkg/metrics/prometheus"
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittomds/pkg/datanode"
	"github.com/marmos91/dittomds/pkg/metrics"
)

func init() {
	metrics.RegisterDatanodeMetricsConstructor(func() datanode.Metrics {
		if m := newDatanodeMetrics(); m != nil {
			return m
		}
		return nil
	})
}

// datanodeMetrics is the Prometheus implementation of datanode.Metrics.
type datanodeMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// newDatanodeMetrics returns nil if metrics are not enabled.
func newDatanodeMetrics() *datanodeMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &datanodeMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittomds_datanode_operations_total",
				Help: "Total number of replica operations by operation and outcome",
			},
			[]string{"operation", "status"}, // write|report|commit, success|error
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittomds_datanode_operation_duration_seconds",
				Help:    "Duration of replica operations",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"operation"},
		),
	}
}

// ObserveOp records one replica operation.
func (m *datanodeMetrics) ObserveOp(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(op, status).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}
