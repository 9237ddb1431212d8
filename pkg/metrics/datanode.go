package metrics

import "github.com/marmos91/dittomds/pkg/datanode"

// NewDatanodeMetrics creates Prometheus-backed storage node metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called). A nil
// datanode.Metrics is what datanode.WithMetrics expects for "no metrics".
//
//	metrics.InitRegistry()
//	node := datanode.New(id, store, datanode.WithMetrics(metrics.NewDatanodeMetrics()))
func NewDatanodeMetrics() datanode.Metrics {
	if !IsEnabled() || newPrometheusDatanodeMetrics == nil {
		return nil
	}
	return newPrometheusDatanodeMetrics()
}

// newPrometheusDatanodeMetrics is implemented in pkg/metrics/prometheus.
// The indirection keeps client_golang types out of this package's API.
var newPrometheusDatanodeMetrics func() datanode.Metrics

// RegisterDatanodeMetricsConstructor registers the Prometheus storage node
// metrics constructor. Called by pkg/metrics/prometheus during init.
func RegisterDatanodeMetricsConstructor(constructor func() datanode.Metrics) {
	newPrometheusDatanodeMetrics = constructor
}
