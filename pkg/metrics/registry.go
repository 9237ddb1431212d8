// Package metrics holds the process-wide Prometheus registry and the
// HTTP server that exposes it.
//
// Metrics are opt-in. Until InitRegistry is called IsEnabled reports false
// and every constructor in this package returns nil, which components
// accept as "no metrics" at zero cost.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/dittomds/internal/logger"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the registry with the Go runtime and process
// collectors. Calling it again returns the existing registry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Registerer returns the registry as a prometheus.Registerer. It returns a
// nil interface, not a typed nil, when metrics are disabled.
func Registerer() prometheus.Registerer {
	if r := GetRegistry(); r != nil {
		return r
	}
	return nil
}

// Reset drops the registry. Tests use it to start from a clean slate.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}

// Server serves /metrics for the registry.
type Server struct {
	server       *http.Server
	shutdownOnce sync.Once
}

// NewServer creates a metrics server on port. It returns nil when metrics
// are disabled.
func NewServer(port int) *Server {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until ctx is canceled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.server.Shutdown(ctx)
	})
	return err
}
