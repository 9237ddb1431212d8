package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittomds/internal/logger"
)

// Server runs an HTTP handler with graceful shutdown. The authority serves
// NewRouter with it and datanodes serve their transport router.
type Server struct {
	name         string
	server       *http.Server
	config       APIConfig
	shutdownOnce sync.Once
}

// NewServer creates a new HTTP server for handler.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests. Defaults are applied here so the server works when created
// directly (e.g., in tests).
func NewServer(name string, config APIConfig, handler http.Handler) *Server {
	config.applyDefaults()

	return &Server{
		name:   name,
		config: config,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// Start serves requests and blocks until ctx is cancelled or the listener
// fails. Cancellation triggers a graceful shutdown bounded by the
// configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("%s server failed to listen: %w", s.name, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "server", s.name, "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("HTTP server shutdown signal received", "server", s.name)
		// The cancelled ctx would abort shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("%s server failed: %w", s.name, err)
	}
}

// Stop initiates graceful shutdown. It is safe to call multiple times and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("%s server shutdown error: %w", s.name, err)
			logger.Error("HTTP server shutdown error", "server", s.name, logger.KeyError, err)
		} else {
			logger.Info("HTTP server stopped gracefully", "server", s.name)
		}
	})
	return shutdownErr
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.config.Port
}

// shutdownGrace is the default bound on graceful shutdown.
const shutdownGrace = 5 * time.Second
