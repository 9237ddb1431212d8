package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/internal/telemetry"
	"github.com/marmos91/dittomds/pkg/config"
	"github.com/marmos91/dittomds/pkg/metrics"
)

// loadConfig loads the configuration, falling back to defaults when no
// file exists at the default location.
func loadConfig() (*config.Config, error) {
	if GetConfigFile() == "" && !config.DefaultConfigExists() {
		return config.GetDefaultConfig(), nil
	}
	return config.MustLoad(GetConfigFile())
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initObservability starts tracing, profiling and the metrics server for
// role. The returned function undoes all of it.
func initObservability(ctx context.Context, cfg *config.Config, role string) (func(), error) {
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittomds-" + role,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittomds-" + role,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		Role:           role,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		_ = telemetryShutdown(ctx)
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error", logger.KeyError, err)
			}
		}()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if metricsServer != nil {
			_ = metricsServer.Stop(shutdownCtx)
		}
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
