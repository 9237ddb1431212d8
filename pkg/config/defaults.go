package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/marmos91/dittomds/pkg/api"
	"github.com/marmos91/dittomds/pkg/mds"
)

// DefaultDatanodePort is the transport port of a storage node.
const DefaultDatanodePort = 9870

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API, 8080)
	applyMDSDefaults(&cfg.MDS)
	applyDatanodeDefaults(&cfg.Datanode)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults. The port only matters once
// metrics are enabled.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyAPIDefaults(cfg *api.APIConfig, port int) {
	if cfg.Port == 0 {
		cfg.Port = port
	}
	cfg.ApplyDefaults()
}

// applyMDSDefaults fills every unset tunable from mds.DefaultConfig.
func applyMDSDefaults(cfg *mds.Config) {
	def := mds.DefaultConfig()

	if cfg.Lease.SoftLimit == 0 {
		cfg.Lease.SoftLimit = def.Lease.SoftLimit
	}
	if cfg.Lease.HardLimit == 0 {
		cfg.Lease.HardLimit = def.Lease.HardLimit
	}
	if cfg.Lease.SweepInterval == 0 {
		cfg.Lease.SweepInterval = def.Lease.SweepInterval
	}
	if cfg.Lease.Shards == 0 {
		cfg.Lease.Shards = def.Lease.Shards
	}

	if cfg.Recovery.Workers == 0 {
		cfg.Recovery.Workers = def.Recovery.Workers
	}
	if cfg.Recovery.QueueSize == 0 {
		cfg.Recovery.QueueSize = def.Recovery.QueueSize
	}
	if cfg.Recovery.MaxAttempts == 0 {
		cfg.Recovery.MaxAttempts = def.Recovery.MaxAttempts
	}
	if cfg.Recovery.BackoffInitial == 0 {
		cfg.Recovery.BackoffInitial = def.Recovery.BackoffInitial
	}
	if cfg.Recovery.BackoffMax == 0 {
		cfg.Recovery.BackoffMax = def.Recovery.BackoffMax
	}

	if cfg.Replica.ReportTimeout == 0 {
		cfg.Replica.ReportTimeout = def.Replica.ReportTimeout
	}
	if cfg.Replica.CommitTimeout == 0 {
		cfg.Replica.CommitTimeout = def.Replica.CommitTimeout
	}
	if cfg.Replica.Concurrency == 0 {
		cfg.Replica.Concurrency = def.Replica.Concurrency
	}

	if cfg.Replication == 0 {
		cfg.Replication = def.Replication
	}
}

func applyDatanodeDefaults(cfg *DatanodeConfig) {
	if cfg.ID == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			cfg.ID = host
		} else {
			cfg.ID = "datanode"
		}
	}
	applyAPIDefaults(&cfg.API, DefaultDatanodePort)
	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.AdvertiseURL == "" {
		cfg.AdvertiseURL = fmt.Sprintf("http://localhost:%d", cfg.API.Port)
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Running without a config file
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
