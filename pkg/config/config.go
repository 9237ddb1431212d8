package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittomds/pkg/api"
	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/namespace"
)

// Config represents the dittomds configuration.
//
// One file configures both roles of the binary:
//   - the metadata authority (`mds start`): logging, telemetry, metrics,
//     the API server, lease and recovery tuning, the namespace and the
//     storage nodes known at startup
//   - a storage node (`mds datanode`): the Datanode section
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOMDS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the authority's HTTP API
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// MDS tunes leases, recovery and replica fan-out
	MDS mds.Config `mapstructure:"mds" yaml:"mds"`

	// Namespace configures the path namespace
	Namespace namespace.Config `mapstructure:"namespace" yaml:"namespace"`

	// Cluster lists the storage nodes the authority registers at startup
	Cluster ClusterConfig `mapstructure:"cluster" yaml:"cluster"`

	// Datanode configures this process when it runs as a storage node
	Datanode DatanodeConfig `mapstructure:"datanode" yaml:"datanode"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ClusterConfig lists storage nodes known before any of them registers.
type ClusterConfig struct {
	// StorageNodes are dialed over HTTP and registered at startup.
	StorageNodes []StorageNodeConfig `mapstructure:"storage_nodes" validate:"dive" yaml:"storage_nodes"`
}

// StorageNodeConfig names one storage node.
type StorageNodeConfig struct {
	// ID is the node's identity
	ID string `mapstructure:"id" validate:"required" yaml:"id"`

	// URL is the base URL of the node's transport
	// Example: http://dn-0:9870
	URL string `mapstructure:"url" validate:"required,url" yaml:"url"`
}

// DatanodeConfig configures a storage node process.
type DatanodeConfig struct {
	// ID is the node's identity
	// Default: the hostname
	ID string `mapstructure:"id" yaml:"id"`

	// API configures the node's transport server
	// Default port: 9870
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Store selects where replica metadata is kept
	Store ReplicaStoreConfig `mapstructure:"store" yaml:"store"`

	// AuthorityURL is the base URL of the authority's API. When set, the node
	// registers itself and sends block reports there.
	// Example: http://localhost:8080
	AuthorityURL string `mapstructure:"authority_url" validate:"omitempty,url" yaml:"authority_url"`

	// AdvertiseURL is the URL the authority uses to reach this node
	// Default: http://localhost:<api.port>
	AdvertiseURL string `mapstructure:"advertise_url" validate:"omitempty,url" yaml:"advertise_url"`
}

// ReplicaStoreConfig selects the replica metadata store of a storage node.
type ReplicaStoreConfig struct {
	// Type is the store backend
	// Valid values: memory, badger
	// Default: memory
	Type string `mapstructure:"type" validate:"required,oneof=memory badger" yaml:"type"`

	// Path is the badger directory. Required when Type is badger.
	Path string `mapstructure:"path" validate:"required_if=Type badger" yaml:"path,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOMDS_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  mds config init\n\n"+
				"Or specify a custom config file:\n"+
				"  mds <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  mds config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeConfigFile(path, data)
}

func writeConfigFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// DITTOMDS_LOGGING_LEVEL=DEBUG overrides logging.level
	v.SetEnvPrefix("DITTOMDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittomds")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittomds")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
