package api

import "time"

// APIConfig configures an HTTP server: the authority's API or a datanode's
// transport.
//
// When Enabled is false, no API server is started.
type APIConfig struct {
	// Enabled controls whether the API server is started.
	// Default: true (API is enabled by default)
	// Use a pointer to distinguish "not set" from "explicitly false"
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means there is no timeout.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Recovery requests wait for the attempt, so keep it above the replica
	// report and commit timeouts combined.
	// Default: 60s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled. If zero, the value of ReadTimeout is used.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// IsEnabled returns whether the API server is enabled.
// Defaults to true if not explicitly set.
func (c *APIConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true // Default: enabled
	}
	return *c.Enabled
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) ApplyDefaults() { c.applyDefaults() }

// DefaultPort is the authority's API port.
const DefaultPort = 8080

// applyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = shutdownGrace
	}
}
