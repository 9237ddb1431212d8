package replica

import "time"

// Config controls fan-out to storage nodes.
type Config struct {
	// ReportTimeout bounds a single ReportReplica call.
	// Default: 5s
	ReportTimeout time.Duration `mapstructure:"report_timeout" yaml:"report_timeout" validate:"gt=0"`

	// CommitTimeout bounds a single CommitReplica call.
	// Default: 10s
	CommitTimeout time.Duration `mapstructure:"commit_timeout" yaml:"commit_timeout" validate:"gt=0"`

	// Concurrency is the maximum number of in-flight calls per fan-out.
	// Default: 8
	Concurrency int `mapstructure:"fanout_concurrency" yaml:"fanout_concurrency" validate:"gte=1"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReportTimeout: 5 * time.Second,
		CommitTimeout: 10 * time.Second,
		Concurrency:   8,
	}
}
