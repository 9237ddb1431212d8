package lease

import "time"

// Config contains configuration settings for the lease registry.
type Config struct {
	// SoftLimit is how long a lease stays exclusive without renewal. Past the
	// soft limit another writer that asks for the file triggers recovery.
	// Default: 60s
	SoftLimit time.Duration `mapstructure:"soft_limit" yaml:"soft_limit" validate:"gt=0"`

	// HardLimit is how long a lease survives without renewal before the
	// sweep recovers the file on its own. Must be at least SoftLimit.
	// Default: 1h
	HardLimit time.Duration `mapstructure:"hard_limit" yaml:"hard_limit" validate:"gtefield=SoftLimit"`

	// SweepInterval is how often the background sweep looks for hard-expired
	// leases and orphaned sessions.
	// Default: 2s
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval" validate:"gt=0"`

	// Shards is the number of independent partitions of the lease table.
	// Default: 32
	Shards int `mapstructure:"shards" yaml:"shards" validate:"gte=1"`
}

// DefaultConfig returns a Config with the usual HDFS lease limits.
func DefaultConfig() Config {
	return Config{
		SoftLimit:     60 * time.Second,
		HardLimit:     time.Hour,
		SweepInterval: 2 * time.Second,
		Shards:        32,
	}
}
