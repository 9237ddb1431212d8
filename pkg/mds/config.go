package mds

import (
	"github.com/marmos91/dittomds/pkg/mds/lease"
	"github.com/marmos91/dittomds/pkg/mds/recovery"
	"github.com/marmos91/dittomds/pkg/mds/replica"
)

// Config contains the settings of the metadata authority.
type Config struct {
	// Lease controls lease limits and the sweep interval.
	Lease lease.Config `mapstructure:"lease" yaml:"lease"`

	// Recovery controls the recovery queue and retry policy.
	Recovery recovery.Config `mapstructure:"recovery" yaml:"recovery"`

	// Replica controls fan-out to storage nodes.
	Replica replica.Config `mapstructure:"replica" yaml:"replica"`

	// Replication is the number of storage nodes each new block is placed on.
	// Default: 3
	Replication int `mapstructure:"replication" yaml:"replication" validate:"gte=1"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Lease:       lease.DefaultConfig(),
		Recovery:    recovery.DefaultConfig(),
		Replica:     replica.DefaultConfig(),
		Replication: 3,
	}
}
