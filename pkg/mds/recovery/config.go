package recovery

import "time"

// Config controls the background recovery machinery.
type Config struct {
	// Workers is the number of goroutines draining the recovery queue.
	// Default: 4
	Workers int `mapstructure:"workers" yaml:"workers" validate:"gte=1"`

	// QueueSize is the capacity of the recovery queue. Requests beyond it
	// are dropped and picked up again by the next sweep.
	// Default: 1024
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" validate:"gte=1"`

	// MaxAttempts is the number of failed attempts after which a file is
	// reported as permanently unrecoverable and no longer retried by the
	// sweep. Administrative requests still run.
	// Default: 10
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts" validate:"gte=1"`

	// BackoffInitial is the delay before the first retry of a failed file.
	// Default: 1s
	BackoffInitial time.Duration `mapstructure:"backoff_initial" yaml:"backoff_initial" validate:"gt=0"`

	// BackoffMax caps the delay between retries.
	// Default: 5m
	BackoffMax time.Duration `mapstructure:"backoff_max" yaml:"backoff_max" validate:"gtefield=BackoffInitial"`

	// OrphanGrace is how long an orphaned session waits for its writer
	// before the sweep recovers it.
	// Default: 0s
	OrphanGrace time.Duration `mapstructure:"orphan_grace" yaml:"orphan_grace" validate:"gte=0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		QueueSize:      1024,
		MaxAttempts:    10,
		BackoffInitial: time.Second,
		BackoffMax:     5 * time.Minute,
		OrphanGrace:    0,
	}
}
