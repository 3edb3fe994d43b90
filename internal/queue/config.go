package queue

import "time"

// Config holds configuration for the queue and worker pool
type Config struct {
	// PollInterval is how often the pool scans for idle workers and ready jobs
	PollInterval time.Duration

	// Concurrency is the fixed number of worker slots
	Concurrency int

	// MaxAttempts is the default retry budget for new jobs
	MaxAttempts int

	// RetryBaseDelay is the backoff delay before the first retry
	RetryBaseDelay time.Duration

	// RetryMultiplier grows the delay per attempt (exponential backoff)
	RetryMultiplier float64

	// RetryMaxDelay is the backoff ceiling
	RetryMaxDelay time.Duration

	// CleanupMaxAge is how long terminal jobs are kept before Cleanup purges them
	CleanupMaxAge time.Duration

	// CleanupInterval is how often the background cleanup pass runs
	CleanupInterval time.Duration
}

// NewDefaultConfig creates a queue configuration with sensible defaults
func NewDefaultConfig() Config {
	return Config{
		PollInterval:    1 * time.Second,
		Concurrency:     5,
		MaxAttempts:     3,
		RetryBaseDelay:  5 * time.Second,
		RetryMultiplier: 2.0,
		RetryMaxDelay:   5 * time.Minute,
		CleanupMaxAge:   24 * time.Hour,
		CleanupInterval: 1 * time.Hour,
	}
}
