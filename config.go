package router

import "time"

// Config holds configuration for the Router.
type Config struct {
	// DefaultOfferTTL is the offer expiration applied when a distribution
	// policy does not set one of its own.
	DefaultOfferTTL time.Duration

	// SweepInterval is how often the dispatcher runs a safety-net sweep
	// over all queues in addition to event-driven passes.
	SweepInterval time.Duration

	// JanitorSchedule is the cron expression driving background
	// maintenance (closed-job purge, full reconciliation).
	JanitorSchedule string

	// ClosedJobRetention is how long closed and cancelled jobs are kept
	// before the janitor purges them. Zero disables purging.
	ClosedJobRetention time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultOfferTTL:    2 * time.Minute,
		SweepInterval:      30 * time.Second,
		JanitorSchedule:    "@every 5m",
		ClosedJobRetention: 24 * time.Hour,
		ShutdownTimeout:    30 * time.Second,
	}
}
