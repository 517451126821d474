package scheduler

import (
	"time"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration

	// EnabledJobs restricts which jobs run on this instance. Empty means
	// all jobs run (monolith mode).
	EnabledJobs []string

	TrialBatchSize int
	CloseBatchSize int

	// CloseCycleAge is how old a usage scope's events must be before its
	// live counter is reclaimed.
	CloseCycleAge time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Minute,
		TrialBatchSize: 100,
		CloseBatchSize: 200,
		CloseCycleAge:  35 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.TrialBatchSize <= 0 {
		c.TrialBatchSize = defaults.TrialBatchSize
	}
	if c.CloseBatchSize <= 0 {
		c.CloseBatchSize = defaults.CloseBatchSize
	}
	if c.CloseCycleAge <= 0 {
		c.CloseCycleAge = defaults.CloseCycleAge
	}
	return c
}
