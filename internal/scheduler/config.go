package scheduler

import "time"

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval     time.Duration
	BatchSize       int
	JobTimeout      time.Duration
	SampleRetention time.Duration
	// EnabledJobs empty means all jobs run (monolith mode). A worker
	// split lists only its own jobs here.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		BatchSize:       100,
		JobTimeout:      30 * time.Second,
		SampleRetention: 30 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.SampleRetention <= 0 {
		c.SampleRetention = defaults.SampleRetention
	}
	return c
}
