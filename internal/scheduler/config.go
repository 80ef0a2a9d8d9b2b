package scheduler

import (
	"time"

	"github.com/rankhive/creditd/internal/config"
)

// Config controls the sweep loop. The grant job only acts once per
// account per billing period, so running it far more often than daily
// is safe; the interval just bounds how stale a grant can be.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	EnabledJobs []string
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.SchedulerInterval,
		BatchSize:   cfg.SchedulerBatchSize,
		EnabledJobs: cfg.SchedulerJobs,
	}
}
