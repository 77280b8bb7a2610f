package scheduler

import (
	"time"

	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
)

type Config struct {
	// Polling
	PollInterval     time.Duration
	BatchSize        int
	MisfireThreshold time.Duration

	// Rate Limiting
	GlobalRateLimit int // per minute
	WorkspaceLimit  int // per minute per workspace
	MaxQueueDepth   int64

	// Leader Election
	LeaderKey string
	LeaderTTL time.Duration

	// Recovery
	StaleThreshold  time.Duration
	CleanupInterval time.Duration
	RetentionDays   int

	// Shutdown
	ShutdownTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		PollInterval:     time.Second,
		BatchSize:        100,
		MisfireThreshold: time.Hour,
		GlobalRateLimit:  1000,
		WorkspaceLimit:   100,
		MaxQueueDepth:    10000,
		LeaderKey:        "scheduler:leader",
		LeaderTTL:        30 * time.Second,
		StaleThreshold:   10 * time.Minute,
		CleanupInterval:  time.Hour,
		RetentionDays:    30,
		ShutdownTimeout:  30 * time.Second,
	}
}

// FromConfig maps the scheduler section of the application config, keeping
// defaults for unset values.
func FromConfig(c *config.SchedulerConfig) *Config {
	cfg := &Config{
		PollInterval:     c.PollInterval,
		BatchSize:        c.BatchSize,
		MisfireThreshold: c.MisfireThreshold,
		GlobalRateLimit:  c.GlobalRateLimit,
		WorkspaceLimit:   c.WorkspaceLimit,
		MaxQueueDepth:    c.MaxQueueDepth,
		LeaderKey:        c.LeaderKey,
		LeaderTTL:        c.LeaderTTL,
		StaleThreshold:   c.StaleThreshold,
		CleanupInterval:  c.CleanupInterval,
		RetentionDays:    c.RetentionDays,
		ShutdownTimeout:  c.ShutdownTimeout,
	}
	cfg.Validate()
	return cfg
}

// Validate replaces unset or invalid values with defaults.
func (c *Config) Validate() {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MisfireThreshold < 0 {
		c.MisfireThreshold = 0
	}
	if c.GlobalRateLimit <= 0 {
		c.GlobalRateLimit = d.GlobalRateLimit
	}
	if c.WorkspaceLimit <= 0 {
		c.WorkspaceLimit = d.WorkspaceLimit
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = d.MaxQueueDepth
	}
	if c.LeaderKey == "" {
		c.LeaderKey = d.LeaderKey
	}
	if c.LeaderTTL <= 0 {
		c.LeaderTTL = d.LeaderTTL
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = d.StaleThreshold
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
}
