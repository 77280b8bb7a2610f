package scheduler

import (
	"testing"
	"time"

	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(&config.SchedulerConfig{
		PollInterval:   5 * time.Second,
		WorkspaceLimit: 7,
		LeaderKey:      "custom:leader",
	})

	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 7, cfg.WorkspaceLimit)
	assert.Equal(t, "custom:leader", cfg.LeaderKey)

	d := DefaultConfig()
	assert.Equal(t, d.BatchSize, cfg.BatchSize)
	assert.Equal(t, d.GlobalRateLimit, cfg.GlobalRateLimit)
	assert.Equal(t, d.LeaderTTL, cfg.LeaderTTL)
	assert.Equal(t, d.RetentionDays, cfg.RetentionDays)
	assert.Zero(t, cfg.MisfireThreshold, "zero disables misfire skipping")
}
