package recovery

import (
	"context"
	"time"

	"github.com/linkflow-ai/scriptflow/internal/scheduler/metrics"
	"github.com/rs/zerolog/log"
)

// FinishedPurger deletes terminal executions and their recorded inputs.
type FinishedPurger interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// Cleanup enforces the execution retention window.
type Cleanup struct {
	executions    FinishedPurger
	metrics       *metrics.Collector
	retentionDays int
	interval      time.Duration
	batchSize     int
	now           func() time.Time
}

func NewCleanup(executions FinishedPurger, collector *metrics.Collector, retentionDays int, interval time.Duration) *Cleanup {
	return &Cleanup{
		executions:    executions,
		metrics:       collector,
		retentionDays: retentionDays,
		interval:      interval,
		batchSize:     500,
		now:           time.Now,
	}
}

func (c *Cleanup) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanupOnce(ctx)
		}
	}
}

// CleanupOnce deletes in batches until nothing older than the retention
// window is left or ctx is done.
func (c *Cleanup) CleanupOnce(ctx context.Context) {
	cutoff := c.now().AddDate(0, 0, -c.retentionDays)

	var total int64
	for ctx.Err() == nil {
		deleted, err := c.executions.DeleteFinishedBefore(ctx, cutoff, c.batchSize)
		if err != nil {
			log.Error().Err(err).Msg("Failed to clean up old executions")
			break
		}
		total += deleted
		if deleted < int64(c.batchSize) {
			break
		}
	}

	if total > 0 {
		c.metrics.IncCleaned(total)
		log.Info().
			Int64("deleted", total).
			Int("retention_days", c.retentionDays).
			Msg("Cleaned up old executions")
	}
}
