package recovery

import (
	"context"
	"time"

	"github.com/linkflow-ai/scriptflow/internal/scheduler/metrics"
	"github.com/rs/zerolog/log"
)

// PendingRecoverer re-enqueues or abandons executions stuck in PENDING.
// *services.ExecutionService satisfies it.
type PendingRecoverer interface {
	RecoverPending(ctx context.Context, olderThan, abandonBefore time.Time, limit int) (requeued, abandoned int, err error)
}

// StaleRecovery picks up executions that were recorded but never reached a
// worker, e.g. when the process died between insert and enqueue.
type StaleRecovery struct {
	executions PendingRecoverer
	metrics    *metrics.Collector
	threshold  time.Duration
	abandon    time.Duration
	interval   time.Duration
	batchSize  int
	now        func() time.Time
}

func NewStaleRecovery(executions PendingRecoverer, collector *metrics.Collector, threshold time.Duration) *StaleRecovery {
	return &StaleRecovery{
		executions: executions,
		metrics:    collector,
		threshold:  threshold,
		abandon:    24 * time.Hour,
		interval:   5 * time.Minute,
		batchSize:  100,
		now:        time.Now,
	}
}

func (r *StaleRecovery) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run once on start
	r.RecoverOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RecoverOnce(ctx)
		}
	}
}

func (r *StaleRecovery) RecoverOnce(ctx context.Context) {
	now := r.now()
	requeued, abandoned, err := r.executions.RecoverPending(ctx, now.Add(-r.threshold), now.Add(-r.abandon), r.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to recover stale executions")
		return
	}

	if n := requeued + abandoned; n > 0 {
		r.metrics.IncRecovered(int64(n))
		log.Info().
			Int("requeued", requeued).
			Int("abandoned", abandoned).
			Msg("Recovered stale executions")
	}
}
