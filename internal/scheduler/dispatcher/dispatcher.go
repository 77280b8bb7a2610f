package dispatcher

import (
	"context"
	"sync/atomic"

	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/pkg/metrics"
	"github.com/linkflow-ai/scriptflow/internal/pkg/queue"
	"github.com/rs/zerolog/log"
)

// Enqueuer hands trigger fires to the worker queue. *queue.Client
// satisfies it; enqueuing the same trigger and time twice is a no-op.
type Enqueuer interface {
	EnqueueTriggerFire(ctx context.Context, payload queue.TriggerFirePayload) error
}

type Outcome int

const (
	Dispatched Outcome = iota
	RateLimited
	Failed
)

type Dispatcher struct {
	queue         Enqueuer
	globalLimiter RateLimiter
	wsLimiter     RateLimiter

	dispatched atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
}

func NewDispatcher(q Enqueuer, globalLimiter, wsLimiter RateLimiter) *Dispatcher {
	return &Dispatcher{
		queue:         q,
		globalLimiter: globalLimiter,
		wsLimiter:     wsLimiter,
	}
}

// Dispatch enqueues one fire of a due trigger at its current NextRunAt.
// Rate-limited triggers stay due and are picked up by a later poll.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger *models.Trigger) (Outcome, error) {
	if trigger.NextRunAt == nil {
		return Failed, nil
	}

	if !d.globalLimiter.Allow(ctx, "global") {
		d.skipped.Add(1)
		metrics.RecordRateLimitHit("scheduler_global")
		return RateLimited, nil
	}
	if !d.wsLimiter.Allow(ctx, trigger.WorkspaceID.String()) {
		d.skipped.Add(1)
		metrics.RecordRateLimitHit("scheduler_workspace")
		return RateLimited, nil
	}

	err := d.queue.EnqueueTriggerFire(ctx, queue.TriggerFirePayload{
		TriggerID:   trigger.ID,
		WorkspaceID: trigger.WorkspaceID,
		ScheduledAt: *trigger.NextRunAt,
	})
	if err != nil {
		d.failed.Add(1)
		log.Error().
			Err(err).
			Str("trigger_id", trigger.ID.String()).
			Str("workflow_id", trigger.WorkflowID.String()).
			Msg("Failed to enqueue scheduled trigger")
		return Failed, err
	}

	d.dispatched.Add(1)
	log.Debug().
		Str("trigger_id", trigger.ID.String()).
		Time("scheduled_at", *trigger.NextRunAt).
		Msg("Scheduled trigger dispatched")

	return Dispatched, nil
}

type Stats struct {
	Dispatched int64
	Skipped    int64
	Failed     int64
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Skipped:    d.skipped.Load(),
		Failed:     d.failed.Load(),
	}
}
