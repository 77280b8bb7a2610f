package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/cron"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/dispatcher"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/metrics"
	"github.com/rs/zerolog/log"
)

// TriggerSource is the slice of the trigger store the poller needs.
type TriggerSource interface {
	FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Trigger, error)
	SetNextRun(ctx context.Context, id uuid.UUID, nextRunAt *time.Time) error
}

// Pauser reports whether dispatch should hold off.
type Pauser interface {
	ShouldPause() bool
}

type Config struct {
	BatchSize    int
	PollInterval time.Duration
	// Slots older than MisfireThreshold are skipped rather than fired.
	MisfireThreshold time.Duration
}

// Poller finds due SCHEDULED triggers and hands them to the dispatcher.
// It never advances next_run_at for a dispatched trigger; the fire does.
type Poller struct {
	triggers     TriggerSource
	dispatcher   *dispatcher.Dispatcher
	calculator   *cron.Calculator
	backpressure Pauser
	metrics      *metrics.Collector
	cfg          Config
	now          func() time.Time

	pollCount  atomic.Int64
	lastPollAt atomic.Value // time.Time
}

func NewPoller(
	triggers TriggerSource,
	disp *dispatcher.Dispatcher,
	calc *cron.Calculator,
	collector *metrics.Collector,
	cfg Config,
) *Poller {
	p := &Poller{
		triggers:   triggers,
		dispatcher: disp,
		calculator: calc,
		metrics:    collector,
		cfg:        cfg,
		now:        time.Now,
	}
	p.lastPollAt.Store(time.Time{})
	return p
}

func (p *Poller) SetBackpressure(bp Pauser) {
	p.backpressure = bp
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce runs a single poll cycle.
func (p *Poller) PollOnce(ctx context.Context) {
	if p.backpressure != nil && p.backpressure.ShouldPause() {
		log.Debug().Msg("Skipping poll due to backpressure")
		return
	}

	start := p.now()
	p.pollCount.Add(1)
	p.metrics.IncPolls()
	defer func() {
		p.lastPollAt.Store(p.now())
		p.metrics.RecordPollDuration(p.now().Sub(start))
	}()

	due, err := p.triggers.FindDueScheduled(ctx, start, p.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch due triggers")
		return
	}
	p.metrics.SetDueTriggers(int64(len(due)))
	if len(due) == 0 {
		return
	}

	var dispatched, limited, failed, misfired int64
	for i := range due {
		trigger := &due[i]

		if p.cfg.MisfireThreshold > 0 && start.Sub(*trigger.NextRunAt) > p.cfg.MisfireThreshold {
			if p.skipForward(ctx, trigger, start) {
				misfired++
			}
			continue
		}

		outcome, _ := p.dispatcher.Dispatch(ctx, trigger)
		switch outcome {
		case dispatcher.Dispatched:
			dispatched++
		case dispatcher.RateLimited:
			limited++
		default:
			failed++
		}
	}

	p.metrics.IncDispatched(dispatched)
	p.metrics.IncLimited(limited)
	p.metrics.IncFailed(failed)
	p.metrics.IncMisfired(misfired)

	log.Info().
		Int64("dispatched", dispatched).
		Int64("rate_limited", limited).
		Int64("failed", failed).
		Int64("misfired", misfired).
		Int("due", len(due)).
		Dur("duration", p.now().Sub(start)).
		Msg("Poll completed")
}

// skipForward moves a long-missed trigger to its next slot after now
// without firing the missed ones.
func (p *Poller) skipForward(ctx context.Context, trigger *models.Trigger, now time.Time) bool {
	l := log.With().Str("trigger_id", trigger.ID.String()).Logger()

	cfg, err := services.DecodeTriggerConfig(trigger.Type, trigger.Config)
	if err != nil || cfg.Scheduled == nil {
		l.Error().Err(err).Msg("Failed to decode scheduled trigger config")
		return false
	}

	next, err := p.calculator.NextRun(trigger.ID, cfg.Scheduled.CronExpression, cfg.Scheduled.Timezone, now)
	if err != nil {
		l.Error().Err(err).Str("cron", cfg.Scheduled.CronExpression).Msg("Failed to calculate next run")
		return false
	}

	if err := p.triggers.SetNextRun(ctx, trigger.ID, &next); err != nil {
		l.Error().Err(err).Msg("Failed to reschedule missed trigger")
		return false
	}

	l.Warn().
		Time("missed_run", *trigger.NextRunAt).
		Time("next_run", next).
		Msg("Skipped missed scheduled run")
	return true
}

type Stats struct {
	PollCount  int64
	LastPollAt time.Time
}

func (p *Poller) Stats() Stats {
	return Stats{
		PollCount:  p.pollCount.Load(),
		LastPollAt: p.lastPollAt.Load().(time.Time),
	}
}
