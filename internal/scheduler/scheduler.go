package scheduler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linkflow-ai/scriptflow/internal/pkg/metrics"
	"github.com/linkflow-ai/scriptflow/internal/pkg/queue"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/cron"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/dispatcher"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/leader"
	schedmetrics "github.com/linkflow-ai/scriptflow/internal/scheduler/metrics"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/poller"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/recovery"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Scheduler fires SCHEDULED triggers. Any number of instances may run; the
// one holding the leader lock polls, recovers and cleans up.
type Scheduler struct {
	config *Config

	// Components
	election     *leader.Election
	poller       *poller.Poller
	dispatcher   *dispatcher.Dispatcher
	staleRecov   *recovery.StaleRecovery
	cleanup      *recovery.Cleanup
	backpressure *dispatcher.BackpressureMonitor
	metrics      *schedmetrics.Collector

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Redis is what the scheduler needs from the shared redis client: the
// leader lock and the sliding-window counters.
type Redis interface {
	leader.Locker
	redis.Cmdable
}

type Dependencies struct {
	Triggers   poller.TriggerSource
	Executions recovery.PendingRecoverer
	Purger     recovery.FinishedPurger
	Redis      Redis
	Queue      dispatcher.Enqueuer
	Inspector  dispatcher.QueueInspector
}

func New(cfg *Config, deps *Dependencies) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Validate()

	ctx, cancel := context.WithCancel(context.Background())

	collector := schedmetrics.NewCollector()
	election := leader.NewElection(deps.Redis, cfg.LeaderKey, cfg.LeaderTTL)

	globalLimiter := dispatcher.NewSlidingWindowLimiter(
		deps.Redis, "scheduler:ratelimit:global", cfg.GlobalRateLimit, time.Minute,
	)
	wsLimiter := dispatcher.NewSlidingWindowLimiter(
		deps.Redis, "scheduler:ratelimit:workspace", cfg.WorkspaceLimit, time.Minute,
	)
	disp := dispatcher.NewDispatcher(deps.Queue, globalLimiter, wsLimiter)

	poll := poller.NewPoller(deps.Triggers, disp, cron.NewCalculator(), collector, poller.Config{
		BatchSize:        cfg.BatchSize,
		PollInterval:     cfg.PollInterval,
		MisfireThreshold: cfg.MisfireThreshold,
	})

	bp := dispatcher.NewBackpressureMonitor(deps.Inspector, queue.QueueDefault, cfg.MaxQueueDepth)
	poll.SetBackpressure(bp)

	return &Scheduler{
		config:       cfg,
		election:     election,
		poller:       poll,
		dispatcher:   disp,
		staleRecov:   recovery.NewStaleRecovery(deps.Executions, collector, cfg.StaleThreshold),
		cleanup:      recovery.NewCleanup(deps.Purger, collector, cfg.RetentionDays, cfg.CleanupInterval),
		backpressure: bp,
		metrics:      collector,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (s *Scheduler) Start() error {
	log.Info().
		Str("leader_key", s.config.LeaderKey).
		Dur("poll_interval", s.config.PollInterval).
		Int("batch_size", s.config.BatchSize).
		Msg("Starting scheduler")

	// Start leader election loop
	s.wg.Add(1)
	go s.leaderLoop()

	// Start backpressure monitor
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.backpressure.Start(s.ctx)
	}()

	return nil
}

func (s *Scheduler) Stop() error {
	log.Info().Msg("Stopping scheduler...")

	s.cancel()

	// Wait with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Scheduler stopped gracefully")
	case <-time.After(s.config.ShutdownTimeout):
		log.Warn().Msg("Scheduler shutdown timed out")
	}

	// Release leadership
	s.election.Release(context.Background())

	return nil
}

func (s *Scheduler) leaderLoop() {
	defer s.wg.Done()

	extendTicker := time.NewTicker(s.config.LeaderTTL / 3)
	defer extendTicker.Stop()

	acquireTicker := time.NewTicker(5 * time.Second)
	defer acquireTicker.Stop()

	var pollerCancel context.CancelFunc
	var recoveryCancel context.CancelFunc
	var cleanupCancel context.CancelFunc

	stopWorkers := func() {
		if pollerCancel != nil {
			pollerCancel()
			pollerCancel = nil
		}
		if recoveryCancel != nil {
			recoveryCancel()
			recoveryCancel = nil
		}
		if cleanupCancel != nil {
			cleanupCancel()
			cleanupCancel = nil
		}
	}

	startWorkers := func() {
		var pollerCtx, recoveryCtx, cleanupCtx context.Context

		pollerCtx, pollerCancel = context.WithCancel(s.ctx)
		recoveryCtx, recoveryCancel = context.WithCancel(s.ctx)
		cleanupCtx, cleanupCancel = context.WithCancel(s.ctx)

		s.wg.Add(3)
		go func() {
			defer s.wg.Done()
			s.poller.Run(pollerCtx)
		}()
		go func() {
			defer s.wg.Done()
			s.staleRecov.Run(recoveryCtx)
		}()
		go func() {
			defer s.wg.Done()
			s.cleanup.Run(cleanupCtx)
		}()
	}

	for {
		select {
		case <-s.ctx.Done():
			stopWorkers()
			return

		case <-acquireTicker.C:
			if !s.election.IsLeader() {
				acquired, err := s.election.TryAcquire(s.ctx)
				if err != nil {
					log.Error().Err(err).Msg("Failed to acquire leadership")
					continue
				}
				if acquired {
					s.metrics.SetLeader(true)
					startWorkers()
				}
			}

		case <-extendTicker.C:
			if s.election.IsLeader() {
				if !s.election.Extend(s.ctx) {
					log.Warn().Msg("Lost leadership")
					s.metrics.SetLeader(false)
					stopWorkers()
				}
			}
		}
	}
}

func (s *Scheduler) IsLeader() bool {
	return s.election.IsLeader()
}

func (s *Scheduler) Metrics() *schedmetrics.Collector {
	return s.metrics
}

// Router serves liveness, scheduler stats and prometheus metrics.
func (s *Scheduler) Router() http.Handler {
	exporter := schedmetrics.NewExporter(s.metrics)

	r := chi.NewRouter()
	r.Get("/health", exporter.Health())
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.SetQueueDepth(s.backpressure.QueueDepth())
		exporter.Stats()(w, r)
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}
