package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
	"github.com/linkflow-ai/scriptflow/internal/pkg/logger"
	"github.com/linkflow-ai/scriptflow/internal/pkg/metrics"
	"github.com/linkflow-ai/scriptflow/internal/pkg/queue"
	"github.com/linkflow-ai/scriptflow/internal/worker/processor"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Runner executes one execution to completion.
type Runner interface {
	Run(ctx context.Context, executionID uuid.UUID) error
}

// ScheduledFirer fires a due SCHEDULED trigger.
type ScheduledFirer interface {
	FireScheduled(ctx context.Context, triggerID uuid.UUID, scheduledAt time.Time) (*models.Execution, error)
}

// Deferrer puts an execution that could not be admitted back on the queue.
type Deferrer interface {
	DeferWorkflowExecution(ctx context.Context, payload queue.WorkflowExecutionPayload, delay time.Duration) error
}

// Listener consumes cancellation requests until its context is done.
type Listener interface {
	Listen(ctx context.Context)
}

type Worker struct {
	cfg           *config.Config
	server        *queue.Server
	runner        Runner
	triggers      ScheduledFirer
	cancellations Listener
	deferrer      Deferrer
	deferDelay    time.Duration
	metricsServer *http.Server
}

func New(cfg *config.Config, runner Runner, triggers ScheduledFirer, cancellations Listener, deferrer Deferrer) *Worker {
	admissionDelay := cfg.Engine.AdmissionRetryDelay
	server := queue.NewServer(&cfg.Redis, queue.ServerOptions{
		Concurrency: cfg.Engine.Concurrency,
		RetryDelay: func(n int, err error, task *asynq.Task) (time.Duration, bool) {
			if errors.Is(err, processor.ErrAdmissionDeferred) {
				return admissionDelay, true
			}
			return 0, false
		},
		Expected: func(err error) bool {
			return errors.Is(err, processor.ErrAdmissionDeferred)
		},
	})

	w := &Worker{
		cfg:           cfg,
		server:        server,
		runner:        runner,
		triggers:      triggers,
		cancellations: cancellations,
		deferrer:      deferrer,
		deferDelay:    admissionDelay,
	}

	if cfg.Engine.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		w.metricsServer = &http.Server{
			Addr:              cfg.Engine.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	// Register handlers
	server.HandleFunc(queue.TypeWorkflowExecution, w.handleWorkflowExecution)
	server.HandleFunc(queue.TypeTriggerFire, w.handleTriggerFire)

	return w
}

// Run starts the queue server and its companions and blocks until ctx is
// done or one of them fails.
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Int("concurrency", w.cfg.Engine.Concurrency).Msg("Starting worker...")

	if err := w.server.Start(); err != nil {
		return fmt.Errorf("failed to start queue server: %w", err)
	}
	defer w.server.Shutdown()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.cancellations.Listen(ctx)
		return nil
	})

	if w.metricsServer != nil {
		g.Go(func() error {
			log.Info().Str("addr", w.metricsServer.Addr).Msg("Serving worker metrics")
			if err := w.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return w.metricsServer.Shutdown(shutdownCtx)
		})
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down worker...")
	return g.Wait()
}

func (w *Worker) handleWorkflowExecution(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseWorkflowExecution(task)
	if err != nil {
		metrics.RecordTask(task.Type(), err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	l := logger.WithExecutionID(payload.ExecutionID.String())
	l.Debug().
		Str("workflow_id", payload.WorkflowID.String()).
		Str("workspace_id", payload.WorkspaceID.String()).
		Msg("Processing workflow execution")

	err = w.runner.Run(ctx, payload.ExecutionID)
	if errors.Is(err, processor.ErrAdmissionDeferred) {
		metrics.QueueTasksProcessed.WithLabelValues(task.Type(), "deferred").Inc()
		if w.deferrer == nil {
			return err
		}
		// Falls back to a task retry when the deferral cannot be enqueued.
		if derr := w.deferrer.DeferWorkflowExecution(ctx, payload, w.deferDelay); derr != nil {
			l.Warn().Err(derr).Msg("Failed to defer execution")
			return err
		}
		l.Debug().Dur("delay", w.deferDelay).Msg("Execution deferred")
		return nil
	}
	metrics.RecordTask(task.Type(), err)
	return err
}

func (w *Worker) handleTriggerFire(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseTriggerFire(task)
	if err != nil {
		metrics.RecordTask(task.Type(), err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	execution, err := w.triggers.FireScheduled(ctx, payload.TriggerID, payload.ScheduledAt)
	switch {
	case err == nil:
		metrics.RecordTriggerFire(string(models.TriggerTypeScheduled), "fired")
		log.Info().
			Str("trigger_id", payload.TriggerID.String()).
			Str("execution_id", execution.ID.String()).
			Time("scheduled_at", payload.ScheduledAt).
			Msg("Scheduled trigger fired")
	case errors.Is(err, services.ErrTriggerNotFound),
		errors.Is(err, services.ErrTriggerNotEnabled),
		errors.Is(err, services.ErrTriggerTypeMismatch),
		errors.Is(err, services.ErrTriggerNotDue),
		errors.Is(err, services.ErrWorkflowNotFound):
		// The trigger changed after it was polled; nothing left to do.
		metrics.RecordTriggerFire(string(models.TriggerTypeScheduled), "skipped")
		log.Info().Err(err).Str("trigger_id", payload.TriggerID.String()).Msg("Scheduled trigger skipped")
		err = nil
	default:
		metrics.RecordTriggerFire(string(models.TriggerTypeScheduled), "error")
	}

	metrics.RecordTask(task.Type(), err)
	return err
}
