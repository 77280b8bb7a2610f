package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/graph"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/linkflow-ai/scriptflow/internal/pkg/queue"
	"github.com/rs/zerolog/log"
)

// Execution errors
var (
	ErrExecutionNotFound = errors.New("execution not found")
)

// Enqueuer hands a PENDING execution to the worker pool.
type Enqueuer interface {
	EnqueueWorkflowExecution(ctx context.Context, payload queue.WorkflowExecutionPayload) error
	// RequeueWorkflowExecution reports false when the execution still has a
	// live task.
	RequeueWorkflowExecution(ctx context.Context, payload queue.WorkflowExecutionPayload) (bool, error)
}

// CancelSignaler tells the worker running an execution to stop dispatching.
type CancelSignaler interface {
	SignalCancel(ctx context.Context, executionID uuid.UUID) error
}

type ExecutionService struct {
	executions repositories.ExecutionStore
	inputs     repositories.ExecutionInputStore
	workflows  repositories.WorkflowStore
	nodes      repositories.NodeStore
	edges      repositories.EdgeStore
	enqueuer   Enqueuer
	canceller  CancelSignaler
	now        func() time.Time
}

func NewExecutionService(
	executions repositories.ExecutionStore,
	inputs repositories.ExecutionInputStore,
	workflows repositories.WorkflowStore,
	nodes repositories.NodeStore,
	edges repositories.EdgeStore,
	enqueuer Enqueuer,
	canceller CancelSignaler,
) *ExecutionService {
	return &ExecutionService{
		executions: executions,
		inputs:     inputs,
		workflows:  workflows,
		nodes:      nodes,
		edges:      edges,
		enqueuer:   enqueuer,
		canceller:  canceller,
		now:        time.Now,
	}
}

type StartExecutionInput struct {
	Workflow    *models.Workflow
	Trigger     *models.Trigger
	TriggerType string
	TriggerData models.JSON
	TriggeredBy string
	RetryOf     *models.Execution
}

// Start records a PENDING execution and enqueues it. Structural problems of
// the graph are reported here, before anything is persisted.
func (s *ExecutionService) Start(ctx context.Context, input StartExecutionInput) (*models.Execution, error) {
	wf := input.Workflow
	snap, err := s.snapshot(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		return nil, errs.New("execution.Start", errs.ErrEmptyWorkflow, "workflow %s has no nodes", wf.ID)
	}
	if err := graph.ValidateGraph(snap); err != nil {
		return nil, err
	}

	maxRetries := 0
	for _, n := range snap.Nodes() {
		maxRetries += n.MaxRetries
	}

	execution := &models.Execution{
		WorkflowID:  wf.ID,
		WorkspaceID: wf.WorkspaceID,
		Status:      models.ExecutionStatusPending,
		TriggerType: input.TriggerType,
		TriggerData: input.TriggerData,
		MaxRetries:  maxRetries,
		TriggeredBy: input.TriggeredBy,
	}
	if execution.TriggerData == nil {
		execution.TriggerData = models.JSON{}
	}
	if input.Trigger != nil {
		execution.TriggerID = &input.Trigger.ID
	}
	if input.RetryOf != nil {
		execution.IsRetry = true
		execution.RetryOfID = &input.RetryOf.ID
		if execution.TriggerID == nil {
			execution.TriggerID = input.RetryOf.TriggerID
		}
	}

	if err := s.executions.Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	err = s.enqueuer.EnqueueWorkflowExecution(ctx, queue.WorkflowExecutionPayload{
		ExecutionID: execution.ID,
		WorkflowID:  wf.ID,
		WorkspaceID: wf.WorkspaceID,
		Priority:    wf.Priority,
	})
	if err != nil {
		msg := fmt.Sprintf("failed to enqueue execution: %v", err)
		s.finish(execution, msg)
		if terr := s.executions.Transition(ctx, execution, models.ExecutionEventFail); terr != nil {
			log.Error().Err(terr).Str("execution_id", execution.ID.String()).Msg("Failed to mark unqueued execution as failed")
		}
		return nil, fmt.Errorf("failed to enqueue execution: %w", err)
	}

	log.Info().
		Str("execution_id", execution.ID.String()).
		Str("workflow_id", wf.ID.String()).
		Str("trigger_type", execution.TriggerType).
		Str("triggered_by", execution.TriggeredBy).
		Msg("Execution queued")

	return execution, nil
}

// TestRun starts a manual execution of a workflow in any non-archived status.
func (s *ExecutionService) TestRun(ctx context.Context, workflowID uuid.UUID, triggerData models.JSON) (*models.Execution, error) {
	wf, err := s.workflows.FindByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	if !wf.IsMutable() {
		return nil, errs.New("execution.TestRun", errs.ErrWorkflowArchived, "workflow %s is archived", wf.ID)
	}

	return s.Start(ctx, StartExecutionInput{
		Workflow:    wf,
		TriggerType: models.TriggerTypeTest,
		TriggerData: triggerData,
		TriggeredBy: models.TriggeredByTest,
	})
}

func (s *ExecutionService) Get(ctx context.Context, id uuid.UUID) (*models.Execution, error) {
	execution, err := s.executions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return execution, nil
}

func (s *ExecutionService) List(ctx context.Context, workflowID uuid.UUID, opts *repositories.ListOptions) ([]models.Execution, int64, error) {
	executions, total, err := s.executions.FindByWorkflowID(ctx, workflowID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list executions: %w", err)
	}
	return executions, total, nil
}

// ListInputs returns the recorded node inputs of an execution.
func (s *ExecutionService) ListInputs(ctx context.Context, id uuid.UUID) ([]models.ExecutionInput, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	inputs, err := s.inputs.FindByExecutionID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution inputs: %w", err)
	}
	return inputs, nil
}

// Cancel stops an execution. A PENDING execution is cancelled in place; a
// RUNNING one is signalled and reaches CANCELLED once its worker drains.
func (s *ExecutionService) Cancel(ctx context.Context, id uuid.UUID) (*models.Execution, error) {
	const op = "execution.Cancel"

	execution, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if execution.Status == models.ExecutionStatusPending {
		s.finish(execution, "cancelled before start")
		err := s.executions.Transition(ctx, execution, models.ExecutionEventCancel)
		if err == nil {
			log.Info().Str("execution_id", id.String()).Msg("Pending execution cancelled")
			return execution, nil
		}
		if !errors.Is(err, repositories.ErrStaleState) {
			return nil, fmt.Errorf("failed to cancel execution: %w", err)
		}
		// The worker started it in the meantime.
		if execution, err = s.Get(ctx, id); err != nil {
			return nil, err
		}
	}

	if execution.Status != models.ExecutionStatusRunning {
		return nil, errs.New(op, errs.ErrInvalidTransition, "execution %s is %s", id, execution.Status)
	}
	if err := s.canceller.SignalCancel(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to signal cancellation: %w", err)
	}

	log.Info().Str("execution_id", id.String()).Msg("Cancellation requested")
	return execution, nil
}

// Retry re-runs a finished execution with the same trigger data.
func (s *ExecutionService) Retry(ctx context.Context, id uuid.UUID, actor string) (*models.Execution, error) {
	source, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch source.Status {
	case models.ExecutionStatusFailed, models.ExecutionStatusTimeout, models.ExecutionStatusCancelled:
	default:
		return nil, errs.New("execution.Retry", errs.ErrInvalidTransition, "execution %s is %s and cannot be retried", id, source.Status)
	}

	wf, err := s.workflows.FindByID(ctx, source.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, source.WorkflowID)
	}
	if !wf.IsMutable() {
		return nil, errs.New("execution.Retry", errs.ErrWorkflowArchived, "workflow %s is archived", wf.ID)
	}

	return s.Start(ctx, StartExecutionInput{
		Workflow:    wf,
		TriggerType: source.TriggerType,
		TriggerData: source.TriggerData.Clone(),
		TriggeredBy: actor,
		RetryOf:     source,
	})
}

func (s *ExecutionService) snapshot(ctx context.Context, workflowID uuid.UUID) (*graph.Snapshot, error) {
	nodes, err := s.nodes.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	edges, err := s.edges.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	return graph.NewSnapshot(workflowID, nodes, edges), nil
}

// RecoverPending re-enqueues PENDING executions created before olderThan.
// Those created before abandonBefore are failed instead. Executions that
// still have a live task are left to it.
func (s *ExecutionService) RecoverPending(ctx context.Context, olderThan, abandonBefore time.Time, limit int) (requeued, abandoned int, err error) {
	stale, err := s.executions.FindStalePending(ctx, olderThan, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load stale executions: %w", err)
	}

	for i := range stale {
		execution := &stale[i]
		l := log.With().Str("execution_id", execution.ID.String()).Logger()

		if execution.CreatedAt.Before(abandonBefore) {
			s.finish(execution, "execution was never started")
			if err := s.executions.Transition(ctx, execution, models.ExecutionEventFail); err != nil {
				if !errors.Is(err, repositories.ErrStaleState) {
					l.Error().Err(err).Msg("Failed to abandon stale execution")
				}
				continue
			}
			abandoned++
			l.Warn().Time("created_at", execution.CreatedAt).Msg("Abandoned stale execution")
			continue
		}

		priority := 0
		if wf, err := s.workflows.FindByID(ctx, execution.WorkflowID); err == nil {
			priority = wf.Priority
		}
		enqueued, err := s.enqueuer.RequeueWorkflowExecution(ctx, queue.WorkflowExecutionPayload{
			ExecutionID: execution.ID,
			WorkflowID:  execution.WorkflowID,
			WorkspaceID: execution.WorkspaceID,
			Priority:    priority,
		})
		if err != nil {
			l.Error().Err(err).Msg("Failed to re-enqueue stale execution")
			continue
		}
		if !enqueued {
			l.Debug().Msg("Stale execution still has a queued task")
			continue
		}
		requeued++
	}
	return requeued, abandoned, nil
}

func (s *ExecutionService) finish(execution *models.Execution, msg string) {
	now := s.now()
	execution.EndedAt = &now
	execution.ErrorMessage = &msg
}
