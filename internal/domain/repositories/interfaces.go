package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrStaleState is returned by conditional updates whose precondition no longer holds.
	ErrStaleState = errors.New("record state changed")
)

type WorkflowStore interface {
	Create(ctx context.Context, workflow *models.Workflow) error
	Update(ctx context.Context, workflow *models.Workflow) error
	// Delete removes the workflow together with its nodes, edges and triggers.
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
	FindByName(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Workflow, error)
	FindByWorkspaceID(ctx context.Context, workspaceID uuid.UUID, opts *ListOptions) ([]models.Workflow, int64, error)
}

type NodeStore interface {
	Create(ctx context.Context, node *models.Node) error
	Update(ctx context.Context, node *models.Node) error
	// Delete removes the node and every edge touching it.
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Node, error)
	FindByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]models.Node, error)
	CountByWorkflowID(ctx context.Context, workflowID uuid.UUID) (int64, error)
}

type EdgeStore interface {
	Create(ctx context.Context, edge *models.Edge) error
	Update(ctx context.Context, edge *models.Edge) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Edge, error)
	FindByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]models.Edge, error)
}

type TriggerStore interface {
	Create(ctx context.Context, trigger *models.Trigger) error
	Update(ctx context.Context, trigger *models.Trigger) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Trigger, error)
	FindByName(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Trigger, error)
	FindByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]models.Trigger, error)
	CountByWorkflowID(ctx context.Context, workflowID uuid.UUID) (int64, error)
	// FindByEvent returns the effectively enabled EVENT triggers listening for eventName.
	FindByEvent(ctx context.Context, workspaceID uuid.UUID, eventName string) ([]models.Trigger, error)
	// FindDueScheduled returns effectively enabled SCHEDULED triggers with next_run_at <= now.
	FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Trigger, error)
	RecordFire(ctx context.Context, id uuid.UUID, firedAt time.Time, nextRunAt *time.Time) error
	SetNextRun(ctx context.Context, id uuid.UUID, nextRunAt *time.Time) error
}

type ExecutionStore interface {
	Create(ctx context.Context, execution *models.Execution) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Execution, error)
	FindByWorkflowID(ctx context.Context, workflowID uuid.UUID, opts *ListOptions) ([]models.Execution, int64, error)
	// Transition applies event to execution and persists it only if the
	// stored status still equals the status it left. Events the status
	// machine does not allow fail with errs.ErrInvalidTransition.
	Transition(ctx context.Context, execution *models.Execution, event models.ExecutionEvent) error
	IncrementRetryCount(ctx context.Context, id uuid.UUID) error
	CountRunning(ctx context.Context, workspaceID uuid.UUID) (int64, error)
	FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Execution, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type ExecutionInputStore interface {
	// Create fails with ErrDuplicate when the (execution, node) pair already has an input.
	Create(ctx context.Context, input *models.ExecutionInput) error
	FindByExecutionID(ctx context.Context, executionID uuid.UUID) ([]models.ExecutionInput, error)
	FindByExecutionAndNode(ctx context.Context, executionID, nodeID uuid.UUID) (*models.ExecutionInput, error)
}

type ScriptStore interface {
	Create(ctx context.Context, script *models.Script) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Script, error)
}

type CredentialStore interface {
	Create(ctx context.Context, credential *models.Credential) error
	FindByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Credential, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}

type VariableStore interface {
	Create(ctx context.Context, variable *models.Variable) error
	FindByName(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Variable, error)
}

type WorkspaceStore interface {
	Create(ctx context.Context, workspace *models.Workspace) error
	// FindByID loads the workspace with its plan.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
}

var (
	_ WorkflowStore       = (*WorkflowRepository)(nil)
	_ NodeStore           = (*NodeRepository)(nil)
	_ EdgeStore           = (*EdgeRepository)(nil)
	_ TriggerStore        = (*TriggerRepository)(nil)
	_ ExecutionStore      = (*ExecutionRepository)(nil)
	_ ExecutionInputStore = (*ExecutionInputRepository)(nil)
	_ ScriptStore         = (*ScriptRepository)(nil)
	_ CredentialStore     = (*CredentialRepository)(nil)
	_ VariableStore       = (*VariableRepository)(nil)
	_ WorkspaceStore      = (*WorkspaceRepository)(nil)
)
