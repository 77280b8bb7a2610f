package processor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/params"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
)

// ErrAdmissionDeferred is returned by Run when the workspace is at its
// concurrency limit. The execution stays PENDING and the task is retried.
var ErrAdmissionDeferred = errors.New("workspace concurrency limit reached")

// Runtime runs a node's script with its resolved inputs.
type Runtime interface {
	Run(ctx context.Context, script *models.Script, inputs map[string]interface{}) (map[string]interface{}, error)
}

// Limits resolves the plan limits of a workspace.
type Limits interface {
	ForWorkspace(ctx context.Context, workspaceID uuid.UUID) (models.PlanLimits, error)
}

// EventPublisher receives execution lifecycle events. Implementations must
// not block; failures are logged by the caller and otherwise ignored.
type EventPublisher interface {
	ExecutionStarted(ctx context.Context, execution *models.Execution) error
	ExecutionFinished(ctx context.Context, execution *models.Execution) error
	NodeStarted(ctx context.Context, execution *models.Execution, node *models.Node, attempt int) error
	NodeFinished(ctx context.Context, execution *models.Execution, result models.NodeResult) error
}

// MetricsCollector interface for metrics
type MetricsCollector interface {
	ExecutionStarted()
	ExecutionFinished(status, triggerType string, duration time.Duration)
	ExecutionDeferred()
	NodeAttempt(status string, duration time.Duration)
}

// Config wires the processor to its stores and collaborators.
type Config struct {
	Executions repositories.ExecutionStore
	Inputs     repositories.ExecutionInputStore
	Nodes      repositories.NodeStore
	Edges      repositories.EdgeStore
	Scripts    repositories.ScriptStore
	Limits     Limits
	// Stores serve the external reference kinds.
	Stores        map[params.Kind]params.Store
	Runtime       Runtime
	Cancellations *CancellationManager
	Publisher     EventPublisher
	Metrics       MetricsCollector

	// CancelGracePeriod bounds how long in-flight nodes may run after a
	// cancellation before they are interrupted.
	CancelGracePeriod time.Duration
	RetryBackoff      time.Duration
	MaxRetryBackoff   time.Duration
}

// nodeOutcome is what one node reports back to the dispatch loop.
type nodeOutcome struct {
	node   *models.Node
	result models.NodeResult
	output map[string]interface{}
	err    error
	// timedOut is set when the last failed attempt hit its deadline.
	timedOut bool
	// interrupted is set when the node was stopped by a cancellation.
	interrupted bool
}

type noopPublisher struct{}

func (noopPublisher) ExecutionStarted(context.Context, *models.Execution) error { return nil }
func (noopPublisher) ExecutionFinished(context.Context, *models.Execution) error { return nil }
func (noopPublisher) NodeStarted(context.Context, *models.Execution, *models.Node, int) error {
	return nil
}
func (noopPublisher) NodeFinished(context.Context, *models.Execution, models.NodeResult) error {
	return nil
}

type noopMetrics struct{}

func (noopMetrics) ExecutionStarted() {}
func (noopMetrics) ExecutionFinished(string, string, time.Duration) {}
func (noopMetrics) ExecutionDeferred() {}
func (noopMetrics) NodeAttempt(string, time.Duration) {}
