package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories/memory"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
	"github.com/linkflow-ai/scriptflow/internal/pkg/queue"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/cron"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.WorkflowExecutionPayload
	err      error
	// live holds executions whose task is still queued.
	live map[uuid.UUID]bool
}

func (e *recordingEnqueuer) RequeueWorkflowExecution(ctx context.Context, p queue.WorkflowExecutionPayload) (bool, error) {
	e.mu.Lock()
	live := e.live[p.ExecutionID]
	e.mu.Unlock()
	if live {
		return false, nil
	}
	if err := e.EnqueueWorkflowExecution(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

func (e *recordingEnqueuer) EnqueueWorkflowExecution(_ context.Context, p queue.WorkflowExecutionPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.payloads = append(e.payloads, p)
	return nil
}

type recordingCanceller struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (c *recordingCanceller) SignalCancel(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
	return nil
}

type fixture struct {
	store      *memory.Store
	enqueuer   *recordingEnqueuer
	canceller  *recordingCanceller
	workflows  *WorkflowService
	graph      *GraphService
	triggers   *TriggerService
	executions *ExecutionService
	workspace  uuid.UUID
	script     *models.Script
}

func newFixture(t *testing.T, engine config.EngineConfig) *fixture {
	t.Helper()

	store := memory.New()
	f := &fixture{
		store:     store,
		enqueuer:  &recordingEnqueuer{},
		canceller: &recordingCanceller{},
		workspace: uuid.New(),
	}

	locks := NewWorkflowLocks()
	limits := NewLimitsService(store.Workspaces, &engine)
	f.executions = NewExecutionService(store.Executions, store.ExecutionInputs, store.Workflows, store.Nodes, store.Edges, f.enqueuer, f.canceller)
	f.triggers = NewTriggerService(store.Triggers, store.Workflows, limits, f.executions, cron.NewCalculator(), locks)
	f.workflows = NewWorkflowService(store.Workflows, store.Nodes, store.Edges, f.triggers, locks)
	f.graph = NewGraphService(store.Workflows, store.Nodes, store.Edges, store.Scripts, locks)

	f.script = &models.Script{Name: "echo", Language: models.ScriptLanguageJavaScript, Source: "return inputs;"}
	require.NoError(t, store.Scripts.Create(context.Background(), f.script))
	return f
}

func defaultEngine() config.EngineConfig {
	return config.EngineConfig{
		MinTriggersPerWorkflow:  1,
		MaxTriggersPerWorkflow:  3,
		MaxConcurrentExecutions: 5,
		MaxParallelNodes:        2,
	}
}

func (f *fixture) workflow(t *testing.T, name string) *models.Workflow {
	t.Helper()
	wf, err := f.workflows.Create(context.Background(), CreateWorkflowInput{
		WorkspaceID: f.workspace,
		CreatedBy:   uuid.New(),
		Name:        name,
	})
	require.NoError(t, err)
	return wf
}

func (f *fixture) node(t *testing.T, wf *models.Workflow, name string) *models.Node {
	t.Helper()
	node, err := f.graph.CreateNode(context.Background(), CreateNodeInput{
		WorkflowID: wf.ID,
		Name:       name,
		ScriptID:   &f.script.ID,
	})
	require.NoError(t, err)
	return node
}
