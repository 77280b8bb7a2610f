package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
)

// Store bundles one in-memory repository per entity. Workflow and node
// deletion cascade across the bundled tables.
type Store struct {
	Workflows       *WorkflowRepository
	Nodes           *NodeRepository
	Edges           *EdgeRepository
	Triggers        *TriggerRepository
	Executions      *ExecutionRepository
	ExecutionInputs *ExecutionInputRepository
	Scripts         *ScriptRepository
	Credentials     *CredentialRepository
	Variables       *VariableRepository
	Workspaces      *WorkspaceRepository
}

func New() *Store {
	nodes := newTable(func(n *models.Node) *uuid.UUID { return &n.ID }, func(n *models.Node, now time.Time, created bool) {
		if created {
			n.CreatedAt = now
		}
		n.UpdatedAt = now
	})
	edges := newTable(func(e *models.Edge) *uuid.UUID { return &e.ID }, func(e *models.Edge, now time.Time, created bool) {
		if created {
			e.CreatedAt = now
		}
	})
	inputs := newTable(func(i *models.ExecutionInput) *uuid.UUID { return &i.ID }, func(i *models.ExecutionInput, now time.Time, created bool) {
		if created {
			i.CreatedAt = now
		}
	})
	triggers := newTable(func(t *models.Trigger) *uuid.UUID { return &t.ID }, func(t *models.Trigger, now time.Time, created bool) {
		if created {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
	})

	return &Store{
		Workflows: &WorkflowRepository{
			rows: newTable(func(w *models.Workflow) *uuid.UUID { return &w.ID }, func(w *models.Workflow, now time.Time, created bool) {
				if created {
					w.CreatedAt = now
				}
				w.UpdatedAt = now
			}),
			nodes:    nodes,
			edges:    edges,
			triggers: triggers,
		},
		Nodes:    &NodeRepository{rows: nodes, edges: edges},
		Edges:    &EdgeRepository{rows: edges},
		Triggers: &TriggerRepository{rows: triggers},
		Executions: &ExecutionRepository{
			rows: newTable(func(e *models.Execution) *uuid.UUID { return &e.ID }, func(e *models.Execution, now time.Time, created bool) {
				if created {
					e.CreatedAt = now
				}
				e.UpdatedAt = now
			}),
			inputs: inputs,
		},
		ExecutionInputs: &ExecutionInputRepository{rows: inputs},
		Scripts: &ScriptRepository{
			rows: newTable(func(s *models.Script) *uuid.UUID { return &s.ID }, nil),
		},
		Credentials: &CredentialRepository{
			rows: newTable(func(c *models.Credential) *uuid.UUID { return &c.ID }, nil),
		},
		Variables: &VariableRepository{
			rows: newTable(func(v *models.Variable) *uuid.UUID { return &v.ID }, nil),
		},
		Workspaces: &WorkspaceRepository{
			rows:  newTable(func(w *models.Workspace) *uuid.UUID { return &w.ID }, nil),
			plans: make(map[string]models.Plan),
		},
	}
}

type WorkflowRepository struct {
	rows     *table[models.Workflow]
	nodes    *table[models.Node]
	edges    *table[models.Edge]
	triggers *table[models.Trigger]
}

func (r *WorkflowRepository) Create(_ context.Context, workflow *models.Workflow) error {
	return r.rows.insert(workflow, sameWorkflowName(workflow))
}

func (r *WorkflowRepository) Update(_ context.Context, workflow *models.Workflow) error {
	return r.rows.save(workflow, sameWorkflowName(workflow))
}

func sameWorkflowName(w *models.Workflow) func(*models.Workflow) bool {
	return func(existing *models.Workflow) bool {
		return existing.WorkspaceID == w.WorkspaceID && existing.Name == w.Name
	}
}

func (r *WorkflowRepository) Delete(_ context.Context, id uuid.UUID) error {
	if err := r.rows.remove(id); err != nil {
		return err
	}
	r.edges.removeWhere(func(e *models.Edge) bool { return e.WorkflowID == id })
	r.nodes.removeWhere(func(n *models.Node) bool { return n.WorkflowID == id })
	r.triggers.removeWhere(func(t *models.Trigger) bool { return t.WorkflowID == id })
	return nil
}

func (r *WorkflowRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Workflow, error) {
	return r.rows.get(id)
}

func (r *WorkflowRepository) FindByName(_ context.Context, workspaceID uuid.UUID, name string) (*models.Workflow, error) {
	return r.rows.first(func(w *models.Workflow) bool {
		return w.WorkspaceID == workspaceID && w.Name == name
	})
}

func (r *WorkflowRepository) FindByWorkspaceID(_ context.Context, workspaceID uuid.UUID, opts *repositories.ListOptions) ([]models.Workflow, int64, error) {
	rows := reverse(r.rows.filter(func(w *models.Workflow) bool { return w.WorkspaceID == workspaceID }))
	return page(rows, opts), int64(len(rows)), nil
}

type NodeRepository struct {
	rows  *table[models.Node]
	edges *table[models.Edge]
}

func (r *NodeRepository) Create(_ context.Context, node *models.Node) error {
	return r.rows.insert(node, sameNodeName(node))
}

func (r *NodeRepository) Update(_ context.Context, node *models.Node) error {
	return r.rows.save(node, sameNodeName(node))
}

func sameNodeName(n *models.Node) func(*models.Node) bool {
	return func(existing *models.Node) bool {
		return existing.WorkflowID == n.WorkflowID && existing.Name == n.Name
	}
}

func (r *NodeRepository) Delete(_ context.Context, id uuid.UUID) error {
	if err := r.rows.remove(id); err != nil {
		return err
	}
	r.edges.removeWhere(func(e *models.Edge) bool { return e.FromNodeID == id || e.ToNodeID == id })
	return nil
}

func (r *NodeRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Node, error) {
	return r.rows.get(id)
}

func (r *NodeRepository) FindByWorkflowID(_ context.Context, workflowID uuid.UUID) ([]models.Node, error) {
	return r.rows.filter(func(n *models.Node) bool { return n.WorkflowID == workflowID }), nil
}

func (r *NodeRepository) CountByWorkflowID(_ context.Context, workflowID uuid.UUID) (int64, error) {
	return r.rows.count(func(n *models.Node) bool { return n.WorkflowID == workflowID }), nil
}

type EdgeRepository struct {
	rows *table[models.Edge]
}

func (r *EdgeRepository) Create(_ context.Context, edge *models.Edge) error {
	return r.rows.insert(edge, nil)
}

func (r *EdgeRepository) Update(_ context.Context, edge *models.Edge) error {
	return r.rows.save(edge, nil)
}

func (r *EdgeRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.rows.remove(id)
}

func (r *EdgeRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Edge, error) {
	return r.rows.get(id)
}

func (r *EdgeRepository) FindByWorkflowID(_ context.Context, workflowID uuid.UUID) ([]models.Edge, error) {
	return r.rows.filter(func(e *models.Edge) bool { return e.WorkflowID == workflowID }), nil
}

type TriggerRepository struct {
	rows *table[models.Trigger]
}

func (r *TriggerRepository) Create(_ context.Context, trigger *models.Trigger) error {
	return r.rows.insert(trigger, sameTriggerName(trigger))
}

func (r *TriggerRepository) Update(_ context.Context, trigger *models.Trigger) error {
	return r.rows.save(trigger, sameTriggerName(trigger))
}

func sameTriggerName(t *models.Trigger) func(*models.Trigger) bool {
	return func(existing *models.Trigger) bool {
		return existing.WorkspaceID == t.WorkspaceID && existing.Name == t.Name
	}
}

func (r *TriggerRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.rows.remove(id)
}

func (r *TriggerRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Trigger, error) {
	return r.rows.get(id)
}

func (r *TriggerRepository) FindByName(_ context.Context, workspaceID uuid.UUID, name string) (*models.Trigger, error) {
	return r.rows.first(func(t *models.Trigger) bool {
		return t.WorkspaceID == workspaceID && t.Name == name
	})
}

func (r *TriggerRepository) FindByWorkflowID(_ context.Context, workflowID uuid.UUID) ([]models.Trigger, error) {
	return r.rows.filter(func(t *models.Trigger) bool { return t.WorkflowID == workflowID }), nil
}

func (r *TriggerRepository) CountByWorkflowID(_ context.Context, workflowID uuid.UUID) (int64, error) {
	return r.rows.count(func(t *models.Trigger) bool { return t.WorkflowID == workflowID }), nil
}

func (r *TriggerRepository) FindByEvent(_ context.Context, workspaceID uuid.UUID, eventName string) ([]models.Trigger, error) {
	return r.rows.filter(func(t *models.Trigger) bool {
		if t.WorkspaceID != workspaceID || t.Type != models.TriggerTypeEvent || !t.EffectivelyEnabled {
			return false
		}
		name, _ := t.Config["event_name"].(string)
		return name == eventName
	}), nil
}

func (r *TriggerRepository) FindDueScheduled(_ context.Context, now time.Time, limit int) ([]models.Trigger, error) {
	due := r.rows.filter(func(t *models.Trigger) bool {
		return t.Type == models.TriggerTypeScheduled && t.EffectivelyEnabled &&
			t.NextRunAt != nil && !t.NextRunAt.After(now)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *TriggerRepository) RecordFire(_ context.Context, id uuid.UUID, firedAt time.Time, nextRunAt *time.Time) error {
	return r.rows.update(id, func(t *models.Trigger) error {
		t.LastFiredAt = &firedAt
		t.NextRunAt = nextRunAt
		t.FireCount++
		return nil
	})
}

func (r *TriggerRepository) SetNextRun(_ context.Context, id uuid.UUID, nextRunAt *time.Time) error {
	return r.rows.update(id, func(t *models.Trigger) error {
		t.NextRunAt = nextRunAt
		return nil
	})
}

type ExecutionRepository struct {
	rows   *table[models.Execution]
	inputs *table[models.ExecutionInput]
}

func (r *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	return r.rows.insert(execution, nil)
}

func (r *ExecutionRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Execution, error) {
	return r.rows.get(id)
}

func (r *ExecutionRepository) FindByWorkflowID(_ context.Context, workflowID uuid.UUID, opts *repositories.ListOptions) ([]models.Execution, int64, error) {
	rows := reverse(r.rows.filter(func(e *models.Execution) bool { return e.WorkflowID == workflowID }))
	return page(rows, opts), int64(len(rows)), nil
}

func (r *ExecutionRepository) Transition(_ context.Context, execution *models.Execution, event models.ExecutionEvent) error {
	from, err := repositories.ApplyTransition(execution, event)
	if err != nil {
		return err
	}
	err = r.rows.update(execution.ID, func(stored *models.Execution) error {
		if stored.Status != from {
			return repositories.ErrStaleState
		}
		*stored = *execution
		return nil
	})
	if err != nil {
		execution.Status = from
	}
	return err
}

func (r *ExecutionRepository) IncrementRetryCount(_ context.Context, id uuid.UUID) error {
	return r.rows.update(id, func(e *models.Execution) error {
		e.RetryCount++
		return nil
	})
}

func (r *ExecutionRepository) CountRunning(_ context.Context, workspaceID uuid.UUID) (int64, error) {
	return r.rows.count(func(e *models.Execution) bool {
		return e.WorkspaceID == workspaceID && e.Status == models.ExecutionStatusRunning
	}), nil
}

func (r *ExecutionRepository) FindStalePending(_ context.Context, olderThan time.Time, limit int) ([]models.Execution, error) {
	stale := r.rows.filter(func(e *models.Execution) bool {
		return e.Status == models.ExecutionStatusPending && e.CreatedAt.Before(olderThan)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (r *ExecutionRepository) DeleteFinishedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	expired := r.rows.filter(func(e *models.Execution) bool {
		return e.Status.IsTerminal() && e.EndedAt != nil && e.EndedAt.Before(cutoff)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	ids := make(map[uuid.UUID]bool, len(expired))
	for _, e := range expired {
		ids[e.ID] = true
	}
	r.inputs.removeWhere(func(i *models.ExecutionInput) bool { return ids[i.ExecutionID] })
	r.rows.removeWhere(func(e *models.Execution) bool { return ids[e.ID] })
	return int64(len(ids)), nil
}

type ExecutionInputRepository struct {
	rows *table[models.ExecutionInput]
}

func (r *ExecutionInputRepository) Create(_ context.Context, input *models.ExecutionInput) error {
	return r.rows.insert(input, func(existing *models.ExecutionInput) bool {
		return existing.ExecutionID == input.ExecutionID && existing.NodeID == input.NodeID
	})
}

func (r *ExecutionInputRepository) FindByExecutionID(_ context.Context, executionID uuid.UUID) ([]models.ExecutionInput, error) {
	return r.rows.filter(func(i *models.ExecutionInput) bool { return i.ExecutionID == executionID }), nil
}

func (r *ExecutionInputRepository) FindByExecutionAndNode(_ context.Context, executionID, nodeID uuid.UUID) (*models.ExecutionInput, error) {
	return r.rows.first(func(i *models.ExecutionInput) bool {
		return i.ExecutionID == executionID && i.NodeID == nodeID
	})
}

type ScriptRepository struct {
	rows *table[models.Script]
}

func (r *ScriptRepository) Create(_ context.Context, script *models.Script) error {
	return r.rows.insert(script, nil)
}

func (r *ScriptRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Script, error) {
	return r.rows.get(id)
}

type CredentialRepository struct {
	rows *table[models.Credential]
}

func (r *CredentialRepository) Create(_ context.Context, credential *models.Credential) error {
	return r.rows.insert(credential, nil)
}

func (r *CredentialRepository) FindByID(_ context.Context, workspaceID, id uuid.UUID) (*models.Credential, error) {
	c, err := r.rows.get(id)
	if err != nil {
		return nil, err
	}
	if c.WorkspaceID != workspaceID {
		return nil, repositories.ErrNotFound
	}
	return c, nil
}

func (r *CredentialRepository) TouchLastUsed(_ context.Context, id uuid.UUID) error {
	return r.rows.update(id, func(c *models.Credential) error {
		now := time.Now()
		c.LastUsedAt = &now
		return nil
	})
}

type VariableRepository struct {
	rows *table[models.Variable]
}

func (r *VariableRepository) Create(_ context.Context, variable *models.Variable) error {
	return r.rows.insert(variable, func(existing *models.Variable) bool {
		return existing.WorkspaceID == variable.WorkspaceID && existing.Name == variable.Name
	})
}

func (r *VariableRepository) FindByName(_ context.Context, workspaceID uuid.UUID, name string) (*models.Variable, error) {
	return r.rows.first(func(v *models.Variable) bool {
		return v.WorkspaceID == workspaceID && v.Name == name
	})
}

type WorkspaceRepository struct {
	rows  *table[models.Workspace]
	plans map[string]models.Plan
}

// SetPlans replaces the known plans. Not safe for use concurrently with FindByID.
func (r *WorkspaceRepository) SetPlans(plans []models.Plan) {
	r.plans = make(map[string]models.Plan, len(plans))
	for _, p := range plans {
		r.plans[p.ID] = p
	}
}

func (r *WorkspaceRepository) Create(_ context.Context, workspace *models.Workspace) error {
	return r.rows.insert(workspace, nil)
}

func (r *WorkspaceRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Workspace, error) {
	ws, err := r.rows.get(id)
	if err != nil {
		return nil, err
	}
	if p, ok := r.plans[ws.PlanID]; ok {
		ws.Plan = &p
	}
	return ws, nil
}

var (
	_ repositories.WorkflowStore       = (*WorkflowRepository)(nil)
	_ repositories.NodeStore           = (*NodeRepository)(nil)
	_ repositories.EdgeStore           = (*EdgeRepository)(nil)
	_ repositories.TriggerStore        = (*TriggerRepository)(nil)
	_ repositories.ExecutionStore      = (*ExecutionRepository)(nil)
	_ repositories.ExecutionInputStore = (*ExecutionInputRepository)(nil)
	_ repositories.ScriptStore         = (*ScriptRepository)(nil)
	_ repositories.CredentialStore     = (*CredentialRepository)(nil)
	_ repositories.VariableStore       = (*VariableRepository)(nil)
	_ repositories.WorkspaceStore      = (*WorkspaceRepository)(nil)
)
