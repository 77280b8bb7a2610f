package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/graph"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/rs/zerolog/log"
)

// Graph errors
var (
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")
)

// GraphService mutates the nodes and edges of a workflow. Every mutation is
// checked by the graph validator against a fresh snapshot before it is stored.
type GraphService struct {
	workflows repositories.WorkflowStore
	nodes     repositories.NodeStore
	edges     repositories.EdgeStore
	scripts   repositories.ScriptStore
	locks     *WorkflowLocks
}

func NewGraphService(
	workflows repositories.WorkflowStore,
	nodes repositories.NodeStore,
	edges repositories.EdgeStore,
	scripts repositories.ScriptStore,
	locks *WorkflowLocks,
) *GraphService {
	return &GraphService{
		workflows: workflows,
		nodes:     nodes,
		edges:     edges,
		scripts:   scripts,
		locks:     locks,
	}
}

type CreateNodeInput struct {
	WorkflowID     uuid.UUID
	Name           string
	ScriptID       *uuid.UUID
	CustomScriptID *uuid.UUID
	InputParams    models.ParameterMap
	OutputParams   models.ParameterMap
	MaxRetries     *int
	TimeoutSeconds *int
	MetaData       models.JSON
}

func (s *GraphService) CreateNode(ctx context.Context, input CreateNodeInput) (*models.Node, error) {
	const op = "graph.CreateNode"

	unlock := s.locks.Lock(input.WorkflowID)
	defer unlock()

	wf, snap, err := s.load(ctx, op, input.WorkflowID)
	if err != nil {
		return nil, err
	}

	node := &models.Node{
		ID:             uuid.New(),
		WorkflowID:     wf.ID,
		Name:           strings.TrimSpace(input.Name),
		ScriptID:       input.ScriptID,
		CustomScriptID: input.CustomScriptID,
		InputParams:    input.InputParams,
		OutputParams:   input.OutputParams,
		MaxRetries:     models.DefaultNodeMaxRetries,
		TimeoutSeconds: models.DefaultNodeTimeoutSeconds,
		MetaData:       input.MetaData,
	}
	if input.MaxRetries != nil {
		node.MaxRetries = *input.MaxRetries
	}
	if input.TimeoutSeconds != nil {
		node.TimeoutSeconds = *input.TimeoutSeconds
	}
	if node.InputParams == nil {
		node.InputParams = models.ParameterMap{}
	}
	if node.OutputParams == nil {
		node.OutputParams = models.ParameterMap{}
	}

	if err := s.validateNode(ctx, wf, snap, node); err != nil {
		return nil, err
	}
	if err := s.nodes.Create(ctx, node); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, errs.New(op, errs.ErrDuplicateName, "node %q already exists in workflow", node.Name)
		}
		return nil, fmt.Errorf("failed to create node: %w", err)
	}

	log.Info().
		Str("workflow_id", wf.ID.String()).
		Str("node_id", node.ID.String()).
		Str("script", node.ScriptRef().String()).
		Msg("Node created")

	return node, nil
}

type UpdateNodeInput struct {
	Name           *string
	ScriptID       *uuid.UUID
	CustomScriptID *uuid.UUID
	// ClearScript drops the current binding before ScriptID/CustomScriptID
	// are applied, so a node can switch between global and custom scripts.
	ClearScript    bool
	InputParams    models.ParameterMap
	OutputParams   models.ParameterMap
	MaxRetries     *int
	TimeoutSeconds *int
	MetaData       models.JSON
}

func (s *GraphService) UpdateNode(ctx context.Context, id uuid.UUID, input UpdateNodeInput) (*models.Node, error) {
	const op = "graph.UpdateNode"

	node, err := s.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(node.WorkflowID)
	defer unlock()

	wf, snap, err := s.load(ctx, op, node.WorkflowID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		node.Name = strings.TrimSpace(*input.Name)
	}
	if input.ClearScript {
		node.ScriptID = nil
		node.CustomScriptID = nil
	}
	if input.ScriptID != nil {
		node.ScriptID = input.ScriptID
	}
	if input.CustomScriptID != nil {
		node.CustomScriptID = input.CustomScriptID
	}
	if input.InputParams != nil {
		node.InputParams = input.InputParams
	}
	if input.OutputParams != nil {
		node.OutputParams = input.OutputParams
	}
	if input.MaxRetries != nil {
		node.MaxRetries = *input.MaxRetries
	}
	if input.TimeoutSeconds != nil {
		node.TimeoutSeconds = *input.TimeoutSeconds
	}
	if input.MetaData != nil {
		node.MetaData = input.MetaData
	}

	if err := s.validateNode(ctx, wf, snap, node); err != nil {
		return nil, err
	}
	if err := s.nodes.Update(ctx, node); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, errs.New(op, errs.ErrDuplicateName, "node %q already exists in workflow", node.Name)
		}
		return nil, fmt.Errorf("failed to update node: %w", err)
	}

	log.Info().Str("node_id", id.String()).Msg("Node updated")
	return node, nil
}

// DeleteNode removes the node and its edges.
func (s *GraphService) DeleteNode(ctx context.Context, id uuid.UUID) error {
	node, err := s.GetNode(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(node.WorkflowID)
	defer unlock()

	if _, _, err := s.load(ctx, "graph.DeleteNode", node.WorkflowID); err != nil {
		return err
	}
	if err := s.nodes.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	log.Info().Str("node_id", id.String()).Str("workflow_id", node.WorkflowID.String()).Msg("Node deleted")
	return nil
}

func (s *GraphService) GetNode(ctx context.Context, id uuid.UUID) (*models.Node, error) {
	node, err := s.nodes.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return node, nil
}

func (s *GraphService) ListNodes(ctx context.Context, workflowID uuid.UUID) ([]models.Node, error) {
	nodes, err := s.nodes.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	return nodes, nil
}

// CreateEdge adds from -> to after checking membership and acyclicity.
func (s *GraphService) CreateEdge(ctx context.Context, workflowID, from, to uuid.UUID) (*models.Edge, error) {
	unlock := s.locks.Lock(workflowID)
	defer unlock()

	_, snap, err := s.load(ctx, "graph.CreateEdge", workflowID)
	if err != nil {
		return nil, err
	}
	if err := graph.ValidateEdge(snap, from, to); err != nil {
		return nil, err
	}

	edge := &models.Edge{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		FromNodeID: from,
		ToNodeID:   to,
	}
	if err := s.edges.Create(ctx, edge); err != nil {
		return nil, fmt.Errorf("failed to create edge: %w", err)
	}

	log.Info().
		Str("workflow_id", workflowID.String()).
		Str("edge_id", edge.ID.String()).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Edge created")

	return edge, nil
}

// UpdateEdge re-points an edge. The edge stays in its workflow.
func (s *GraphService) UpdateEdge(ctx context.Context, id, from, to uuid.UUID) (*models.Edge, error) {
	edge, err := s.GetEdge(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(edge.WorkflowID)
	defer unlock()

	_, snap, err := s.load(ctx, "graph.UpdateEdge", edge.WorkflowID)
	if err != nil {
		return nil, err
	}
	if err := graph.ValidateEdgeUpdate(snap, id, from, to); err != nil {
		return nil, err
	}

	edge.FromNodeID = from
	edge.ToNodeID = to
	if err := s.edges.Update(ctx, edge); err != nil {
		return nil, fmt.Errorf("failed to update edge: %w", err)
	}

	log.Info().Str("edge_id", id.String()).Msg("Edge updated")
	return edge, nil
}

func (s *GraphService) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	edge, err := s.GetEdge(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(edge.WorkflowID)
	defer unlock()

	if _, _, err := s.load(ctx, "graph.DeleteEdge", edge.WorkflowID); err != nil {
		return err
	}
	if err := s.edges.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}

	log.Info().Str("edge_id", id.String()).Msg("Edge deleted")
	return nil
}

func (s *GraphService) GetEdge(ctx context.Context, id uuid.UUID) (*models.Edge, error) {
	edge, err := s.edges.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
	}
	return edge, nil
}

func (s *GraphService) ListEdges(ctx context.Context, workflowID uuid.UUID) ([]models.Edge, error) {
	edges, err := s.edges.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	return edges, nil
}

// Order returns the workflow's nodes in execution order.
func (s *GraphService) Order(ctx context.Context, workflowID uuid.UUID) ([]uuid.UUID, error) {
	nodes, err := s.nodes.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	edges, err := s.edges.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	return graph.NewSnapshot(workflowID, nodes, edges).TopologicalOrder()
}

// load returns a mutable workflow and a snapshot of its current graph.
func (s *GraphService) load(ctx context.Context, op string, workflowID uuid.UUID) (*models.Workflow, *graph.Snapshot, error) {
	wf, err := s.workflows.FindByID(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	if !wf.IsMutable() {
		return nil, nil, errs.New(op, errs.ErrWorkflowArchived, "workflow %s is archived", wf.ID)
	}

	nodes, err := s.nodes.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	edges, err := s.edges.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load edges: %w", err)
	}
	return wf, graph.NewSnapshot(workflowID, nodes, edges), nil
}

func (s *GraphService) validateNode(ctx context.Context, wf *models.Workflow, snap *graph.Snapshot, node *models.Node) error {
	if node.Name == "" {
		return errs.New("graph.ValidateNode", errs.ErrInvalidParameter, "node name is required")
	}
	if err := graph.ValidateNode(snap, node); err != nil {
		return err
	}
	return s.checkScript(ctx, wf, node.ScriptRef())
}

// checkScript verifies the bound script exists and is visible to the workspace.
func (s *GraphService) checkScript(ctx context.Context, wf *models.Workflow, ref models.ScriptRef) error {
	const op = "graph.CheckScript"

	script, err := s.scripts.FindByID(ctx, ref.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return errs.New(op, errs.ErrInvalidReference, "script %s does not exist", ref)
	}
	if err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}
	if script.IsCustom != ref.Custom {
		return errs.New(op, errs.ErrInvalidReference, "script %s is not a %s script", ref.ID, kindOf(ref))
	}
	if ref.Custom && (script.WorkspaceID == nil || *script.WorkspaceID != wf.WorkspaceID) {
		return errs.New(op, errs.ErrInvalidReference, "custom script %s belongs to another workspace", ref.ID)
	}
	return nil
}

func kindOf(ref models.ScriptRef) string {
	if ref.Custom {
		return "custom"
	}
	return "global"
}
