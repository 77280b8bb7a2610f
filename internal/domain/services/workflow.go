package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/graph"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/rs/zerolog/log"
)

// Workflow errors
var (
	ErrWorkflowNotFound     = errors.New("workflow not found")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
)

type WorkflowService struct {
	workflows repositories.WorkflowStore
	nodes     repositories.NodeStore
	edges     repositories.EdgeStore
	triggers  *TriggerService
	locks     *WorkflowLocks
	now       func() time.Time
}

// NewWorkflowService creates a new WorkflowService with required repositories.
func NewWorkflowService(
	workflows repositories.WorkflowStore,
	nodes repositories.NodeStore,
	edges repositories.EdgeStore,
	triggers *TriggerService,
	locks *WorkflowLocks,
) *WorkflowService {
	if workflows == nil || triggers == nil {
		panic("workflow service: workflows and triggers are required")
	}
	return &WorkflowService{
		workflows: workflows,
		nodes:     nodes,
		edges:     edges,
		triggers:  triggers,
		locks:     locks,
		now:       time.Now,
	}
}

type CreateWorkflowInput struct {
	WorkspaceID uuid.UUID
	CreatedBy   uuid.UUID
	Name        string
	Description *string
	Priority    int
	Tags        []string
}

// Create creates a DRAFT workflow together with its default API trigger.
func (s *WorkflowService) Create(ctx context.Context, input CreateWorkflowInput) (*models.Workflow, error) {
	const op = "workflow.Create"

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrWorkflowNameRequired
	}
	priority := input.Priority
	if priority == 0 {
		priority = 1
	}
	if priority < 1 {
		return nil, errs.New(op, errs.ErrInvalidParameter, "priority must be >= 1, got %d", priority)
	}
	if err := s.checkName(ctx, op, input.WorkspaceID, name, uuid.Nil); err != nil {
		return nil, err
	}

	workflow := &models.Workflow{
		ID:          uuid.New(),
		WorkspaceID: input.WorkspaceID,
		CreatedBy:   input.CreatedBy,
		Name:        name,
		Description: input.Description,
		Priority:    priority,
		Status:      models.WorkflowStatusDraft,
		Tags:        input.Tags,
	}

	if err := s.workflows.Create(ctx, workflow); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, errs.New(op, errs.ErrDuplicateName, "workflow %q already exists in workspace", name)
		}
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	if _, err := s.triggers.createDefault(ctx, workflow); err != nil {
		if derr := s.workflows.Delete(ctx, workflow.ID); derr != nil {
			log.Error().Err(derr).Str("workflow_id", workflow.ID.String()).Msg("Failed to roll back workflow")
		}
		return nil, err
	}

	log.Info().
		Str("workflow_id", workflow.ID.String()).
		Str("workspace_id", input.WorkspaceID.String()).
		Str("name", name).
		Msg("Workflow created")

	return workflow, nil
}

// GetByID returns a workflow by its ID.
func (s *WorkflowService) GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	workflow, err := s.workflows.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return workflow, nil
}

// GetByWorkspace returns paginated workflows for a workspace.
func (s *WorkflowService) GetByWorkspace(ctx context.Context, workspaceID uuid.UUID, opts *repositories.ListOptions) ([]models.Workflow, int64, error) {
	workflows, total, err := s.workflows.FindByWorkspaceID(ctx, workspaceID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get workflows: %w", err)
	}
	return workflows, total, nil
}

type UpdateWorkflowInput struct {
	Name        *string
	Description *string
	Priority    *int
	Tags        []string
}

func (s *WorkflowService) Update(ctx context.Context, id uuid.UUID, input UpdateWorkflowInput) (*models.Workflow, error) {
	const op = "workflow.Update"

	unlock := s.locks.Lock(id)
	defer unlock()

	workflow, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !workflow.IsMutable() {
		return nil, errs.New(op, errs.ErrWorkflowArchived, "workflow %s is archived", id)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrWorkflowNameRequired
		}
		if err := s.checkName(ctx, op, workflow.WorkspaceID, name, workflow.ID); err != nil {
			return nil, err
		}
		workflow.Name = name
	}
	if input.Description != nil {
		workflow.Description = input.Description
	}
	if input.Priority != nil {
		if *input.Priority < 1 {
			return nil, errs.New(op, errs.ErrInvalidParameter, "priority must be >= 1, got %d", *input.Priority)
		}
		workflow.Priority = *input.Priority
	}
	if input.Tags != nil {
		workflow.Tags = input.Tags
	}

	if err := s.workflows.Update(ctx, workflow); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, errs.New(op, errs.ErrDuplicateName, "workflow %q already exists in workspace", workflow.Name)
		}
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	log.Info().Str("workflow_id", id.String()).Msg("Workflow updated")
	return workflow, nil
}

// Delete removes the workflow with its nodes, edges and triggers. Past
// executions are kept.
func (s *WorkflowService) Delete(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.workflows.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
		}
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	log.Info().Str("workflow_id", id.String()).Msg("Workflow deleted")
	return nil
}

// Activate validates the whole graph and makes the workflow's triggers effective.
func (s *WorkflowService) Activate(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	return s.transition(ctx, id, models.WorkflowEventActivate)
}

func (s *WorkflowService) Deactivate(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	return s.transition(ctx, id, models.WorkflowEventDeactivate)
}

func (s *WorkflowService) Archive(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	return s.transition(ctx, id, models.WorkflowEventArchive)
}

// SetDraft returns a DEACTIVATED or ARCHIVED workflow to DRAFT.
func (s *WorkflowService) SetDraft(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	return s.transition(ctx, id, models.WorkflowEventSetDraft)
}

func (s *WorkflowService) transition(ctx context.Context, id uuid.UUID, event models.WorkflowEvent) (*models.Workflow, error) {
	const op = "workflow.Transition"

	unlock := s.locks.Lock(id)
	defer unlock()

	workflow, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, ok := workflow.Status.Next(event)
	if !ok {
		if workflow.Status == models.WorkflowStatusArchived {
			return nil, errs.New(op, errs.ErrWorkflowArchived, "workflow %s is archived", id)
		}
		return nil, errs.New(op, errs.ErrInvalidTransition, "cannot %s a %s workflow", event, workflow.Status)
	}

	if event == models.WorkflowEventActivate {
		if err := s.checkActivatable(ctx, workflow); err != nil {
			return nil, err
		}
	}

	before := *workflow
	previous := workflow.Status
	now := s.now()
	workflow.Status = next
	switch next {
	case models.WorkflowStatusActive:
		workflow.ActivatedAt = &now
	case models.WorkflowStatusArchived:
		workflow.ArchivedAt = &now
	case models.WorkflowStatusDraft:
		workflow.ArchivedAt = nil
	}

	if err := s.workflows.Update(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow status: %w", err)
	}
	if err := s.triggers.cascade(ctx, workflow); err != nil {
		s.restore(ctx, &before)
		return nil, err
	}

	log.Info().
		Str("workflow_id", id.String()).
		Str("from", string(previous)).
		Str("to", string(next)).
		Msg("Workflow status changed")

	return workflow, nil
}

// restore puts back the status a failed transition replaced and resyncs the
// triggers that were already cascaded.
func (s *WorkflowService) restore(ctx context.Context, before *models.Workflow) {
	l := log.With().Str("workflow_id", before.ID.String()).Logger()
	if err := s.workflows.Update(ctx, before); err != nil {
		l.Error().Err(err).Msg("Failed to restore workflow status")
		return
	}
	if err := s.triggers.cascade(ctx, before); err != nil {
		l.Error().Err(err).Msg("Failed to restore trigger enablement")
		return
	}
	l.Warn().Str("status", string(before.Status)).Msg("Workflow status change rolled back")
}

func (s *WorkflowService) checkActivatable(ctx context.Context, workflow *models.Workflow) error {
	nodes, err := s.nodes.FindByWorkflowID(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to load nodes: %w", err)
	}
	if len(nodes) == 0 {
		return errs.New("workflow.Activate", errs.ErrEmptyWorkflow, "workflow %s has no nodes", workflow.ID)
	}
	edges, err := s.edges.FindByWorkflowID(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to load edges: %w", err)
	}
	return graph.ValidateGraph(graph.NewSnapshot(workflow.ID, nodes, edges))
}

func (s *WorkflowService) checkName(ctx context.Context, op string, workspaceID uuid.UUID, name string, self uuid.UUID) error {
	existing, err := s.workflows.FindByName(ctx, workspaceID, name)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check workflow name: %w", err)
	}
	if existing.ID != self {
		return errs.New(op, errs.ErrDuplicateName, "workflow %q already exists in workspace", name)
	}
	return nil
}
