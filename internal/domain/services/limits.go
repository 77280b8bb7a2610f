package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
)

// LimitsService resolves the plan limits of a workspace. Limits the plan
// leaves unset fall back to the engine configuration.
type LimitsService struct {
	workspaces repositories.WorkspaceStore
	defaults   models.PlanLimits
}

func NewLimitsService(workspaces repositories.WorkspaceStore, cfg *config.EngineConfig) *LimitsService {
	return &LimitsService{
		workspaces: workspaces,
		defaults: models.PlanLimits{
			MaxConcurrentExecutions: cfg.MaxConcurrentExecutions,
			MaxTriggersPerWorkflow:  cfg.MaxTriggersPerWorkflow,
			MinTriggersPerWorkflow:  cfg.MinTriggersPerWorkflow,
			MaxParallelNodes:        cfg.MaxParallelNodes,
		},
	}
}

// ForWorkspace returns the effective limits. Unknown workspaces get the defaults.
func (s *LimitsService) ForWorkspace(ctx context.Context, workspaceID uuid.UUID) (models.PlanLimits, error) {
	ws, err := s.workspaces.FindByID(ctx, workspaceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		return models.PlanLimits{}, fmt.Errorf("failed to load workspace plan: %w", err)
	}
	return s.defaults.Merge(ws.Plan), nil
}

func (s *LimitsService) Defaults() models.PlanLimits {
	return s.defaults
}
