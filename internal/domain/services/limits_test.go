package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitsService_ForWorkspace(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.Workspaces.SetPlans([]models.Plan{
		{ID: "pro", Name: "Pro", MaxConcurrentExecutions: 20, MaxParallelNodes: 8},
	})
	engine := defaultEngine()
	limits := NewLimitsService(store.Workspaces, &engine)

	pro := &models.Workspace{ID: uuid.New(), Name: "acme", Slug: "acme", PlanID: "pro"}
	unplanned := &models.Workspace{ID: uuid.New(), Name: "solo", Slug: "solo", PlanID: "legacy"}
	require.NoError(t, store.Workspaces.Create(ctx, pro))
	require.NoError(t, store.Workspaces.Create(ctx, unplanned))

	tests := []struct {
		name        string
		workspaceID uuid.UUID
		want        models.PlanLimits
	}{
		{
			name:        "unknown workspace gets defaults",
			workspaceID: uuid.New(),
			want:        limits.Defaults(),
		},
		{
			name:        "workspace without a known plan gets defaults",
			workspaceID: unplanned.ID,
			want:        limits.Defaults(),
		},
		{
			name:        "plan overrides only the limits it sets",
			workspaceID: pro.ID,
			want: models.PlanLimits{
				MaxConcurrentExecutions: 20,
				MaxTriggersPerWorkflow:  engine.MaxTriggersPerWorkflow,
				MinTriggersPerWorkflow:  engine.MinTriggersPerWorkflow,
				MaxParallelNodes:        8,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := limits.ForWorkspace(ctx, tt.workspaceID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
