package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"gorm.io/gorm"
)

type WorkspaceRepository struct {
	*BaseRepository[models.Workspace]
}

func NewWorkspaceRepository(db *gorm.DB) *WorkspaceRepository {
	return &WorkspaceRepository{
		BaseRepository: NewBaseRepository[models.Workspace](db),
	}
}

func (r *WorkspaceRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	var workspace models.Workspace
	err := r.DB().WithContext(ctx).Preload("Plan").First(&workspace, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &workspace, nil
}

func (r *WorkspaceRepository) UpdatePlan(ctx context.Context, workspaceID uuid.UUID, planID string) error {
	return r.DB().WithContext(ctx).Model(&models.Workspace{}).
		Where("id = ?", workspaceID).
		Update("plan_id", planID).Error
}
