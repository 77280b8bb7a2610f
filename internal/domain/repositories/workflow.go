package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"gorm.io/gorm"
)

type WorkflowRepository struct {
	*BaseRepository[models.Workflow]
}

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{
		BaseRepository: NewBaseRepository[models.Workflow](db),
	}
}

func (r *WorkflowRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workflow_id = ?", id).Delete(&models.Edge{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", id).Delete(&models.Node{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", id).Delete(&models.Trigger{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Workflow{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *WorkflowRepository) FindByName(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Workflow, error) {
	var workflow models.Workflow
	err := r.DB().WithContext(ctx).
		Where("workspace_id = ? AND name = ?", workspaceID, name).
		First(&workflow).Error
	if err != nil {
		return nil, translate(err)
	}
	return &workflow, nil
}

func (r *WorkflowRepository) FindByWorkspaceID(ctx context.Context, workspaceID uuid.UUID, opts *ListOptions) ([]models.Workflow, int64, error) {
	var workflows []models.Workflow
	var total int64

	query := r.DB().WithContext(ctx).Model(&models.Workflow{}).Where("workspace_id = ?", workspaceID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := paginate(query, opts).Find(&workflows).Error
	return workflows, total, err
}
