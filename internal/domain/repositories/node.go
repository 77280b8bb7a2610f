package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"gorm.io/gorm"
)

type NodeRepository struct {
	*BaseRepository[models.Node]
}

func NewNodeRepository(db *gorm.DB) *NodeRepository {
	return &NodeRepository{
		BaseRepository: NewBaseRepository[models.Node](db),
	}
}

func (r *NodeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("from_node_id = ? OR to_node_id = ?", id, id).Delete(&models.Edge{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Node{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *NodeRepository) FindByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]models.Node, error) {
	var nodes []models.Node
	err := r.DB().WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("created_at ASC").
		Find(&nodes).Error
	return nodes, err
}

func (r *NodeRepository) CountByWorkflowID(ctx context.Context, workflowID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB().WithContext(ctx).Model(&models.Node{}).
		Where("workflow_id = ?", workflowID).
		Count(&count).Error
	return count, err
}

type EdgeRepository struct {
	*BaseRepository[models.Edge]
}

func NewEdgeRepository(db *gorm.DB) *EdgeRepository {
	return &EdgeRepository{
		BaseRepository: NewBaseRepository[models.Edge](db),
	}
}

func (r *EdgeRepository) FindByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]models.Edge, error) {
	var edges []models.Edge
	err := r.DB().WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("created_at ASC").
		Find(&edges).Error
	return edges, err
}
