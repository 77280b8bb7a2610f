package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"gorm.io/gorm"
)

type ExecutionRepository struct {
	*BaseRepository[models.Execution]
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{
		BaseRepository: NewBaseRepository[models.Execution](db),
	}
}

func (r *ExecutionRepository) FindByWorkflowID(ctx context.Context, workflowID uuid.UUID, opts *ListOptions) ([]models.Execution, int64, error) {
	var executions []models.Execution
	var total int64

	query := r.DB().WithContext(ctx).Model(&models.Execution{}).Where("workflow_id = ?", workflowID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := paginate(query, opts).Find(&executions).Error
	return executions, total, err
}

// ApplyTransition moves execution along event for a store about to persist it.
func ApplyTransition(execution *models.Execution, event models.ExecutionEvent) (models.ExecutionStatus, error) {
	from, ok := execution.Apply(event)
	if !ok {
		return from, errs.New("execution.Transition", errs.ErrInvalidTransition,
			"execution %s cannot %s from %s", execution.ID, event, from)
	}
	return from, nil
}

func (r *ExecutionRepository) Transition(ctx context.Context, execution *models.Execution, event models.ExecutionEvent) error {
	from, err := ApplyTransition(execution, event)
	if err != nil {
		return err
	}
	result := r.DB().WithContext(ctx).Model(&models.Execution{}).
		Where("id = ? AND status = ?", execution.ID, from).
		Select("*").
		Omit("id", "created_at").
		Updates(execution)
	if result.Error != nil {
		execution.Status = from
		return result.Error
	}
	if result.RowsAffected == 0 {
		execution.Status = from
		return ErrStaleState
	}
	return nil
}

func (r *ExecutionRepository) IncrementRetryCount(ctx context.Context, id uuid.UUID) error {
	return r.DB().WithContext(ctx).Model(&models.Execution{}).
		Where("id = ?", id).
		Update("retry_count", gorm.Expr("retry_count + 1")).Error
}

func (r *ExecutionRepository) CountRunning(ctx context.Context, workspaceID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB().WithContext(ctx).Model(&models.Execution{}).
		Where("workspace_id = ? AND status = ?", workspaceID, models.ExecutionStatusRunning).
		Count(&count).Error
	return count, err
}

// FindStalePending returns PENDING executions created before olderThan,
// oldest first.
func (r *ExecutionRepository) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Execution, error) {
	var executions []models.Execution
	err := r.DB().WithContext(ctx).
		Where("status = ? AND created_at < ?", models.ExecutionStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&executions).Error
	return executions, err
}

// DeleteFinishedBefore removes up to limit terminal executions that ended
// before cutoff together with their recorded inputs.
func (r *ExecutionRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	var deleted int64
	err := r.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := tx.Model(&models.Execution{}).
			Where("status IN ? AND ended_at < ?", terminalStatuses, cutoff).
			Order("ended_at ASC").
			Limit(limit).
			Pluck("id", &ids).Error
		if err != nil || len(ids) == 0 {
			return err
		}

		if err := tx.Where("execution_id IN ?", ids).Delete(&models.ExecutionInput{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&models.Execution{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

var terminalStatuses = []models.ExecutionStatus{
	models.ExecutionStatusCompleted,
	models.ExecutionStatusFailed,
	models.ExecutionStatusCancelled,
	models.ExecutionStatusTimeout,
}

type ExecutionInputRepository struct {
	*BaseRepository[models.ExecutionInput]
}

func NewExecutionInputRepository(db *gorm.DB) *ExecutionInputRepository {
	return &ExecutionInputRepository{
		BaseRepository: NewBaseRepository[models.ExecutionInput](db),
	}
}

func (r *ExecutionInputRepository) FindByExecutionID(ctx context.Context, executionID uuid.UUID) ([]models.ExecutionInput, error) {
	var inputs []models.ExecutionInput
	err := r.DB().WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("created_at ASC").
		Find(&inputs).Error
	return inputs, err
}

func (r *ExecutionInputRepository) FindByExecutionAndNode(ctx context.Context, executionID, nodeID uuid.UUID) (*models.ExecutionInput, error) {
	var input models.ExecutionInput
	err := r.DB().WithContext(ctx).
		Where("execution_id = ? AND node_id = ?", executionID, nodeID).
		First(&input).Error
	if err != nil {
		return nil, translate(err)
	}
	return &input, nil
}
