package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"gorm.io/gorm"
)

type TriggerRepository struct {
	*BaseRepository[models.Trigger]
}

func NewTriggerRepository(db *gorm.DB) *TriggerRepository {
	return &TriggerRepository{
		BaseRepository: NewBaseRepository[models.Trigger](db),
	}
}

func (r *TriggerRepository) FindByName(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Trigger, error) {
	var trigger models.Trigger
	err := r.DB().WithContext(ctx).
		Where("workspace_id = ? AND name = ?", workspaceID, name).
		First(&trigger).Error
	if err != nil {
		return nil, translate(err)
	}
	return &trigger, nil
}

func (r *TriggerRepository) FindByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]models.Trigger, error) {
	var triggers []models.Trigger
	err := r.DB().WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("is_default DESC, created_at ASC").
		Find(&triggers).Error
	return triggers, err
}

func (r *TriggerRepository) CountByWorkflowID(ctx context.Context, workflowID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB().WithContext(ctx).Model(&models.Trigger{}).
		Where("workflow_id = ?", workflowID).
		Count(&count).Error
	return count, err
}

func (r *TriggerRepository) FindByEvent(ctx context.Context, workspaceID uuid.UUID, eventName string) ([]models.Trigger, error) {
	var triggers []models.Trigger
	err := r.DB().WithContext(ctx).
		Where("workspace_id = ? AND type = ? AND effectively_enabled = ? AND config->>'event_name' = ?",
			workspaceID, models.TriggerTypeEvent, true, eventName).
		Find(&triggers).Error
	return triggers, err
}

func (r *TriggerRepository) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Trigger, error) {
	var triggers []models.Trigger
	err := r.DB().WithContext(ctx).
		Where("type = ? AND effectively_enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?",
			models.TriggerTypeScheduled, true, now).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&triggers).Error
	return triggers, err
}

func (r *TriggerRepository) RecordFire(ctx context.Context, id uuid.UUID, firedAt time.Time, nextRunAt *time.Time) error {
	return r.DB().WithContext(ctx).Model(&models.Trigger{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_fired_at": firedAt,
			"next_run_at":   nextRunAt,
			"fire_count":    gorm.Expr("fire_count + 1"),
		}).Error
}

func (r *TriggerRepository) SetNextRun(ctx context.Context, id uuid.UUID, nextRunAt *time.Time) error {
	result := r.DB().WithContext(ctx).Model(&models.Trigger{}).
		Where("id = ?", id).
		Update("next_run_at", nextRunAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
