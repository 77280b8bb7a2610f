package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"gorm.io/gorm"
)

type CredentialRepository struct {
	*BaseRepository[models.Credential]
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{
		BaseRepository: NewBaseRepository[models.Credential](db),
	}
}

// FindByID scopes the lookup to the workspace so references cannot cross tenants.
func (r *CredentialRepository) FindByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Credential, error) {
	var credential models.Credential
	err := r.DB().WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		First(&credential).Error
	if err != nil {
		return nil, translate(err)
	}
	return &credential, nil
}

func (r *CredentialRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	return r.DB().WithContext(ctx).Model(&models.Credential{}).
		Where("id = ?", id).
		Update("last_used_at", time.Now()).Error
}

type VariableRepository struct {
	*BaseRepository[models.Variable]
}

func NewVariableRepository(db *gorm.DB) *VariableRepository {
	return &VariableRepository{
		BaseRepository: NewBaseRepository[models.Variable](db),
	}
}

func (r *VariableRepository) FindByName(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Variable, error) {
	var variable models.Variable
	err := r.DB().WithContext(ctx).
		Where("workspace_id = ? AND name = ?", workspaceID, name).
		First(&variable).Error
	if err != nil {
		return nil, translate(err)
	}
	return &variable, nil
}

type ScriptRepository struct {
	*BaseRepository[models.Script]
}

func NewScriptRepository(db *gorm.DB) *ScriptRepository {
	return &ScriptRepository{
		BaseRepository: NewBaseRepository[models.Script](db),
	}
}
