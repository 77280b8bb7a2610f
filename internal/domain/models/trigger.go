package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TriggerType string

const (
	TriggerTypeAPI       TriggerType = "API"
	TriggerTypeScheduled TriggerType = "SCHEDULED"
	TriggerTypeWebhook   TriggerType = "WEBHOOK"
	TriggerTypeEvent     TriggerType = "EVENT"
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerTypeAPI, TriggerTypeScheduled, TriggerTypeWebhook, TriggerTypeEvent:
		return true
	}
	return false
}

// TriggerState is the individually stored enablement of a trigger.
type TriggerState string

const (
	TriggerStateEnabled  TriggerState = "ENABLED"
	TriggerStateDisabled TriggerState = "DISABLED"
)

// TriggerTypeTest marks executions started by a manual test run.
const TriggerTypeTest = "TEST"

type Trigger struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WorkflowID         uuid.UUID      `gorm:"type:uuid;index;not null" json:"workflow_id"`
	WorkspaceID        uuid.UUID      `gorm:"type:uuid;index;uniqueIndex:idx_triggers_workspace_name,where:deleted_at IS NULL;not null" json:"workspace_id"`
	Name               string         `gorm:"size:255;uniqueIndex:idx_triggers_workspace_name,where:deleted_at IS NULL;not null" json:"name"`
	Description        *string        `gorm:"type:text" json:"description,omitempty"`
	Type               TriggerType    `gorm:"size:20;not null;index" json:"type"`
	Config             JSON           `gorm:"type:jsonb;default:'{}'" json:"config"`
	InputMapping       JSON           `gorm:"type:jsonb;default:'{}'" json:"input_mapping"`
	IsEnabled          bool           `gorm:"default:true" json:"is_enabled"`
	IsDefault          bool           `gorm:"default:false" json:"is_default"`
	EffectivelyEnabled bool           `gorm:"default:false;index" json:"effectively_enabled"`
	NextRunAt          *time.Time     `gorm:"index" json:"next_run_at,omitempty"`
	LastFiredAt        *time.Time     `json:"last_fired_at,omitempty"`
	FireCount          int            `gorm:"default:0" json:"fire_count"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Trigger) TableName() string {
	return "triggers"
}

func (t *Trigger) State() TriggerState {
	if t.IsEnabled {
		return TriggerStateEnabled
	}
	return TriggerStateDisabled
}

// Effective computes the enablement the engine honours for a workflow in status.
func (t *Trigger) Effective(status WorkflowStatus) bool {
	return status == WorkflowStatusActive && t.IsEnabled
}

// GetWorkspaceID implements the WorkspaceOwned interface for authorization checks
func (t *Trigger) GetWorkspaceID() uuid.UUID {
	return t.WorkspaceID
}
