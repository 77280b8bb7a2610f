package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const ScriptLanguageJavaScript = "javascript"

// Script is runnable code bound to nodes. Global scripts have no workspace;
// custom scripts belong to the workspace that wrote them.
type Script struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WorkspaceID *uuid.UUID     `gorm:"type:uuid;index" json:"workspace_id,omitempty"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	Language    string         `gorm:"size:20;not null;default:javascript" json:"language"`
	Source      string         `gorm:"type:text;not null" json:"-"`
	IsCustom    bool           `gorm:"default:false" json:"is_custom"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Script) TableName() string {
	return "scripts"
}

// ScriptRef identifies the script a node runs.
type ScriptRef struct {
	ID     uuid.UUID `json:"id"`
	Custom bool      `json:"custom"`
}

func (r ScriptRef) String() string {
	if r.Custom {
		return "custom:" + r.ID.String()
	}
	return "global:" + r.ID.String()
}
