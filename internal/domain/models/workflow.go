package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WorkflowStatus string

const (
	WorkflowStatusDraft       WorkflowStatus = "DRAFT"
	WorkflowStatusActive      WorkflowStatus = "ACTIVE"
	WorkflowStatusDeactivated WorkflowStatus = "DEACTIVATED"
	WorkflowStatusArchived    WorkflowStatus = "ARCHIVED"
)

// WorkflowEvent drives the workflow status machine.
type WorkflowEvent string

const (
	WorkflowEventActivate   WorkflowEvent = "activate"
	WorkflowEventDeactivate WorkflowEvent = "deactivate"
	WorkflowEventArchive    WorkflowEvent = "archive"
	WorkflowEventSetDraft   WorkflowEvent = "set_draft"
)

// ARCHIVED leaves only through set_draft; see DESIGN.md for the restore policy.
var workflowTransitions = map[WorkflowStatus]map[WorkflowEvent]WorkflowStatus{
	WorkflowStatusDraft: {
		WorkflowEventActivate: WorkflowStatusActive,
		WorkflowEventArchive:  WorkflowStatusArchived,
	},
	WorkflowStatusActive: {
		WorkflowEventDeactivate: WorkflowStatusDeactivated,
		WorkflowEventArchive:    WorkflowStatusArchived,
	},
	WorkflowStatusDeactivated: {
		WorkflowEventActivate: WorkflowStatusActive,
		WorkflowEventArchive:  WorkflowStatusArchived,
		WorkflowEventSetDraft: WorkflowStatusDraft,
	},
	WorkflowStatusArchived: {
		WorkflowEventSetDraft: WorkflowStatusDraft,
	},
}

// Next returns the status reached from s on event, or false if the
// transition is not allowed.
func (s WorkflowStatus) Next(event WorkflowEvent) (WorkflowStatus, bool) {
	next, ok := workflowTransitions[s][event]
	return next, ok
}

func (s WorkflowStatus) Valid() bool {
	_, ok := workflowTransitions[s]
	return ok
}

type Workflow struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;index;uniqueIndex:idx_workflows_workspace_name,where:deleted_at IS NULL;not null" json:"workspace_id"`
	CreatedBy   uuid.UUID      `gorm:"type:uuid;not null" json:"created_by"`
	Name        string         `gorm:"size:255;uniqueIndex:idx_workflows_workspace_name,where:deleted_at IS NULL;not null" json:"name"`
	Description *string        `gorm:"type:text" json:"description,omitempty"`
	Priority    int            `gorm:"not null;default:1" json:"priority"`
	Status      WorkflowStatus `gorm:"size:20;not null;default:DRAFT;index" json:"status"`
	Tags        StringArray    `gorm:"type:text[]" json:"tags"`
	ActivatedAt *time.Time     `json:"activated_at,omitempty"`
	ArchivedAt  *time.Time     `json:"archived_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Workflow) TableName() string {
	return "workflows"
}

// IsMutable reports whether nodes, edges and triggers of the workflow may change.
func (w *Workflow) IsMutable() bool {
	return w.Status != WorkflowStatusArchived
}

// GetWorkspaceID implements the WorkspaceOwned interface for authorization checks
func (w *Workflow) GetWorkspaceID() uuid.UUID {
	return w.WorkspaceID
}
