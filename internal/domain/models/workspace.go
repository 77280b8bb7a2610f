package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Workspace struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OwnerID     uuid.UUID      `gorm:"type:uuid;index;not null" json:"owner_id"`
	Name        string         `gorm:"size:100;not null" json:"name"`
	Slug        string         `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Description *string        `gorm:"type:text" json:"description,omitempty"`
	PlanID      string         `gorm:"size:50;default:free" json:"plan_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Plan *Plan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

// Plan carries the limits the engine consults before admitting work.
// A zero limit means the configured default applies.
type Plan struct {
	ID                      string    `gorm:"size:50;primaryKey" json:"id"`
	Name                    string    `gorm:"size:100;not null" json:"name"`
	MaxConcurrentExecutions int       `gorm:"not null;default:0" json:"max_concurrent_executions"`
	MaxTriggersPerWorkflow  int       `gorm:"not null;default:0" json:"max_triggers_per_workflow"`
	MaxParallelNodes        int       `gorm:"not null;default:0" json:"max_parallel_nodes"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plans"
}

// PlanLimits are the effective limits for one workspace.
type PlanLimits struct {
	MaxConcurrentExecutions int `json:"max_concurrent_executions"`
	MaxTriggersPerWorkflow  int `json:"max_triggers_per_workflow"`
	MinTriggersPerWorkflow  int `json:"min_triggers_per_workflow"`
	MaxParallelNodes        int `json:"max_parallel_nodes"`
}

// Merge fills zero plan values from defaults.
func (l PlanLimits) Merge(p *Plan) PlanLimits {
	if p == nil {
		return l
	}
	if p.MaxConcurrentExecutions > 0 {
		l.MaxConcurrentExecutions = p.MaxConcurrentExecutions
	}
	if p.MaxTriggersPerWorkflow > 0 {
		l.MaxTriggersPerWorkflow = p.MaxTriggersPerWorkflow
	}
	if p.MaxParallelNodes > 0 {
		l.MaxParallelNodes = p.MaxParallelNodes
	}
	return l
}

// DefaultPlans are seeded on migration.
var DefaultPlans = []Plan{
	{ID: "free", Name: "Free", MaxConcurrentExecutions: 2, MaxTriggersPerWorkflow: 5, MaxParallelNodes: 2},
	{ID: "pro", Name: "Pro", MaxConcurrentExecutions: 20, MaxTriggersPerWorkflow: 25, MaxParallelNodes: 8},
	{ID: "business", Name: "Business", MaxConcurrentExecutions: 100, MaxTriggersPerWorkflow: 100, MaxParallelNodes: 32},
}
