package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultNodeMaxRetries     = 3
	DefaultNodeTimeoutSeconds = 300
)

type Node struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WorkflowID     uuid.UUID    `gorm:"type:uuid;index;uniqueIndex:idx_nodes_workflow_name;not null" json:"workflow_id"`
	Name           string       `gorm:"size:255;uniqueIndex:idx_nodes_workflow_name;not null" json:"name"`
	ScriptID       *uuid.UUID   `gorm:"type:uuid" json:"script_id,omitempty"`
	CustomScriptID *uuid.UUID   `gorm:"type:uuid" json:"custom_script_id,omitempty"`
	InputParams    ParameterMap `gorm:"type:jsonb;not null;default:'{}'" json:"input_params"`
	OutputParams   ParameterMap `gorm:"type:jsonb;not null;default:'{}'" json:"output_params"`
	MaxRetries     int          `gorm:"not null;default:3" json:"max_retries"`
	TimeoutSeconds int          `gorm:"not null;default:300" json:"timeout_seconds"`
	MetaData       JSON         `gorm:"type:jsonb;default:'{}'" json:"meta_data,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (Node) TableName() string {
	return "nodes"
}

// ScriptRef returns the script the node is bound to.
func (n *Node) ScriptRef() ScriptRef {
	if n.CustomScriptID != nil {
		return ScriptRef{ID: *n.CustomScriptID, Custom: true}
	}
	if n.ScriptID != nil {
		return ScriptRef{ID: *n.ScriptID}
	}
	return ScriptRef{}
}

// Timeout returns the per-attempt deadline.
func (n *Node) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return DefaultNodeTimeoutSeconds * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

type Edge struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WorkflowID uuid.UUID `gorm:"type:uuid;index;not null" json:"workflow_id"`
	FromNodeID uuid.UUID `gorm:"type:uuid;index;not null" json:"from_node_id"`
	ToNodeID   uuid.UUID `gorm:"type:uuid;index;not null" json:"to_node_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Edge) TableName() string {
	return "edges"
}
