package models

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
	ExecutionStatusTimeout   ExecutionStatus = "TIMEOUT"
)

// ExecutionEvent drives the execution status machine.
type ExecutionEvent string

const (
	ExecutionEventStart    ExecutionEvent = "start"
	ExecutionEventComplete ExecutionEvent = "complete"
	ExecutionEventFail     ExecutionEvent = "fail"
	ExecutionEventCancel   ExecutionEvent = "cancel"
	ExecutionEventTimeout  ExecutionEvent = "timeout"
)

var executionTransitions = map[ExecutionStatus]map[ExecutionEvent]ExecutionStatus{
	ExecutionStatusPending: {
		ExecutionEventStart:  ExecutionStatusRunning,
		ExecutionEventCancel: ExecutionStatusCancelled,
		ExecutionEventFail:   ExecutionStatusFailed,
	},
	ExecutionStatusRunning: {
		ExecutionEventComplete: ExecutionStatusCompleted,
		ExecutionEventFail:     ExecutionStatusFailed,
		ExecutionEventCancel:   ExecutionStatusCancelled,
		ExecutionEventTimeout:  ExecutionStatusTimeout,
	},
}

// Next returns the status reached from s on event, or false if the
// transition is not allowed. Terminal states accept no events.
func (s ExecutionStatus) Next(event ExecutionEvent) (ExecutionStatus, bool) {
	next, ok := executionTransitions[s][event]
	return next, ok
}

// Apply moves e to the status reached on event and returns the status it
// left. e is left unchanged when the transition is not allowed.
func (e *Execution) Apply(event ExecutionEvent) (ExecutionStatus, bool) {
	from := e.Status
	next, ok := from.Next(event)
	if !ok {
		return from, false
	}
	e.Status = next
	return from, true
}

func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusTimeout:
		return true
	}
	return false
}

// TriggeredByTest is recorded as the actor of manual test runs.
const TriggeredByTest = "test"

type Execution struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WorkflowID   uuid.UUID       `gorm:"type:uuid;index;not null" json:"workflow_id"`
	WorkspaceID  uuid.UUID       `gorm:"type:uuid;index;not null" json:"workspace_id"`
	TriggerID    *uuid.UUID      `gorm:"type:uuid;index" json:"trigger_id,omitempty"`
	Status       ExecutionStatus `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	TriggerType  string          `gorm:"size:20;not null" json:"trigger_type"`
	TriggerData  JSON            `gorm:"type:jsonb" json:"trigger_data,omitempty"`
	Results      JSON            `gorm:"type:jsonb" json:"results,omitempty"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	ErrorNodeID  *uuid.UUID      `gorm:"type:uuid" json:"error_node_id,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
	DurationMs   *int64          `json:"duration_ms,omitempty"`
	RetryCount   int             `gorm:"default:0" json:"retry_count"`
	MaxRetries   int             `gorm:"default:0" json:"max_retries"`
	IsRetry      bool            `gorm:"default:false" json:"is_retry"`
	RetryOfID    *uuid.UUID      `gorm:"type:uuid" json:"retry_of_id,omitempty"`
	TriggeredBy  string          `gorm:"size:100;not null" json:"triggered_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Execution) TableName() string {
	return "executions"
}

// GetWorkspaceID implements the WorkspaceOwned interface for authorization checks
func (e *Execution) GetWorkspaceID() uuid.UUID {
	return e.WorkspaceID
}

// ExecutionInput is the immutable snapshot of the parameters a node ran with
// in one execution. Secret values are stored as their reference strings.
type ExecutionInput struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ExecutionID uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_execution_input_node" json:"execution_id"`
	NodeID      uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_execution_input_node" json:"node_id"`
	NodeName    string      `gorm:"size:255;not null" json:"node_name"`
	Values      JSON        `gorm:"type:jsonb;not null;default:'{}'" json:"values"`
	References  JSON        `gorm:"type:jsonb;default:'{}'" json:"references,omitempty"`
	Redacted    StringArray `gorm:"type:text[]" json:"redacted,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (ExecutionInput) TableName() string {
	return "execution_inputs"
}

// NodeResult is the per-node entry stored in Execution.Results.
type NodeResult struct {
	NodeID   uuid.UUID              `json:"node_id"`
	NodeName string                 `json:"node_name"`
	Status   string                 `json:"status"`
	Attempts int                    `json:"attempts"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Code     string                 `json:"code,omitempty"`
}

// Node result statuses
const (
	NodeStatusCompleted = "COMPLETED"
	NodeStatusFailed    = "FAILED"
	NodeStatusTimeout   = "TIMEOUT"
	NodeStatusSkipped   = "SKIPPED"
	NodeStatusCancelled = "CANCELLED"
)
