package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"
	EventExecutionCancelled EventType = "execution.cancelled"
	EventExecutionTimeout   EventType = "execution.timeout"
	EventNodeStarted        EventType = "node.started"
	EventNodeCompleted      EventType = "node.completed"
	EventNodeFailed         EventType = "node.failed"
	EventNodeSkipped        EventType = "node.skipped"
)

// Event is the message published on a workspace channel.
type Event struct {
	Type        EventType              `json:"type"`
	WorkspaceID uuid.UUID              `json:"workspace_id"`
	WorkflowID  uuid.UUID              `json:"workflow_id,omitempty"`
	ExecutionID uuid.UUID              `json:"execution_id,omitempty"`
	NodeID      string                 `json:"node_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Channel returns the pub/sub channel for a workspace.
func Channel(workspaceID uuid.UUID) string {
	return "workspace:" + workspaceID.String()
}
