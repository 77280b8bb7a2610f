package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/redis/go-redis/v9"
)

// Broadcaster is the part of the redis client the publisher uses.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher fans execution progress out to workspace subscribers.
type Publisher struct {
	redis Broadcaster
	now   func() time.Time
}

func NewPublisher(client Broadcaster) *Publisher {
	return &Publisher{redis: client, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, event *Event) error {
	event.Timestamp = p.now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.redis.Publish(ctx, Channel(event.WorkspaceID), data).Err()
}

func (p *Publisher) ExecutionStarted(ctx context.Context, execution *models.Execution) error {
	return p.Publish(ctx, &Event{
		Type:        EventExecutionStarted,
		WorkspaceID: execution.WorkspaceID,
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
		Data: map[string]interface{}{
			"trigger_type": execution.TriggerType,
			"status":       string(execution.Status),
		},
	})
}

func (p *Publisher) ExecutionFinished(ctx context.Context, execution *models.Execution) error {
	data := map[string]interface{}{
		"status":      string(execution.Status),
		"retry_count": execution.RetryCount,
	}
	if execution.DurationMs != nil {
		data["duration_ms"] = *execution.DurationMs
	}
	if execution.ErrorMessage != nil {
		data["error"] = *execution.ErrorMessage
	}
	if execution.ErrorNodeID != nil {
		data["error_node_id"] = execution.ErrorNodeID.String()
	}

	return p.Publish(ctx, &Event{
		Type:        executionEvent(execution.Status),
		WorkspaceID: execution.WorkspaceID,
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
		Data:        data,
	})
}

func (p *Publisher) NodeStarted(ctx context.Context, execution *models.Execution, node *models.Node, attempt int) error {
	return p.Publish(ctx, &Event{
		Type:        EventNodeStarted,
		WorkspaceID: execution.WorkspaceID,
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
		NodeID:      node.ID.String(),
		Data: map[string]interface{}{
			"node_name": node.Name,
			"attempt":   attempt,
			"status":    "RUNNING",
		},
	})
}

func (p *Publisher) NodeFinished(ctx context.Context, execution *models.Execution, result models.NodeResult) error {
	data := map[string]interface{}{
		"node_name": result.NodeName,
		"status":    result.Status,
		"attempts":  result.Attempts,
	}
	if result.Error != "" {
		data["error"] = result.Error
	}
	if result.Code != "" {
		data["code"] = result.Code
	}

	return p.Publish(ctx, &Event{
		Type:        nodeEvent(result.Status),
		WorkspaceID: execution.WorkspaceID,
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
		NodeID:      result.NodeID.String(),
		Data:        data,
	})
}

func executionEvent(status models.ExecutionStatus) EventType {
	switch status {
	case models.ExecutionStatusCompleted:
		return EventExecutionCompleted
	case models.ExecutionStatusCancelled:
		return EventExecutionCancelled
	case models.ExecutionStatusTimeout:
		return EventExecutionTimeout
	default:
		return EventExecutionFailed
	}
}

func nodeEvent(status string) EventType {
	switch status {
	case models.NodeStatusCompleted:
		return EventNodeCompleted
	case models.NodeStatusSkipped, models.NodeStatusCancelled:
		return EventNodeSkipped
	default:
		return EventNodeFailed
	}
}
