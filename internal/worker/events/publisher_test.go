package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	event   Event
}

type fakeBroadcaster struct {
	messages []published
}

func (f *fakeBroadcaster) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	var event Event
	_ = json.Unmarshal(message.([]byte), &event)
	f.messages = append(f.messages, published{channel: channel, event: event})

	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func TestPublisher_ExecutionFinished(t *testing.T) {
	nodeID := uuid.New()
	msg := "node failed"
	duration := int64(1200)

	tests := []struct {
		name   string
		status models.ExecutionStatus
		want   EventType
	}{
		{name: "completed", status: models.ExecutionStatusCompleted, want: EventExecutionCompleted},
		{name: "failed", status: models.ExecutionStatusFailed, want: EventExecutionFailed},
		{name: "cancelled", status: models.ExecutionStatusCancelled, want: EventExecutionCancelled},
		{name: "timeout", status: models.ExecutionStatusTimeout, want: EventExecutionTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeBroadcaster{}
			p := NewPublisher(fake)
			p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

			exec := &models.Execution{
				ID:           uuid.New(),
				WorkflowID:   uuid.New(),
				WorkspaceID:  uuid.New(),
				Status:       tt.status,
				DurationMs:   &duration,
				ErrorMessage: &msg,
				ErrorNodeID:  &nodeID,
				RetryCount:   2,
			}
			require.NoError(t, p.ExecutionFinished(context.Background(), exec))
			require.Len(t, fake.messages, 1)

			got := fake.messages[0]
			assert.Equal(t, "workspace:"+exec.WorkspaceID.String(), got.channel)
			assert.Equal(t, tt.want, got.event.Type)
			assert.Equal(t, exec.ID, got.event.ExecutionID)
			assert.Equal(t, string(tt.status), got.event.Data["status"])
			assert.Equal(t, nodeID.String(), got.event.Data["error_node_id"])
			assert.EqualValues(t, 1200, got.event.Data["duration_ms"])
			assert.True(t, got.event.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
		})
	}
}

func TestPublisher_NodeEvents(t *testing.T) {
	fake := &fakeBroadcaster{}
	p := NewPublisher(fake)
	exec := &models.Execution{ID: uuid.New(), WorkflowID: uuid.New(), WorkspaceID: uuid.New()}
	node := &models.Node{ID: uuid.New(), Name: "fetch"}
	ctx := context.Background()

	require.NoError(t, p.NodeStarted(ctx, exec, node, 2))
	require.NoError(t, p.NodeFinished(ctx, exec, models.NodeResult{NodeID: node.ID, NodeName: "fetch", Status: models.NodeStatusCompleted, Attempts: 2}))
	require.NoError(t, p.NodeFinished(ctx, exec, models.NodeResult{NodeID: node.ID, NodeName: "fetch", Status: models.NodeStatusTimeout, Error: "deadline", Code: "NODE_TIMEOUT"}))
	require.NoError(t, p.NodeFinished(ctx, exec, models.NodeResult{NodeID: node.ID, NodeName: "fetch", Status: models.NodeStatusSkipped}))

	require.Len(t, fake.messages, 4)
	assert.Equal(t, EventNodeStarted, fake.messages[0].event.Type)
	assert.EqualValues(t, 2, fake.messages[0].event.Data["attempt"])
	assert.Equal(t, EventNodeCompleted, fake.messages[1].event.Type)
	assert.Equal(t, EventNodeFailed, fake.messages[2].event.Type)
	assert.Equal(t, "NODE_TIMEOUT", fake.messages[2].event.Data["code"])
	assert.Equal(t, EventNodeSkipped, fake.messages[3].event.Type)
	assert.Equal(t, node.ID.String(), fake.messages[3].event.NodeID)
}
