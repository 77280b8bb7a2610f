package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CancelChannel is the redis pub/sub channel carrying cancellation requests.
const CancelChannel = "workflow:cancel"

// CancellationManager routes cancellation requests to the worker that owns
// the execution. The API side only publishes; workers also Listen.
type CancellationManager struct {
	redis   *redis.Client
	active  sync.Map // executionID -> func()
	channel string
}

// CancellationMessage represents a cancellation request
type CancellationMessage struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewCancellationManager creates a cancellation manager. A nil client keeps
// cancellation within the process.
func NewCancellationManager(client *redis.Client) *CancellationManager {
	return &CancellationManager{
		redis:   client,
		channel: CancelChannel,
	}
}

// Register registers an execution for cancellation tracking
func (cm *CancellationManager) Register(executionID uuid.UUID, cancel func()) {
	cm.active.Store(executionID, cancel)
}

// Unregister removes an execution from cancellation tracking
func (cm *CancellationManager) Unregister(executionID uuid.UUID) {
	cm.active.Delete(executionID)
}

// SignalCancel asks the owner of executionID to stop dispatching. A locally
// running execution is signalled directly; otherwise the request is published.
func (cm *CancellationManager) SignalCancel(ctx context.Context, executionID uuid.UUID) error {
	if cm.cancelLocal(executionID) {
		log.Info().Str("execution_id", executionID.String()).Msg("Execution cancelled locally")
		return nil
	}
	if cm.redis == nil {
		return nil
	}

	data, err := json.Marshal(CancellationMessage{
		ExecutionID: executionID,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cancellation message: %w", err)
	}
	if err := cm.redis.Publish(ctx, cm.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish cancellation: %w", err)
	}

	log.Info().Str("execution_id", executionID.String()).Msg("Cancellation request published")
	return nil
}

// Listen consumes cancellation requests until ctx is done.
func (cm *CancellationManager) Listen(ctx context.Context) {
	if cm.redis == nil {
		return
	}

	pubsub := cm.redis.Subscribe(ctx, cm.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	log.Info().Msg("Cancellation manager listening for requests")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var req CancellationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
				log.Error().Err(err).Msg("Failed to unmarshal cancellation message")
				continue
			}

			if cm.cancelLocal(req.ExecutionID) {
				log.Info().Str("execution_id", req.ExecutionID.String()).Msg("Execution cancelled via pubsub")
			}
		}
	}
}

func (cm *CancellationManager) cancelLocal(executionID uuid.UUID) bool {
	v, ok := cm.active.Load(executionID)
	if !ok {
		return false
	}
	v.(func())()
	return true
}

// IsActive checks if an execution is currently active
func (cm *CancellationManager) IsActive(executionID uuid.UUID) bool {
	_, ok := cm.active.Load(executionID)
	return ok
}

// ActiveCount returns the number of active executions
func (cm *CancellationManager) ActiveCount() int {
	count := 0
	cm.active.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
