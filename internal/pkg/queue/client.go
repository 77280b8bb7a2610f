package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
)

const (
	TypeWorkflowExecution = "workflow:execution"
	TypeTriggerFire       = "trigger:fire"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// HighPriority is the workflow priority from which executions use the critical queue.
const HighPriority = 5

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type taskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	Close() error
}

type Client struct {
	client    taskEnqueuer
	inspector taskInspector
}

func NewClient(cfg *config.RedisConfig) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Client{client: client, inspector: NewInspector(cfg)}
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// Workflow Execution
type WorkflowExecutionPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	WorkflowID  uuid.UUID `json:"workflow_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Priority    int       `json:"priority"`
}

func (p WorkflowExecutionPayload) queue() string {
	if p.Priority >= HighPriority {
		return QueueCritical
	}
	return QueueDefault
}

// executionTaskIDs are the two ids an execution's task can hold. A deferred
// execution alternates between them so the task being handled never blocks
// its own successor.
func executionTaskIDs(executionID uuid.UUID) [2]string {
	return [2]string{executionID.String(), executionID.String() + ":deferred"}
}

// deferredTaskID is the id a deferral from task current enqueues under.
func deferredTaskID(executionID uuid.UUID, current string) string {
	ids := executionTaskIDs(executionID)
	if current == ids[0] {
		return ids[1]
	}
	return ids[0]
}

func (c *Client) enqueueExecution(ctx context.Context, payload WorkflowExecutionPayload, id string, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	opts = append([]asynq.Option{
		asynq.Queue(payload.queue()),
		asynq.TaskID(id),
		asynq.MaxRetry(25),
		asynq.Timeout(6 * time.Hour),
	}, opts...)

	_, err = c.client.EnqueueContext(ctx, asynq.NewTask(TypeWorkflowExecution, data), opts...)
	return err
}

// EnqueueWorkflowExecution schedules an execution for the worker. The task id
// is the execution id, so enqueuing the same execution twice is a no-op.
func (c *Client) EnqueueWorkflowExecution(ctx context.Context, payload WorkflowExecutionPayload) error {
	err := c.enqueueExecution(ctx, payload, executionTaskIDs(payload.ExecutionID)[0])
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// DeferWorkflowExecution re-enqueues an execution that could not be admitted
// to run after delay. Called from the handler of its current task, it uses
// the other task id, so a deferral never spends one of the task's retries.
func (c *Client) DeferWorkflowExecution(ctx context.Context, payload WorkflowExecutionPayload, delay time.Duration) error {
	current, _ := asynq.GetTaskID(ctx)
	next := deferredTaskID(payload.ExecutionID, current)

	err := c.enqueueExecution(ctx, payload, next, asynq.ProcessIn(delay))
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	live, err := c.clearFinished(payload.ExecutionID, next)
	if err != nil || live {
		return err
	}
	return c.enqueueExecution(ctx, payload, next, asynq.ProcessIn(delay))
}

// RequeueWorkflowExecution enqueues an execution again unless one of its
// tasks is still waiting or running. Archived and completed tasks left under
// its ids are deleted first. It reports whether a task was enqueued.
func (c *Client) RequeueWorkflowExecution(ctx context.Context, payload WorkflowExecutionPayload) (bool, error) {
	ids := executionTaskIDs(payload.ExecutionID)
	for _, id := range ids {
		live, err := c.clearFinished(payload.ExecutionID, id)
		if err != nil {
			return false, err
		}
		if live {
			return false, nil
		}
	}

	err := c.enqueueExecution(ctx, payload, ids[0])
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// clearFinished deletes the task id from every execution queue when it is
// archived or completed. It reports whether the id is held by a live task.
func (c *Client) clearFinished(executionID uuid.UUID, id string) (bool, error) {
	for _, q := range []string{QueueCritical, QueueDefault} {
		info, err := c.inspector.GetTaskInfo(q, id)
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to inspect task %s: %w", id, err)
		}

		switch info.State {
		case asynq.TaskStateArchived, asynq.TaskStateCompleted:
			if err := c.inspector.DeleteTask(q, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
				return false, fmt.Errorf("failed to delete finished task %s of execution %s: %w", id, executionID, err)
			}
		default:
			return true, nil
		}
	}
	return false, nil
}

// Trigger Fire
type TriggerFirePayload struct {
	TriggerID   uuid.UUID `json:"trigger_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// EnqueueTriggerFire hands a due scheduled trigger to the worker. One task
// exists per trigger and scheduled time.
func (c *Client) EnqueueTriggerFire(ctx context.Context, payload TriggerFirePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TypeTriggerFire, data,
		asynq.Queue(QueueDefault),
		asynq.TaskID(fmt.Sprintf("%s:%d", payload.TriggerID, payload.ScheduledAt.Unix())),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Retention(time.Hour),
	)

	_, err = c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func ParseWorkflowExecution(task *asynq.Task) (WorkflowExecutionPayload, error) {
	var p WorkflowExecutionPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return p, nil
}

func ParseTriggerFire(task *asynq.Task) (TriggerFirePayload, error) {
	var p TriggerFirePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return p, nil
}
