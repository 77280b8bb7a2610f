package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	payloads []queue.TriggerFirePayload
	err      error
}

func (f *fakeEnqueuer) EnqueueTriggerFire(_ context.Context, payload queue.TriggerFirePayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func dueTrigger(workspaceID uuid.UUID, at time.Time) *models.Trigger {
	return &models.Trigger{
		ID:          uuid.New(),
		WorkflowID:  uuid.New(),
		WorkspaceID: workspaceID,
		Type:        models.TriggerTypeScheduled,
		NextRunAt:   &at,
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ws := uuid.New()

	q := &fakeEnqueuer{}
	d := NewDispatcher(q, NewLocalLimiter(10, time.Minute), NewLocalLimiter(2, time.Minute))

	trigger := dueTrigger(ws, at)
	outcome, err := d.Dispatch(ctx, trigger)
	require.NoError(t, err)
	assert.Equal(t, Dispatched, outcome)
	require.Len(t, q.payloads, 1)
	assert.Equal(t, queue.TriggerFirePayload{TriggerID: trigger.ID, WorkspaceID: ws, ScheduledAt: at}, q.payloads[0])

	outcome, _ = d.Dispatch(ctx, dueTrigger(ws, at))
	assert.Equal(t, Dispatched, outcome)

	outcome, err = d.Dispatch(ctx, dueTrigger(ws, at))
	require.NoError(t, err)
	assert.Equal(t, RateLimited, outcome, "third fire in the same workspace window")

	outcome, _ = d.Dispatch(ctx, dueTrigger(uuid.New(), at))
	assert.Equal(t, Dispatched, outcome, "other workspaces keep their own budget")

	assert.Equal(t, Stats{Dispatched: 3, Skipped: 1}, d.Stats())
}

func TestDispatcher_GlobalLimit(t *testing.T) {
	q := &fakeEnqueuer{}
	d := NewDispatcher(q, NewLocalLimiter(1, time.Minute), NewLocalLimiter(10, time.Minute))
	at := time.Now()

	first, _ := d.Dispatch(context.Background(), dueTrigger(uuid.New(), at))
	second, _ := d.Dispatch(context.Background(), dueTrigger(uuid.New(), at))

	assert.Equal(t, Dispatched, first)
	assert.Equal(t, RateLimited, second)
	assert.Len(t, q.payloads, 1)
}

func TestDispatcher_EnqueueFailure(t *testing.T) {
	q := &fakeEnqueuer{err: errors.New("redis down")}
	d := NewDispatcher(q, NewLocalLimiter(10, time.Minute), NewLocalLimiter(10, time.Minute))

	outcome, err := d.Dispatch(context.Background(), dueTrigger(uuid.New(), time.Now()))
	assert.Equal(t, Failed, outcome)
	assert.EqualError(t, err, "redis down")
	assert.Equal(t, int64(1), d.Stats().Failed)
}

func TestLocalLimiter_WindowResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow(context.Background(), "k"))
	assert.False(t, l.Allow(context.Background(), "k"))

	now = now.Add(time.Minute)
	assert.True(t, l.Allow(context.Background(), "k"))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f *fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestBackpressureMonitor(t *testing.T) {
	inspector := &fakeInspector{info: &asynq.QueueInfo{Pending: 80, Retry: 20}}
	m := NewBackpressureMonitor(inspector, queue.QueueDefault, 100)

	m.check()
	assert.True(t, m.ShouldPause())
	assert.Equal(t, int64(100), m.QueueDepth())

	inspector.info = &asynq.QueueInfo{Pending: 60}
	m.check()
	assert.True(t, m.ShouldPause(), "stays paused until below half")

	inspector.info = &asynq.QueueInfo{Pending: 10}
	m.check()
	assert.False(t, m.ShouldPause())

	inspector.err = errors.New("unavailable")
	m.check()
	assert.Equal(t, int64(10), m.QueueDepth(), "keeps the last known depth")
}
