package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories/memory"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recoverFunc func(ctx context.Context, olderThan, abandonBefore time.Time, limit int) (int, int, error)

func (f recoverFunc) RecoverPending(ctx context.Context, olderThan, abandonBefore time.Time, limit int) (int, int, error) {
	return f(ctx, olderThan, abandonBefore, limit)
}

func TestStaleRecovery_Windows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotOlder, gotAbandon time.Time

	collector := metrics.NewCollector()
	r := NewStaleRecovery(recoverFunc(func(_ context.Context, olderThan, abandonBefore time.Time, limit int) (int, int, error) {
		gotOlder, gotAbandon = olderThan, abandonBefore
		assert.Equal(t, 100, limit)
		return 2, 1, nil
	}), collector, 10*time.Minute)
	r.now = func() time.Time { return now }

	r.RecoverOnce(context.Background())

	assert.Equal(t, now.Add(-10*time.Minute), gotOlder)
	assert.Equal(t, now.Add(-24*time.Hour), gotAbandon)
	assert.Equal(t, int64(3), collector.Snapshot().RecoveredTotal)
}

func TestCleanup_DeletesExpiredExecutions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Now()

	ended := func(at time.Time, status models.ExecutionStatus) *models.Execution {
		e := &models.Execution{WorkflowID: uuid.New(), Status: status, EndedAt: &at}
		require.NoError(t, store.Executions.Create(ctx, e))
		require.NoError(t, store.ExecutionInputs.Create(ctx, &models.ExecutionInput{ExecutionID: e.ID, NodeID: uuid.New()}))
		return e
	}

	old := ended(now.AddDate(0, 0, -40), models.ExecutionStatusCompleted)
	oldFailed := ended(now.AddDate(0, 0, -31), models.ExecutionStatusFailed)
	recent := ended(now.AddDate(0, 0, -2), models.ExecutionStatusCompleted)
	running := &models.Execution{WorkflowID: uuid.New(), Status: models.ExecutionStatusRunning}
	require.NoError(t, store.Executions.Create(ctx, running))

	collector := metrics.NewCollector()
	c := NewCleanup(store.Executions, collector, 30, time.Hour)
	c.batchSize = 1
	c.CleanupOnce(ctx)

	for _, gone := range []*models.Execution{old, oldFailed} {
		_, err := store.Executions.FindByID(ctx, gone.ID)
		assert.Error(t, err)
		inputs, err := store.ExecutionInputs.FindByExecutionID(ctx, gone.ID)
		require.NoError(t, err)
		assert.Empty(t, inputs)
	}
	for _, kept := range []*models.Execution{recent, running} {
		_, err := store.Executions.FindByID(ctx, kept.ID)
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(2), collector.Snapshot().CleanedTotal)
}
