package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowCreate_AddsDefaultTrigger(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()

	wf := f.workflow(t, "billing sync")
	assert.Equal(t, models.WorkflowStatusDraft, wf.Status)
	assert.Equal(t, 1, wf.Priority)

	triggers, err := f.triggers.List(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.True(t, triggers[0].IsDefault)
	assert.Equal(t, models.TriggerTypeAPI, triggers[0].Type)
	assert.True(t, triggers[0].IsEnabled)
	assert.False(t, triggers[0].EffectivelyEnabled)
}

func TestWorkflowCreate_Validation(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	f.workflow(t, "taken")

	_, err := f.workflows.Create(ctx, CreateWorkflowInput{WorkspaceID: f.workspace, Name: "taken"})
	assert.ErrorIs(t, err, errs.ErrDuplicateName)

	_, err = f.workflows.Create(ctx, CreateWorkflowInput{WorkspaceID: f.workspace, Name: "  "})
	assert.ErrorIs(t, err, ErrWorkflowNameRequired)

	_, err = f.workflows.Create(ctx, CreateWorkflowInput{WorkspaceID: f.workspace, Name: "neg", Priority: -1})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	// Names are unique per workspace only.
	_, err = f.workflows.Create(ctx, CreateWorkflowInput{WorkspaceID: uuid.New(), Name: "taken"})
	assert.NoError(t, err)
}

func TestWorkflowActivate_EmptyWorkflow(t *testing.T) {
	f := newFixture(t, defaultEngine())
	wf := f.workflow(t, "empty")

	_, err := f.workflows.Activate(context.Background(), wf.ID)
	assert.ErrorIs(t, err, errs.ErrEmptyWorkflow)

	stored, err := f.workflows.GetByID(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusDraft, stored.Status)
}

func TestWorkflowActivate_CascadesTriggers(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "orders")
	f.node(t, wf, "fetch")

	disabled := false
	extra, err := f.triggers.Create(ctx, CreateTriggerInput{
		WorkflowID: wf.ID,
		Name:       "nightly",
		Type:       models.TriggerTypeScheduled,
		Config:     models.JSON{"cron_expression": "0 2 * * *"},
		IsEnabled:  &disabled,
	})
	require.NoError(t, err)
	assert.Nil(t, extra.NextRunAt)

	activated, err := f.workflows.Activate(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusActive, activated.Status)
	assert.NotNil(t, activated.ActivatedAt)

	triggers, err := f.triggers.List(ctx, wf.ID)
	require.NoError(t, err)
	for _, tr := range triggers {
		assert.Equal(t, tr.IsEnabled, tr.EffectivelyEnabled, tr.Name)
	}

	_, err = f.workflows.Deactivate(ctx, wf.ID)
	require.NoError(t, err)
	triggers, err = f.triggers.List(ctx, wf.ID)
	require.NoError(t, err)
	for _, tr := range triggers {
		assert.False(t, tr.EffectivelyEnabled, tr.Name)
	}
	// The stored flag of the default trigger survives the round trip.
	assert.True(t, triggers[0].IsEnabled)
}

// failingTriggers fails the next n trigger updates.
type failingTriggers struct {
	repositories.TriggerStore
	n int
}

func (f *failingTriggers) Update(ctx context.Context, trigger *models.Trigger) error {
	if f.n > 0 {
		f.n--
		return errors.New("connection reset")
	}
	return f.TriggerStore.Update(ctx, trigger)
}

func TestWorkflowActivate_RollsBackWhenCascadeFails(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "flaky")
	f.node(t, wf, "a")

	f.triggers.triggers = &failingTriggers{TriggerStore: f.store.Triggers, n: 1}

	_, err := f.workflows.Activate(ctx, wf.ID)
	require.Error(t, err)

	got, err := f.workflows.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusDraft, got.Status)
	assert.Nil(t, got.ActivatedAt)

	triggers, err := f.store.Triggers.FindByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	for _, tr := range triggers {
		assert.False(t, tr.EffectivelyEnabled)
	}

	activated, err := f.workflows.Activate(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusActive, activated.Status)
}

func TestWorkflowActivate_ScheduledTriggerGetsNextRun(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "reports")
	f.node(t, wf, "build")

	tr, err := f.triggers.Create(ctx, CreateTriggerInput{
		WorkflowID: wf.ID,
		Name:       "hourly",
		Type:       models.TriggerTypeScheduled,
		Config:     models.JSON{"cron_expression": "@hourly"},
	})
	require.NoError(t, err)
	assert.Nil(t, tr.NextRunAt, "draft workflows do not schedule")

	_, err = f.workflows.Activate(ctx, wf.ID)
	require.NoError(t, err)

	tr, err = f.triggers.Get(ctx, tr.ID)
	require.NoError(t, err)
	require.NotNil(t, tr.NextRunAt)
	assert.True(t, tr.NextRunAt.After(f.triggers.now()))
}

func TestWorkflowStatusMachine(t *testing.T) {
	tests := []struct {
		name    string
		events  []models.WorkflowEvent
		want    models.WorkflowStatus
		wantErr error
	}{
		{"activate", []models.WorkflowEvent{models.WorkflowEventActivate}, models.WorkflowStatusActive, nil},
		{"reactivate", []models.WorkflowEvent{models.WorkflowEventActivate, models.WorkflowEventDeactivate, models.WorkflowEventActivate}, models.WorkflowStatusActive, nil},
		{"archive draft", []models.WorkflowEvent{models.WorkflowEventArchive}, models.WorkflowStatusArchived, nil},
		{"restore archived", []models.WorkflowEvent{models.WorkflowEventArchive, models.WorkflowEventSetDraft}, models.WorkflowStatusDraft, nil},
		{"deactivate draft", []models.WorkflowEvent{models.WorkflowEventDeactivate}, "", errs.ErrInvalidTransition},
		{"draft from active", []models.WorkflowEvent{models.WorkflowEventActivate, models.WorkflowEventSetDraft}, "", errs.ErrInvalidTransition},
		{"activate archived", []models.WorkflowEvent{models.WorkflowEventArchive, models.WorkflowEventActivate}, "", errs.ErrWorkflowArchived},
		{"archive twice", []models.WorkflowEvent{models.WorkflowEventArchive, models.WorkflowEventArchive}, "", errs.ErrWorkflowArchived},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, defaultEngine())
			ctx := context.Background()
			wf := f.workflow(t, "machine")
			f.node(t, wf, "step")

			var err error
			var got *models.Workflow
			for _, ev := range tt.events {
				got, err = f.workflows.transition(ctx, wf.ID, ev)
				if err != nil {
					break
				}
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestWorkflowArchived_RejectsMutation(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "old")
	n := f.node(t, wf, "step")

	_, err := f.workflows.Archive(ctx, wf.ID)
	require.NoError(t, err)

	_, err = f.graph.CreateNode(ctx, CreateNodeInput{WorkflowID: wf.ID, Name: "new", ScriptID: &f.script.ID})
	assert.ErrorIs(t, err, errs.ErrWorkflowArchived)
	assert.ErrorIs(t, f.graph.DeleteNode(ctx, n.ID), errs.ErrWorkflowArchived)
	_, err = f.triggers.Create(ctx, CreateTriggerInput{WorkflowID: wf.ID, Name: "t", Type: models.TriggerTypeAPI})
	assert.ErrorIs(t, err, errs.ErrWorkflowArchived)
	_, err = f.executions.TestRun(ctx, wf.ID, nil)
	assert.ErrorIs(t, err, errs.ErrWorkflowArchived)
	_, err = f.workflows.Update(ctx, wf.ID, UpdateWorkflowInput{Tags: []string{"x"}})
	assert.ErrorIs(t, err, errs.ErrWorkflowArchived)
}

func TestWorkflowDelete_CascadesButKeepsExecutions(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "gone")
	f.node(t, wf, "step")

	exec, err := f.executions.TestRun(ctx, wf.ID, nil)
	require.NoError(t, err)

	require.NoError(t, f.workflows.Delete(ctx, wf.ID))

	nodes, err := f.graph.ListNodes(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	triggers, err := f.triggers.List(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, triggers)

	_, err = f.executions.Get(ctx, exec.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, f.workflows.Delete(ctx, wf.ID), ErrWorkflowNotFound)
}
