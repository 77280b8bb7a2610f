package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTriggerConfig(t *testing.T) {
	tests := []struct {
		name    string
		typ     models.TriggerType
		raw     models.JSON
		wantErr bool
		check   func(t *testing.T, cfg *TriggerConfig)
	}{
		{"scheduled", models.TriggerTypeScheduled, models.JSON{"cron_expression": "*/5 * * * *", "timezone": "Europe/Berlin", "note": "x"}, false,
			func(t *testing.T, cfg *TriggerConfig) {
				assert.Equal(t, "*/5 * * * *", cfg.Scheduled.CronExpression)
				assert.Equal(t, map[string]interface{}{"note": "x"}, cfg.Extra)
			}},
		{"scheduled missing cron", models.TriggerTypeScheduled, models.JSON{}, true, nil},
		{"scheduled bad cron", models.TriggerTypeScheduled, models.JSON{"cron_expression": "every tuesday"}, true, nil},
		{"scheduled bad timezone", models.TriggerTypeScheduled, models.JSON{"cron_expression": "@daily", "timezone": "Mars/Olympus"}, true, nil},
		{"webhook", models.TriggerTypeWebhook, models.JSON{"method": "POST", "secret": "s"}, false, nil},
		{"webhook missing method", models.TriggerTypeWebhook, models.JSON{}, true, nil},
		{"webhook bad algorithm", models.TriggerTypeWebhook, models.JSON{"method": "POST", "signature_algorithm": "md5"}, true, nil},
		{"event", models.TriggerTypeEvent, models.JSON{"event_name": "order.created"}, false, nil},
		{"event missing name", models.TriggerTypeEvent, models.JSON{"source": "shop"}, true, nil},
		{"api empty", models.TriggerTypeAPI, nil, false, nil},
		{"api negative rate", models.TriggerTypeAPI, models.JSON{"rate_limit_per_minute": -1}, true, nil},
		{"wrong shape", models.TriggerTypeEvent, models.JSON{"event_name": 12}, true, nil},
		{"unknown type", "EMAIL", models.JSON{}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := DecodeTriggerConfig(tt.typ, tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
			encoded, err := cfg.Encode()
			require.NoError(t, err)
			for k := range tt.raw {
				assert.Contains(t, encoded, k)
			}
		})
	}
}

func TestTriggerCreate_Limits(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "limited")

	for _, name := range []string{"a", "b"} {
		_, err := f.triggers.Create(ctx, CreateTriggerInput{WorkflowID: wf.ID, Name: name, Type: models.TriggerTypeAPI})
		require.NoError(t, err)
	}
	_, err := f.triggers.Create(ctx, CreateTriggerInput{WorkflowID: wf.ID, Name: "c", Type: models.TriggerTypeAPI})
	assert.ErrorIs(t, err, errs.ErrTriggerLimitViolation)
}

func TestTriggerCreate_PlanLimitOverridesDefault(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	f.store.Workspaces.SetPlans([]models.Plan{{ID: "tiny", MaxTriggersPerWorkflow: 1}})
	require.NoError(t, f.store.Workspaces.Create(ctx, &models.Workspace{ID: f.workspace, Name: "ws", Slug: "ws", PlanID: "tiny"}))
	wf := f.workflow(t, "tiny")

	_, err := f.triggers.Create(ctx, CreateTriggerInput{WorkflowID: wf.ID, Name: "second", Type: models.TriggerTypeAPI})
	assert.ErrorIs(t, err, errs.ErrTriggerLimitViolation)
}

func TestTriggerCreate_NameUniquePerWorkspace(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	one := f.workflow(t, "one")
	two := f.workflow(t, "two")

	_, err := f.triggers.Create(ctx, CreateTriggerInput{WorkflowID: one.ID, Name: "hook", Type: models.TriggerTypeAPI})
	require.NoError(t, err)
	_, err = f.triggers.Create(ctx, CreateTriggerInput{WorkflowID: two.ID, Name: "hook", Type: models.TriggerTypeAPI})
	assert.ErrorIs(t, err, errs.ErrDuplicateName)
}

func TestTriggerDelete(t *testing.T) {
	tests := []struct {
		name    string
		min     int
		wantErr error
	}{
		{"min zero allows last extra trigger", 0, nil},
		{"min one allows deletion down to the default", 1, nil},
		{"min two blocks deletion", 2, errs.ErrTriggerLimitViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := defaultEngine()
			engine.MinTriggersPerWorkflow = tt.min
			f := newFixture(t, engine)
			ctx := context.Background()
			wf := f.workflow(t, "wf")

			extra, err := f.triggers.Create(ctx, CreateTriggerInput{WorkflowID: wf.ID, Name: "extra", Type: models.TriggerTypeAPI})
			require.NoError(t, err)

			err = f.triggers.Delete(ctx, extra.ID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTriggerDelete_DefaultProtected(t *testing.T) {
	engine := defaultEngine()
	engine.MinTriggersPerWorkflow = 0
	f := newFixture(t, engine)
	ctx := context.Background()
	wf := f.workflow(t, "wf")

	triggers, err := f.triggers.List(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, triggers, 1)

	assert.ErrorIs(t, f.triggers.Delete(ctx, triggers[0].ID), errs.ErrDefaultTriggerProtected)
}

func TestTriggerUpdate(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "wf")

	tr, err := f.triggers.Create(ctx, CreateTriggerInput{
		WorkflowID: wf.ID,
		Name:       "orders",
		Type:       models.TriggerTypeEvent,
		Config:     models.JSON{"event_name": "order.created"},
	})
	require.NoError(t, err)

	_, err = f.triggers.Update(ctx, tr.ID, UpdateTriggerInput{Config: models.JSON{"source": "x"}})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	name := "orders v2"
	updated, err := f.triggers.Update(ctx, tr.ID, UpdateTriggerInput{
		Name:   &name,
		Config: models.JSON{"event_name": "order.updated"},
	})
	require.NoError(t, err)
	assert.Equal(t, "orders v2", updated.Name)
	assert.Equal(t, "order.updated", updated.Config["event_name"])

	disabled, err := f.triggers.Disable(ctx, tr.ID)
	require.NoError(t, err)
	assert.False(t, disabled.IsEnabled)

	_, err = f.triggers.Update(ctx, tr.ID, UpdateTriggerInput{InputMapping: models.JSON{"id": "payload.("}})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func activeWorkflow(t *testing.T, f *fixture, name string) *models.Workflow {
	t.Helper()
	wf := f.workflow(t, name)
	f.node(t, wf, "step")
	wf, err := f.workflows.Activate(context.Background(), wf.ID)
	require.NoError(t, err)
	return wf
}

func TestTriggerFire(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "wf")
	f.node(t, wf, "step")

	tr, err := f.triggers.Create(ctx, CreateTriggerInput{
		WorkflowID:   wf.ID,
		Name:         "mapped",
		Type:         models.TriggerTypeAPI,
		InputMapping: models.JSON{"customer": "payload.user.id", "label": "order-{{ payload.order }}"},
	})
	require.NoError(t, err)

	// Draft workflows do not fire.
	_, err = f.triggers.Fire(ctx, FireInput{TriggerID: tr.ID, Payload: map[string]interface{}{}, Actor: "ada"})
	assert.ErrorIs(t, err, ErrTriggerNotEnabled)

	_, err = f.workflows.Activate(ctx, wf.ID)
	require.NoError(t, err)

	exec, err := f.triggers.Fire(ctx, FireInput{
		TriggerID: tr.ID,
		Payload: map[string]interface{}{
			"user":  map[string]interface{}{"id": "u-1"},
			"order": 42,
		},
		Actor: "ada",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, exec.Status)
	assert.Equal(t, "ada", exec.TriggeredBy)
	assert.Equal(t, &tr.ID, exec.TriggerID)
	assert.Equal(t, "u-1", exec.TriggerData["customer"])
	assert.Equal(t, "order-42", exec.TriggerData["label"])
	require.Len(t, f.enqueuer.payloads, 1)
	assert.Equal(t, exec.ID, f.enqueuer.payloads[0].ExecutionID)

	fired, err := f.triggers.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fired.FireCount)
	assert.NotNil(t, fired.LastFiredAt)

	_, err = f.triggers.Disable(ctx, tr.ID)
	require.NoError(t, err)
	_, err = f.triggers.Fire(ctx, FireInput{TriggerID: tr.ID, Actor: "ada"})
	assert.ErrorIs(t, err, ErrTriggerNotEnabled)
}

func TestTriggerFire_RateLimited(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := activeWorkflow(t, f, "wf")

	tr, err := f.triggers.Create(ctx, CreateTriggerInput{
		WorkflowID: wf.ID,
		Name:       "limited",
		Type:       models.TriggerTypeAPI,
		Config:     models.JSON{"rate_limit_per_minute": 2},
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.triggers.Fire(ctx, FireInput{TriggerID: tr.ID, Actor: "ada"})
		require.NoError(t, err)
	}
	_, err = f.triggers.Fire(ctx, FireInput{TriggerID: tr.ID, Actor: "ada"})
	assert.ErrorIs(t, err, ErrTriggerRateLimited)
}

func TestTriggerFireWebhook(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := activeWorkflow(t, f, "wf")

	tr, err := f.triggers.Create(ctx, CreateTriggerInput{
		WorkflowID: wf.ID,
		Name:       "github",
		Type:       models.TriggerTypeWebhook,
		Config:     models.JSON{"method": "POST", "secret": "s3cr3t"},
	})
	require.NoError(t, err)

	body := []byte(`{"ref":"main"}`)
	sig := webhook.NewSignatureVerifier("sha256", "s3cr3t").Sign(body)

	_, err = f.triggers.FireWebhook(ctx, tr.ID, "POST", body, "bad")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = f.triggers.FireWebhook(ctx, tr.ID, "GET", body, sig)
	assert.ErrorIs(t, err, ErrTriggerTypeMismatch)

	exec, err := f.triggers.FireWebhook(ctx, tr.ID, "POST", body, "sha256="+sig)
	require.NoError(t, err)
	assert.Equal(t, "main", exec.TriggerData["ref"])
	assert.Equal(t, string(models.TriggerTypeWebhook), exec.TriggerType)
}

func TestTriggerEmitEvent(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	one := activeWorkflow(t, f, "one")
	two := activeWorkflow(t, f, "two")

	for i, wf := range []*models.Workflow{one, two} {
		_, err := f.triggers.Create(ctx, CreateTriggerInput{
			WorkflowID: wf.ID,
			Name:       []string{"on order 1", "on order 2"}[i],
			Type:       models.TriggerTypeEvent,
			Config:     models.JSON{"event_name": "order.created"},
		})
		require.NoError(t, err)
	}
	_, err := f.workflows.Deactivate(ctx, two.ID)
	require.NoError(t, err)

	execs, err := f.triggers.EmitEvent(ctx, f.workspace, "order.created", map[string]interface{}{"id": 7}, "shop")
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, one.ID, execs[0].WorkflowID)

	execs, err = f.triggers.EmitEvent(ctx, uuid.New(), "order.created", nil, "shop")
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestTriggerFireScheduled_AdvancesNextRun(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := activeWorkflow(t, f, "wf")

	tr, err := f.triggers.Create(ctx, CreateTriggerInput{
		WorkflowID: wf.ID,
		Name:       "every minute",
		Type:       models.TriggerTypeScheduled,
		Config:     models.JSON{"cron_expression": "* * * * *"},
	})
	require.NoError(t, err)
	require.NotNil(t, tr.NextRunAt)

	now := tr.NextRunAt.Add(time.Second)
	f.triggers.now = func() time.Time { return now }

	exec, err := f.triggers.FireScheduled(ctx, tr.ID, *tr.NextRunAt)
	require.NoError(t, err)
	assert.Equal(t, ActorScheduler, exec.TriggeredBy)

	fired, err := f.triggers.Get(ctx, tr.ID)
	require.NoError(t, err)
	require.NotNil(t, fired.NextRunAt)
	assert.True(t, fired.NextRunAt.After(now))

	_, err = f.triggers.FireScheduled(ctx, tr.ID, *tr.NextRunAt)
	assert.ErrorIs(t, err, ErrTriggerNotDue, "the same slot fires once")
}
