package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/cron"
	"github.com/linkflow-ai/scriptflow/internal/webhook"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Trigger errors
var (
	ErrTriggerNotFound     = errors.New("trigger not found")
	ErrTriggerNotEnabled   = errors.New("trigger is not effectively enabled")
	ErrTriggerRateLimited  = errors.New("trigger rate limit exceeded")
	ErrTriggerTypeMismatch = errors.New("trigger type does not match request")
	ErrTriggerNotDue       = errors.New("trigger is not due at the requested time")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrTriggerNameRequired = errors.New("trigger name is required")
)

// Actor recorded on executions started by the scheduler.
const ActorScheduler = "scheduler"

type TriggerService struct {
	triggers   repositories.TriggerStore
	workflows  repositories.WorkflowStore
	limits     *LimitsService
	executions *ExecutionService
	mapper     *InputMapper
	calculator *cron.Calculator
	locks      *WorkflowLocks
	limiters   sync.Map // uuid.UUID -> *rate.Limiter
	now        func() time.Time
}

func NewTriggerService(
	triggers repositories.TriggerStore,
	workflows repositories.WorkflowStore,
	limits *LimitsService,
	executions *ExecutionService,
	calculator *cron.Calculator,
	locks *WorkflowLocks,
) *TriggerService {
	return &TriggerService{
		triggers:   triggers,
		workflows:  workflows,
		limits:     limits,
		executions: executions,
		mapper:     NewInputMapper(),
		calculator: calculator,
		locks:      locks,
		now:        time.Now,
	}
}

type CreateTriggerInput struct {
	WorkflowID   uuid.UUID
	Name         string
	Description  *string
	Type         models.TriggerType
	Config       models.JSON
	InputMapping models.JSON
	IsEnabled    *bool
}

func (s *TriggerService) Create(ctx context.Context, input CreateTriggerInput) (*models.Trigger, error) {
	const op = "trigger.Create"

	unlock := s.locks.Lock(input.WorkflowID)
	defer unlock()

	wf, err := s.mutableWorkflow(ctx, op, input.WorkflowID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrTriggerNameRequired
	}
	if err := s.checkName(ctx, op, wf.WorkspaceID, name, uuid.Nil); err != nil {
		return nil, err
	}

	cfg, err := DecodeTriggerConfig(input.Type, input.Config)
	if err != nil {
		return nil, err
	}
	if err := s.mapper.Check(input.InputMapping); err != nil {
		return nil, err
	}

	limits, err := s.limits.ForWorkspace(ctx, wf.WorkspaceID)
	if err != nil {
		return nil, err
	}
	count, err := s.triggers.CountByWorkflowID(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count triggers: %w", err)
	}
	if int(count) >= limits.MaxTriggersPerWorkflow {
		return nil, errs.New(op, errs.ErrTriggerLimitViolation,
			"workflow %s already has %d triggers (max %d)", wf.ID, count, limits.MaxTriggersPerWorkflow)
	}

	config, err := cfg.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode trigger config: %w", err)
	}

	trigger := &models.Trigger{
		ID:           uuid.New(),
		WorkflowID:   wf.ID,
		WorkspaceID:  wf.WorkspaceID,
		Name:         name,
		Description:  input.Description,
		Type:         input.Type,
		Config:       config,
		InputMapping: input.InputMapping,
		IsEnabled:    input.IsEnabled == nil || *input.IsEnabled,
	}
	if err := s.refresh(trigger, wf, cfg); err != nil {
		return nil, err
	}

	if err := s.triggers.Create(ctx, trigger); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, errs.New(op, errs.ErrDuplicateName, "trigger %q already exists in workspace", name)
		}
		return nil, fmt.Errorf("failed to create trigger: %w", err)
	}

	log.Info().
		Str("trigger_id", trigger.ID.String()).
		Str("workflow_id", wf.ID.String()).
		Str("type", string(trigger.Type)).
		Msg("Trigger created")

	return trigger, nil
}

type UpdateTriggerInput struct {
	Name         *string
	Description  *string
	Config       models.JSON
	InputMapping models.JSON
	IsEnabled    *bool
}

// Update changes a trigger. The type of a trigger is fixed at creation.
func (s *TriggerService) Update(ctx context.Context, id uuid.UUID, input UpdateTriggerInput) (*models.Trigger, error) {
	const op = "trigger.Update"

	trigger, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(trigger.WorkflowID)
	defer unlock()

	wf, err := s.mutableWorkflow(ctx, op, trigger.WorkflowID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrTriggerNameRequired
		}
		if err := s.checkName(ctx, op, trigger.WorkspaceID, name, trigger.ID); err != nil {
			return nil, err
		}
		trigger.Name = name
	}
	if input.Description != nil {
		trigger.Description = input.Description
	}
	if input.Config != nil {
		trigger.Config = input.Config
	}
	if input.InputMapping != nil {
		if err := s.mapper.Check(input.InputMapping); err != nil {
			return nil, err
		}
		trigger.InputMapping = input.InputMapping
	}
	if input.IsEnabled != nil {
		trigger.IsEnabled = *input.IsEnabled
	}

	cfg, err := DecodeTriggerConfig(trigger.Type, trigger.Config)
	if err != nil {
		return nil, err
	}
	if trigger.Config, err = cfg.Encode(); err != nil {
		return nil, fmt.Errorf("failed to encode trigger config: %w", err)
	}
	s.calculator.Invalidate(trigger.ID)
	if err := s.refresh(trigger, wf, cfg); err != nil {
		return nil, err
	}

	if err := s.triggers.Update(ctx, trigger); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, errs.New(op, errs.ErrDuplicateName, "trigger %q already exists in workspace", trigger.Name)
		}
		return nil, fmt.Errorf("failed to update trigger: %w", err)
	}
	s.limiters.Delete(trigger.ID)

	log.Info().Str("trigger_id", trigger.ID.String()).Msg("Trigger updated")
	return trigger, nil
}

// Delete removes a trigger. The default trigger is never deletable and the
// workflow must keep at least the configured minimum.
func (s *TriggerService) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "trigger.Delete"

	trigger, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(trigger.WorkflowID)
	defer unlock()

	wf, err := s.mutableWorkflow(ctx, op, trigger.WorkflowID)
	if err != nil {
		return err
	}
	if trigger.IsDefault {
		return errs.New(op, errs.ErrDefaultTriggerProtected, "trigger %s is the default trigger of workflow %s", id, wf.ID)
	}

	limits, err := s.limits.ForWorkspace(ctx, wf.WorkspaceID)
	if err != nil {
		return err
	}
	count, err := s.triggers.CountByWorkflowID(ctx, wf.ID)
	if err != nil {
		return fmt.Errorf("failed to count triggers: %w", err)
	}
	if int(count)-1 < limits.MinTriggersPerWorkflow {
		return errs.New(op, errs.ErrTriggerLimitViolation,
			"workflow %s must keep at least %d triggers", wf.ID, limits.MinTriggersPerWorkflow)
	}

	if err := s.triggers.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}
	s.limiters.Delete(id)
	s.calculator.Invalidate(id)

	log.Info().Str("trigger_id", id.String()).Str("workflow_id", wf.ID.String()).Msg("Trigger deleted")
	return nil
}

func (s *TriggerService) Enable(ctx context.Context, id uuid.UUID) (*models.Trigger, error) {
	enabled := true
	return s.Update(ctx, id, UpdateTriggerInput{IsEnabled: &enabled})
}

func (s *TriggerService) Disable(ctx context.Context, id uuid.UUID) (*models.Trigger, error) {
	enabled := false
	return s.Update(ctx, id, UpdateTriggerInput{IsEnabled: &enabled})
}

func (s *TriggerService) Get(ctx context.Context, id uuid.UUID) (*models.Trigger, error) {
	trigger, err := s.triggers.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}
	return trigger, nil
}

func (s *TriggerService) List(ctx context.Context, workflowID uuid.UUID) ([]models.Trigger, error) {
	triggers, err := s.triggers.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	return triggers, nil
}

// FireInput is one activation of a trigger.
type FireInput struct {
	TriggerID   uuid.UUID
	Payload     map[string]interface{}
	Actor       string
	ScheduledAt *time.Time
}

// Fire starts an execution from an effectively enabled trigger.
func (s *TriggerService) Fire(ctx context.Context, input FireInput) (*models.Execution, error) {
	trigger, err := s.Get(ctx, input.TriggerID)
	if err != nil {
		return nil, err
	}
	return s.fire(ctx, trigger, input)
}

// FireWebhook verifies the request signature when the trigger has a secret,
// decodes the body and fires the trigger.
func (s *TriggerService) FireWebhook(ctx context.Context, triggerID uuid.UUID, method string, body []byte, signature string) (*models.Execution, error) {
	trigger, err := s.Get(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if trigger.Type != models.TriggerTypeWebhook {
		return nil, fmt.Errorf("%w: %s is %s", ErrTriggerTypeMismatch, triggerID, trigger.Type)
	}
	cfg, err := DecodeTriggerConfig(trigger.Type, trigger.Config)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(cfg.Webhook.Method, method) {
		return nil, fmt.Errorf("%w: webhook expects %s", ErrTriggerTypeMismatch, cfg.Webhook.Method)
	}
	if cfg.Webhook.Secret != "" {
		verifier := webhook.NewSignatureVerifier(cfg.Webhook.SignatureAlgorithm, cfg.Webhook.Secret)
		if !verifier.Verify(body, signature) {
			return nil, ErrInvalidSignature
		}
	}

	payload := map[string]interface{}{}
	if len(body) > 0 {
		var decoded interface{}
		if err := json.Unmarshal(body, &decoded); err != nil {
			payload["body"] = string(body)
		} else if obj, ok := decoded.(map[string]interface{}); ok {
			payload = obj
		} else {
			payload["body"] = decoded
		}
	}

	return s.fire(ctx, trigger, FireInput{TriggerID: triggerID, Payload: payload, Actor: "webhook"})
}

// EmitEvent fires every effectively enabled EVENT trigger of the workspace
// listening for event. Triggers that fail to fire are logged and skipped.
func (s *TriggerService) EmitEvent(ctx context.Context, workspaceID uuid.UUID, event string, payload map[string]interface{}, actor string) ([]*models.Execution, error) {
	triggers, err := s.triggers.FindByEvent(ctx, workspaceID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to find event triggers: %w", err)
	}

	var executions []*models.Execution
	for i := range triggers {
		execution, err := s.fire(ctx, &triggers[i], FireInput{TriggerID: triggers[i].ID, Payload: payload, Actor: actor})
		if err != nil {
			log.Warn().
				Err(err).
				Str("trigger_id", triggers[i].ID.String()).
				Str("event", event).
				Msg("Failed to fire event trigger")
			continue
		}
		executions = append(executions, execution)
	}
	return executions, nil
}

// FireScheduled fires a due SCHEDULED trigger and advances its next_run_at.
func (s *TriggerService) FireScheduled(ctx context.Context, triggerID uuid.UUID, scheduledAt time.Time) (*models.Execution, error) {
	trigger, err := s.Get(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if trigger.Type != models.TriggerTypeScheduled {
		return nil, fmt.Errorf("%w: %s is %s", ErrTriggerTypeMismatch, triggerID, trigger.Type)
	}
	// A fire for an older slot means the trigger already fired or was
	// rescheduled since the task was enqueued.
	if trigger.NextRunAt == nil || trigger.NextRunAt.After(scheduledAt) {
		return nil, fmt.Errorf("%w: %s at %s", ErrTriggerNotDue, triggerID, scheduledAt.UTC().Format(time.RFC3339))
	}
	payload := map[string]interface{}{
		"scheduled_at": scheduledAt.UTC().Format(time.RFC3339),
	}
	return s.fire(ctx, trigger, FireInput{TriggerID: triggerID, Payload: payload, Actor: ActorScheduler, ScheduledAt: &scheduledAt})
}

func (s *TriggerService) fire(ctx context.Context, trigger *models.Trigger, input FireInput) (*models.Execution, error) {
	wf, err := s.workflows.FindByID(ctx, trigger.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, trigger.WorkflowID)
	}
	if !trigger.Effective(wf.Status) {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotEnabled, trigger.ID)
	}

	cfg, err := DecodeTriggerConfig(trigger.Type, trigger.Config)
	if err != nil {
		return nil, err
	}
	if cfg.API != nil && cfg.API.RateLimitPerMinute > 0 && !s.limiter(trigger.ID, cfg.API.RateLimitPerMinute).Allow() {
		return nil, fmt.Errorf("%w: %s", ErrTriggerRateLimited, trigger.ID)
	}

	now := s.now()
	data, err := s.mapper.Map(trigger, input.Payload, now)
	if err != nil {
		return nil, err
	}

	execution, err := s.executions.Start(ctx, StartExecutionInput{
		Workflow:    wf,
		Trigger:     trigger,
		TriggerType: string(trigger.Type),
		TriggerData: data,
		TriggeredBy: input.Actor,
	})
	if err != nil {
		return nil, err
	}

	var nextRunAt *time.Time
	if cfg.Scheduled != nil {
		next, err := s.calculator.NextRun(trigger.ID, cfg.Scheduled.CronExpression, cfg.Scheduled.Timezone, now)
		if err != nil {
			log.Error().Err(err).Str("trigger_id", trigger.ID.String()).Msg("Failed to calculate next run")
		} else {
			nextRunAt = &next
		}
	}
	if err := s.triggers.RecordFire(ctx, trigger.ID, now, nextRunAt); err != nil {
		log.Error().Err(err).Str("trigger_id", trigger.ID.String()).Msg("Failed to record trigger fire")
	}

	return execution, nil
}

func (s *TriggerService) limiter(id uuid.UUID, perMinute int) *rate.Limiter {
	v, _ := s.limiters.LoadOrStore(id, rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute))
	return v.(*rate.Limiter)
}

// createDefault adds the protected API trigger every workflow starts with.
func (s *TriggerService) createDefault(ctx context.Context, wf *models.Workflow) (*models.Trigger, error) {
	name := wf.Name + " default"
	if _, err := s.triggers.FindByName(ctx, wf.WorkspaceID, name); err == nil {
		name = fmt.Sprintf("%s default %s", wf.Name, wf.ID.String()[:8])
	}

	trigger := &models.Trigger{
		ID:           uuid.New(),
		WorkflowID:   wf.ID,
		WorkspaceID:  wf.WorkspaceID,
		Name:         name,
		Type:         models.TriggerTypeAPI,
		Config:       models.JSON{},
		InputMapping: models.JSON{},
		IsEnabled:    true,
		IsDefault:    true,
	}
	trigger.EffectivelyEnabled = trigger.Effective(wf.Status)

	if err := s.triggers.Create(ctx, trigger); err != nil {
		return nil, fmt.Errorf("failed to create default trigger: %w", err)
	}
	return trigger, nil
}

// cascade recomputes effective enablement of every trigger of wf after a
// status change. Stored is_enabled flags are left as they are.
func (s *TriggerService) cascade(ctx context.Context, wf *models.Workflow) error {
	triggers, err := s.triggers.FindByWorkflowID(ctx, wf.ID)
	if err != nil {
		return fmt.Errorf("failed to load triggers: %w", err)
	}
	for i := range triggers {
		t := &triggers[i]
		cfg, err := DecodeTriggerConfig(t.Type, t.Config)
		if err != nil {
			return err
		}
		if err := s.refresh(t, wf, cfg); err != nil {
			return err
		}
		if err := s.triggers.Update(ctx, t); err != nil {
			return fmt.Errorf("failed to update trigger %s: %w", t.ID, err)
		}
	}

	log.Info().
		Str("workflow_id", wf.ID.String()).
		Str("status", string(wf.Status)).
		Int("triggers", len(triggers)).
		Msg("Trigger enablement cascaded")
	return nil
}

// refresh derives effectively_enabled and next_run_at from the trigger, its
// config and the workflow status.
func (s *TriggerService) refresh(t *models.Trigger, wf *models.Workflow, cfg *TriggerConfig) error {
	t.EffectivelyEnabled = t.Effective(wf.Status)
	if cfg.Scheduled == nil || !t.EffectivelyEnabled {
		t.NextRunAt = nil
		return nil
	}
	next, err := s.calculator.NextRun(t.ID, cfg.Scheduled.CronExpression, cfg.Scheduled.Timezone, s.now())
	if err != nil {
		return errs.New("trigger.Schedule", errs.ErrInvalidParameter, "%v", err)
	}
	t.NextRunAt = &next
	return nil
}

func (s *TriggerService) mutableWorkflow(ctx context.Context, op string, workflowID uuid.UUID) (*models.Workflow, error) {
	wf, err := s.workflows.FindByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	if !wf.IsMutable() {
		return nil, errs.New(op, errs.ErrWorkflowArchived, "workflow %s is archived", wf.ID)
	}
	return wf, nil
}

func (s *TriggerService) checkName(ctx context.Context, op string, workspaceID uuid.UUID, name string, self uuid.UUID) error {
	existing, err := s.triggers.FindByName(ctx, workspaceID, name)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check trigger name: %w", err)
	}
	if existing.ID != self {
		return errs.New(op, errs.ErrDuplicateName, "trigger %q already exists in workspace", name)
	}
	return nil
}
