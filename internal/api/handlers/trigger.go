package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/api/middleware"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
	"github.com/linkflow-ai/scriptflow/internal/pkg/metrics"
)

type TriggerHandler struct {
	workflowLoader
	triggerSvc *services.TriggerService
}

func NewTriggerHandler(workflowSvc *services.WorkflowService, triggerSvc *services.TriggerService) *TriggerHandler {
	return &TriggerHandler{
		workflowLoader: workflowLoader{workflowSvc: workflowSvc},
		triggerSvc:     triggerSvc,
	}
}

func (h *TriggerHandler) List(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}

	triggers, err := h.triggerSvc.List(r.Context(), workflow.ID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	response := make([]dto.TriggerResponse, 0, len(triggers))
	for i := range triggers {
		response = append(response, dto.NewTriggerResponse(&triggers[i]))
	}
	dto.OK(w, response)
}

func (h *TriggerHandler) Create(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}

	var req dto.CreateTriggerRequest
	if !decode(w, r, &req) {
		return
	}

	trigger, err := h.triggerSvc.Create(r.Context(), services.CreateTriggerInput{
		WorkflowID:   workflow.ID,
		Name:         req.Name,
		Description:  req.Description,
		Type:         models.TriggerType(req.Type),
		Config:       req.Config,
		InputMapping: req.InputMapping,
		IsEnabled:    req.IsEnabled,
	})
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.Created(w, dto.NewTriggerResponse(trigger))
}

func (h *TriggerHandler) Get(w http.ResponseWriter, r *http.Request) {
	trigger, ok := h.loadTrigger(w, r)
	if !ok {
		return
	}
	dto.OK(w, dto.NewTriggerResponse(trigger))
}

func (h *TriggerHandler) Update(w http.ResponseWriter, r *http.Request) {
	trigger, ok := h.loadTrigger(w, r)
	if !ok {
		return
	}

	var req dto.UpdateTriggerRequest
	if !decode(w, r, &req) {
		return
	}

	updated, err := h.triggerSvc.Update(r.Context(), trigger.ID, services.UpdateTriggerInput{
		Name:         req.Name,
		Description:  req.Description,
		Config:       req.Config,
		InputMapping: req.InputMapping,
		IsEnabled:    req.IsEnabled,
	})
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.OK(w, dto.NewTriggerResponse(updated))
}

func (h *TriggerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	trigger, ok := h.loadTrigger(w, r)
	if !ok {
		return
	}
	if err := h.triggerSvc.Delete(r.Context(), trigger.ID); err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.NoContent(w)
}

func (h *TriggerHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.triggerSvc.Enable)
}

func (h *TriggerHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.triggerSvc.Disable)
}

func (h *TriggerHandler) toggle(w http.ResponseWriter, r *http.Request, apply func(context.Context, uuid.UUID) (*models.Trigger, error)) {
	trigger, ok := h.loadTrigger(w, r)
	if !ok {
		return
	}
	updated, err := apply(r.Context(), trigger.ID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, dto.NewTriggerResponse(updated))
}

// Fire starts an execution from an API trigger. Other trigger types fire
// through their own entry points.
func (h *TriggerHandler) Fire(w http.ResponseWriter, r *http.Request) {
	trigger, ok := h.loadTrigger(w, r)
	if !ok {
		return
	}
	if trigger.Type != models.TriggerTypeAPI {
		dto.HandleServiceError(w, fmt.Errorf("%w: %s is %s", services.ErrTriggerTypeMismatch, trigger.ID, trigger.Type))
		return
	}

	var req dto.FireTriggerRequest
	if !decode(w, r, &req) {
		return
	}

	execution, err := h.triggerSvc.Fire(r.Context(), services.FireInput{
		TriggerID: trigger.ID,
		Payload:   req.Payload,
		Actor:     middleware.Actor(r.Context()),
	})
	recordFire(models.TriggerTypeAPI, err)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.Accepted(w, dto.NewExecutionResponse(execution))
}

func (h *TriggerHandler) loadTrigger(w http.ResponseWriter, r *http.Request) (*models.Trigger, bool) {
	workflow, ok := h.load(w, r)
	if !ok {
		return nil, false
	}
	id, ok := uuidParam(w, r, "triggerID", "trigger")
	if !ok {
		return nil, false
	}
	trigger, err := h.triggerSvc.Get(r.Context(), id)
	if err != nil {
		dto.HandleServiceError(w, err)
		return nil, false
	}
	if trigger.WorkflowID != workflow.ID {
		dto.NotFound(w, "Trigger")
		return nil, false
	}
	return trigger, true
}

// recordFire counts a fire attempt by trigger type and outcome.
func recordFire(t models.TriggerType, err error) {
	result := "queued"
	if err != nil {
		result = errs.CodeOf(err)
		switch {
		case errors.Is(err, services.ErrTriggerNotEnabled):
			result = "not_enabled"
		case errors.Is(err, services.ErrTriggerRateLimited):
			result = "rate_limited"
		case errors.Is(err, services.ErrInvalidSignature):
			result = "bad_signature"
		}
	}
	metrics.RecordTriggerFire(string(t), result)
}
