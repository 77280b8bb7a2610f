package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/api/middleware"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
	"github.com/linkflow-ai/scriptflow/internal/pkg/validator"
)

type EventHandler struct {
	triggerSvc *services.TriggerService
}

func NewEventHandler(triggerSvc *services.TriggerService) *EventHandler {
	return &EventHandler{triggerSvc: triggerSvc}
}

// Emit fires every enabled EVENT trigger of the workspace listening for the
// event in the path. Emitting an event nobody listens to is not an error.
func (h *EventHandler) Emit(w http.ResponseWriter, r *http.Request) {
	wsCtx := RequireWorkspaceContext(w, r)
	if wsCtx == nil {
		return
	}

	event := chi.URLParam(r, "event")
	if err := validator.ValidateVar(event, "event_name"); err != nil {
		dto.BadRequest(w, "invalid event name")
		return
	}

	var req dto.EmitEventRequest
	if !decode(w, r, &req) {
		return
	}

	executions, err := h.triggerSvc.EmitEvent(r.Context(), wsCtx.WorkspaceID, event, req.Payload, middleware.Actor(r.Context()))
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	response := dto.EventResponse{Event: event, Executions: make([]dto.ExecutionResponse, 0, len(executions))}
	for _, e := range executions {
		recordFire(models.TriggerTypeEvent, nil)
		response.Executions = append(response.Executions, dto.NewExecutionResponse(e))
	}
	dto.Accepted(w, response)
}
