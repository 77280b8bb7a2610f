package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/api/middleware"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
)

// workflowLoader resolves the {workflowID} path parameter to a workflow of
// the current workspace.
type workflowLoader struct {
	workflowSvc *services.WorkflowService
}

func (l workflowLoader) load(w http.ResponseWriter, r *http.Request) (*models.Workflow, bool) {
	id, ok := uuidParam(w, r, "workflowID", "workflow")
	if !ok {
		return nil, false
	}
	workflow, err := l.workflowSvc.GetByID(r.Context(), id)
	if err != nil {
		dto.HandleServiceError(w, err)
		return nil, false
	}
	if !ValidateWorkspaceOwnership(w, r, workflow) {
		return nil, false
	}
	return workflow, true
}

type WorkflowHandler struct {
	workflowLoader
}

func NewWorkflowHandler(workflowSvc *services.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflowLoader{workflowSvc: workflowSvc}}
}

func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	wsCtx := RequireWorkspaceContext(w, r)
	if wsCtx == nil {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	opts := repositories.NewListOptions(page, perPage)

	workflows, total, err := h.workflowSvc.GetByWorkspace(r.Context(), wsCtx.WorkspaceID, opts)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	response := make([]dto.WorkflowResponse, 0, len(workflows))
	for i := range workflows {
		response = append(response, dto.NewWorkflowResponse(&workflows[i]))
	}

	dto.JSONWithMeta(w, http.StatusOK, response, dto.NewMeta(opts, total))
}

// Create creates a DRAFT workflow; its default API trigger is created with it.
func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	wsCtx := RequireWorkspaceContext(w, r)
	if claims == nil || wsCtx == nil {
		return
	}

	var req dto.CreateWorkflowRequest
	if !decode(w, r, &req) {
		return
	}

	workflow, err := h.workflowSvc.Create(r.Context(), services.CreateWorkflowInput{
		WorkspaceID: wsCtx.WorkspaceID,
		CreatedBy:   claims.UserID,
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		Tags:        req.Tags,
	})
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.Created(w, dto.NewWorkflowResponse(workflow))
}

func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}
	dto.OK(w, dto.NewWorkflowResponse(workflow))
}

func (h *WorkflowHandler) Update(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}

	var req dto.UpdateWorkflowRequest
	if !decode(w, r, &req) {
		return
	}

	updated, err := h.workflowSvc.Update(r.Context(), workflow.ID, services.UpdateWorkflowInput{
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		Tags:        req.Tags,
	})
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.OK(w, dto.NewWorkflowResponse(updated))
}

func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.workflowSvc.Delete(r.Context(), workflow.ID); err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.NoContent(w)
}

func (h *WorkflowHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflowSvc.Activate)
}

func (h *WorkflowHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflowSvc.Deactivate)
}

func (h *WorkflowHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflowSvc.Archive)
}

// Draft moves a workflow back to DRAFT; this is the only way out of ARCHIVED.
func (h *WorkflowHandler) Draft(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflowSvc.SetDraft)
}

type transitionFunc func(ctx context.Context, id uuid.UUID) (*models.Workflow, error)

func (h *WorkflowHandler) transition(w http.ResponseWriter, r *http.Request, apply transitionFunc) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}
	updated, err := apply(r.Context(), workflow.ID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, dto.NewWorkflowResponse(updated))
}
