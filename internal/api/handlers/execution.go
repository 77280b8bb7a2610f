package handlers

import (
	"net/http"
	"strconv"

	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/api/middleware"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
)

type ExecutionHandler struct {
	workflowLoader
	executionSvc *services.ExecutionService
}

func NewExecutionHandler(workflowSvc *services.WorkflowService, executionSvc *services.ExecutionService) *ExecutionHandler {
	return &ExecutionHandler{
		workflowLoader: workflowLoader{workflowSvc: workflowSvc},
		executionSvc:   executionSvc,
	}
}

// TestRun starts a manual execution; the workflow may be in any status but
// ARCHIVED.
func (h *ExecutionHandler) TestRun(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}

	var req dto.TestRunRequest
	if !decode(w, r, &req) {
		return
	}

	execution, err := h.executionSvc.TestRun(r.Context(), workflow.ID, req.TriggerData)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.Accepted(w, dto.NewExecutionResponse(execution))
}

func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	opts := repositories.NewListOptions(page, perPage)

	executions, total, err := h.executionSvc.List(r.Context(), workflow.ID, opts)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	response := make([]dto.ExecutionResponse, 0, len(executions))
	for i := range executions {
		response = append(response, dto.NewExecutionResponse(&executions[i]))
	}
	dto.JSONWithMeta(w, http.StatusOK, response, dto.NewMeta(opts, total))
}

func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	execution, ok := h.loadExecution(w, r)
	if !ok {
		return
	}
	dto.OK(w, dto.NewExecutionResponse(execution))
}

// Inputs lists the parameter snapshots each node ran with. Secret values
// appear as their reference strings.
func (h *ExecutionHandler) Inputs(w http.ResponseWriter, r *http.Request) {
	execution, ok := h.loadExecution(w, r)
	if !ok {
		return
	}

	inputs, err := h.executionSvc.ListInputs(r.Context(), execution.ID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	response := make([]dto.ExecutionInputResponse, 0, len(inputs))
	for i := range inputs {
		response = append(response, dto.NewExecutionInputResponse(&inputs[i]))
	}
	dto.OK(w, response)
}

func (h *ExecutionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	execution, ok := h.loadExecution(w, r)
	if !ok {
		return
	}

	cancelled, err := h.executionSvc.Cancel(r.Context(), execution.ID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, dto.NewExecutionResponse(cancelled))
}

// Retry starts a new execution from a finished, unsuccessful one.
func (h *ExecutionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	execution, ok := h.loadExecution(w, r)
	if !ok {
		return
	}

	retry, err := h.executionSvc.Retry(r.Context(), execution.ID, middleware.Actor(r.Context()))
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.Accepted(w, dto.NewExecutionResponse(retry))
}

func (h *ExecutionHandler) loadExecution(w http.ResponseWriter, r *http.Request) (*models.Execution, bool) {
	id, ok := uuidParam(w, r, "executionID", "execution")
	if !ok {
		return nil, false
	}
	execution, err := h.executionSvc.Get(r.Context(), id)
	if err != nil {
		dto.HandleServiceError(w, err)
		return nil, false
	}
	if !ValidateWorkspaceOwnership(w, r, execution) {
		return nil, false
	}
	return execution, true
}
