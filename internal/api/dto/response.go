package dto

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
	"github.com/linkflow-ai/scriptflow/internal/pkg/validator"
	"github.com/rs/zerolog/log"
)

// Error codes for consistent API responses
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
	ErrCodeTooManyRequest = "TOO_MANY_REQUESTS"
	ErrCodeServiceUnavail = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeNotEnabled     = "TRIGGER_NOT_ENABLED"
	ErrCodeTypeMismatch   = "TRIGGER_TYPE_MISMATCH"
	ErrCodeBadSignature   = "INVALID_SIGNATURE"
)

type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *ErrorData  `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type ErrorData struct {
	Code    string                      `json:"code"`
	Message string                      `json:"message"`
	Details []validator.ValidationError `json:"details,omitempty"`
}

type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewMeta builds pagination metadata for a listing.
func NewMeta(opts *repositories.ListOptions, total int64) *Meta {
	totalPages := int(total) / opts.Limit
	if int(total)%opts.Limit > 0 {
		totalPages++
	}
	return &Meta{
		Page:       opts.Offset/opts.Limit + 1,
		PerPage:    opts.Limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// getRequestID extracts request ID from response header if set
func getRequestID(w http.ResponseWriter) string {
	return w.Header().Get("X-Request-ID")
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	JSONWithMeta(w, status, data, nil)
}

func JSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := Response{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
	}

	_ = json.NewEncoder(w).Encode(response)
}

func errorWithCode(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := Response{
		Success:   false,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
		Error: &ErrorData{
			Code:    code,
			Message: message,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

func ErrorResponse(w http.ResponseWriter, status int, message string) {
	errorWithCode(w, status, statusToErrorCode(status), message)
}

func ValidationErrorResponse(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	response := Response{
		Success:   false,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
		Error: &ErrorData{
			Code:    ErrCodeValidation,
			Message: "Validation failed",
			Details: validator.FormatErrors(err),
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

func Accepted(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusAccepted, data)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func BadRequest(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func Forbidden(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func NotFound(w http.ResponseWriter, resource string) {
	errorWithCode(w, http.StatusNotFound, ErrCodeNotFound, resource+" not found")
}

func Conflict(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusConflict, ErrCodeConflict, message)
}

func TooManyRequests(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusTooManyRequests, ErrCodeTooManyRequest, message)
}

func InternalServerError(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusInternalServerError, ErrCodeInternalServer, message)
}

func ServiceUnavailable(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusServiceUnavailable, ErrCodeServiceUnavail, message)
}

var notFound = []struct {
	err      error
	resource string
}{
	{services.ErrWorkflowNotFound, "Workflow"},
	{services.ErrNodeNotFound, "Node"},
	{services.ErrEdgeNotFound, "Edge"},
	{services.ErrTriggerNotFound, "Trigger"},
	{services.ErrExecutionNotFound, "Execution"},
	{services.ErrCredentialNotFound, "Credential"},
	{services.ErrVariableNotFound, "Variable"},
	{repositories.ErrNotFound, "Resource"},
}

// HandleServiceError maps service-layer errors to HTTP responses. Taxonomy
// errors keep their code so clients can branch on it.
func HandleServiceError(w http.ResponseWriter, err error) {
	for _, nf := range notFound {
		if errors.Is(err, nf.err) {
			NotFound(w, nf.resource)
			return
		}
	}

	switch {
	case errs.IsValidation(err):
		errorWithCode(w, http.StatusBadRequest, errs.CodeOf(err), errorMessage(err))
	case errs.IsConflict(err):
		errorWithCode(w, http.StatusConflict, errs.CodeOf(err), errorMessage(err))
	case errors.Is(err, services.ErrWorkflowNameRequired),
		errors.Is(err, services.ErrTriggerNameRequired):
		BadRequest(w, err.Error())
	case errors.Is(err, services.ErrTriggerTypeMismatch):
		errorWithCode(w, http.StatusBadRequest, ErrCodeTypeMismatch, err.Error())
	case errors.Is(err, services.ErrTriggerNotEnabled):
		errorWithCode(w, http.StatusConflict, ErrCodeNotEnabled, err.Error())
	case errors.Is(err, services.ErrTriggerRateLimited):
		TooManyRequests(w, err.Error())
	case errors.Is(err, services.ErrInvalidSignature):
		errorWithCode(w, http.StatusUnauthorized, ErrCodeBadSignature, err.Error())
	case errors.Is(err, repositories.ErrDuplicate):
		Conflict(w, "resource already exists")
	case errors.Is(err, repositories.ErrStaleState):
		Conflict(w, "resource changed concurrently, retry the request")
	default:
		log.Error().Err(err).Msg("Unhandled service error")
		InternalServerError(w, "An unexpected error occurred")
	}
}

func errorMessage(err error) string {
	var e *errs.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// statusToErrorCode maps HTTP status codes to error codes
func statusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusTooManyRequests:
		return ErrCodeTooManyRequest
	case http.StatusInternalServerError:
		return ErrCodeInternalServer
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavail
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ErrCodeTimeout
	default:
		return http.StatusText(status)
	}
}

func unix(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ts := t.Unix()
	return &ts
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// Workflow responses
type WorkflowResponse struct {
	ID          string   `json:"id"`
	WorkspaceID string   `json:"workspace_id"`
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	Status      string   `json:"status"`
	Priority    int      `json:"priority"`
	Tags        []string `json:"tags,omitempty"`
	ActivatedAt *int64   `json:"activated_at,omitempty"`
	ArchivedAt  *int64   `json:"archived_at,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
}

func NewWorkflowResponse(wf *models.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:          wf.ID.String(),
		WorkspaceID: wf.WorkspaceID.String(),
		Name:        wf.Name,
		Description: wf.Description,
		Status:      string(wf.Status),
		Priority:    wf.Priority,
		Tags:        wf.Tags,
		ActivatedAt: unix(wf.ActivatedAt),
		ArchivedAt:  unix(wf.ArchivedAt),
		CreatedAt:   wf.CreatedAt.Unix(),
		UpdatedAt:   wf.UpdatedAt.Unix(),
	}
}

// Graph responses
type NodeResponse struct {
	ID             string              `json:"id"`
	WorkflowID     string              `json:"workflow_id"`
	Name           string              `json:"name"`
	ScriptID       *string             `json:"script_id,omitempty"`
	CustomScriptID *string             `json:"custom_script_id,omitempty"`
	InputParams    models.ParameterMap `json:"input_params"`
	OutputParams   models.ParameterMap `json:"output_params"`
	MaxRetries     int                 `json:"max_retries"`
	TimeoutSeconds int                 `json:"timeout_seconds"`
	MetaData       models.JSON         `json:"meta_data,omitempty"`
	CreatedAt      int64               `json:"created_at"`
	UpdatedAt      int64               `json:"updated_at"`
}

func NewNodeResponse(n *models.Node) NodeResponse {
	return NodeResponse{
		ID:             n.ID.String(),
		WorkflowID:     n.WorkflowID.String(),
		Name:           n.Name,
		ScriptID:       uuidString(n.ScriptID),
		CustomScriptID: uuidString(n.CustomScriptID),
		InputParams:    n.InputParams,
		OutputParams:   n.OutputParams,
		MaxRetries:     n.MaxRetries,
		TimeoutSeconds: n.TimeoutSeconds,
		MetaData:       n.MetaData,
		CreatedAt:      n.CreatedAt.Unix(),
		UpdatedAt:      n.UpdatedAt.Unix(),
	}
}

type EdgeResponse struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	FromNodeID string `json:"from_node_id"`
	ToNodeID   string `json:"to_node_id"`
	CreatedAt  int64  `json:"created_at"`
}

func NewEdgeResponse(e *models.Edge) EdgeResponse {
	return EdgeResponse{
		ID:         e.ID.String(),
		WorkflowID: e.WorkflowID.String(),
		FromNodeID: e.FromNodeID.String(),
		ToNodeID:   e.ToNodeID.String(),
		CreatedAt:  e.CreatedAt.Unix(),
	}
}

// OrderResponse lists node ids in a valid execution order.
type OrderResponse struct {
	NodeIDs []string `json:"node_ids"`
}

// Trigger responses
type TriggerResponse struct {
	ID                 string      `json:"id"`
	WorkflowID         string      `json:"workflow_id"`
	Name               string      `json:"name"`
	Description        *string     `json:"description,omitempty"`
	Type               string      `json:"type"`
	Config             models.JSON `json:"config"`
	InputMapping       models.JSON `json:"input_mapping,omitempty"`
	IsEnabled          bool        `json:"is_enabled"`
	IsDefault          bool        `json:"is_default"`
	EffectivelyEnabled bool        `json:"effectively_enabled"`
	State              string      `json:"state"`
	NextRunAt          *int64      `json:"next_run_at,omitempty"`
	LastFiredAt        *int64      `json:"last_fired_at,omitempty"`
	FireCount          int         `json:"fire_count"`
	CreatedAt          int64       `json:"created_at"`
}

func NewTriggerResponse(t *models.Trigger) TriggerResponse {
	return TriggerResponse{
		ID:                 t.ID.String(),
		WorkflowID:         t.WorkflowID.String(),
		Name:               t.Name,
		Description:        t.Description,
		Type:               string(t.Type),
		Config:             t.Config,
		InputMapping:       t.InputMapping,
		IsEnabled:          t.IsEnabled,
		IsDefault:          t.IsDefault,
		EffectivelyEnabled: t.EffectivelyEnabled,
		State:              string(t.State()),
		NextRunAt:          unix(t.NextRunAt),
		LastFiredAt:        unix(t.LastFiredAt),
		FireCount:          t.FireCount,
		CreatedAt:          t.CreatedAt.Unix(),
	}
}

// Execution responses
type ExecutionResponse struct {
	ID           string      `json:"id"`
	WorkflowID   string      `json:"workflow_id"`
	TriggerID    *string     `json:"trigger_id,omitempty"`
	Status       string      `json:"status"`
	TriggerType  string      `json:"trigger_type"`
	TriggerData  models.JSON `json:"trigger_data,omitempty"`
	Results      models.JSON `json:"results,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	ErrorNodeID  *string     `json:"error_node_id,omitempty"`
	TriggeredBy  string      `json:"triggered_by"`
	IsRetry      bool        `json:"is_retry"`
	RetryOfID    *string     `json:"retry_of_id,omitempty"`
	DurationMs   *int64      `json:"duration_ms,omitempty"`
	QueuedAt     int64       `json:"queued_at"`
	StartedAt    *int64      `json:"started_at,omitempty"`
	CompletedAt  *int64      `json:"completed_at,omitempty"`
}

func NewExecutionResponse(e *models.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:           e.ID.String(),
		WorkflowID:   e.WorkflowID.String(),
		TriggerID:    uuidString(e.TriggerID),
		Status:       string(e.Status),
		TriggerType:  e.TriggerType,
		TriggerData:  e.TriggerData,
		Results:      e.Results,
		ErrorMessage: e.ErrorMessage,
		ErrorNodeID:  uuidString(e.ErrorNodeID),
		TriggeredBy:  e.TriggeredBy,
		IsRetry:      e.IsRetry,
		RetryOfID:    uuidString(e.RetryOfID),
		DurationMs:   e.DurationMs,
		QueuedAt:     e.CreatedAt.Unix(),
		StartedAt:    unix(e.StartedAt),
		CompletedAt:  unix(e.EndedAt),
	}
}

type ExecutionInputResponse struct {
	NodeID     string      `json:"node_id"`
	NodeName   string      `json:"node_name"`
	Values     models.JSON `json:"values"`
	References models.JSON `json:"references,omitempty"`
	Redacted   []string    `json:"redacted,omitempty"`
	CreatedAt  int64       `json:"created_at"`
}

func NewExecutionInputResponse(in *models.ExecutionInput) ExecutionInputResponse {
	return ExecutionInputResponse{
		NodeID:     in.NodeID.String(),
		NodeName:   in.NodeName,
		Values:     in.Values,
		References: in.References,
		Redacted:   in.Redacted,
		CreatedAt:  in.CreatedAt.Unix(),
	}
}

// Credential responses never carry the sealed data.
type CredentialResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description *string `json:"description,omitempty"`
	LastUsedAt  *int64  `json:"last_used_at,omitempty"`
	CreatedAt   int64   `json:"created_at"`
}

func NewCredentialResponse(c *models.Credential) CredentialResponse {
	return CredentialResponse{
		ID:          c.ID.String(),
		Name:        c.Name,
		Type:        c.Type,
		Description: c.Description,
		LastUsedAt:  unix(c.LastUsedAt),
		CreatedAt:   c.CreatedAt.Unix(),
	}
}

type VariableResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	IsSecret    bool    `json:"is_secret"`
	Description *string `json:"description,omitempty"`
	CreatedAt   int64   `json:"created_at"`
}

func NewVariableResponse(v *models.Variable) VariableResponse {
	return VariableResponse{
		ID:          v.ID.String(),
		Name:        v.Name,
		IsSecret:    v.IsSecret,
		Description: v.Description,
		CreatedAt:   v.CreatedAt.Unix(),
	}
}

// EventResponse reports the executions an emitted event started.
type EventResponse struct {
	Event      string              `json:"event"`
	Executions []ExecutionResponse `json:"executions"`
}
