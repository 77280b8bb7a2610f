package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/api/middleware"
	"github.com/linkflow-ai/scriptflow/internal/pkg/validator"
)

// Request Size Limiting
const (
	DefaultMaxBodySize    = 1 << 20 // 1 MB
	DefaultMaxWebhookSize = 5 << 20 // 5 MB
)

// WorkspaceOwned is an interface for resources that belong to a workspace
type WorkspaceOwned interface {
	GetWorkspaceID() uuid.UUID
}

// ValidateWorkspaceOwnership checks if a resource belongs to the current workspace context.
// If invalid, it writes an error response and the caller should return immediately.
func ValidateWorkspaceOwnership(w http.ResponseWriter, r *http.Request, resource WorkspaceOwned) bool {
	wsCtx := middleware.GetWorkspaceFromContext(r.Context())
	if wsCtx == nil {
		dto.ErrorResponse(w, http.StatusForbidden, "workspace context required")
		return false
	}

	if resource.GetWorkspaceID() != wsCtx.WorkspaceID {
		// Return 404 instead of 403 to prevent resource enumeration
		dto.ErrorResponse(w, http.StatusNotFound, "resource not found")
		return false
	}

	return true
}

// RequireWorkspaceContext returns the workspace context or writes an error response.
func RequireWorkspaceContext(w http.ResponseWriter, r *http.Request) *middleware.WorkspaceContext {
	wsCtx := middleware.GetWorkspaceFromContext(r.Context())
	if wsCtx == nil {
		dto.ErrorResponse(w, http.StatusForbidden, "workspace context required")
		return nil
	}
	return wsCtx
}

// uuidParam parses a chi URL parameter, answering 400 when it is malformed.
func uuidParam(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		dto.BadRequest(w, "invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a size-limited JSON body into req and validates it. An empty
// body leaves req at its zero value.
func decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			dto.ErrorResponse(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		dto.BadRequest(w, "invalid request body")
		return false
	}
	if s, ok := req.(dto.Sanitizer); ok {
		s.Sanitize()
	}
	if err := validator.Validate(req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return false
	}
	return true
}

func parseOptionalUUID(s *string) *uuid.UUID {
	if s == nil {
		return nil
	}
	id := uuid.MustParse(*s)
	return &id
}
