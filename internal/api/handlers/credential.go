package handlers

import (
	"net/http"

	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/api/middleware"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
)

// CredentialHandler stores the secrets nodes reference as ${credential:...}
// and ${value:...}. Stored values are never returned.
type CredentialHandler struct {
	credentialSvc *services.CredentialService
}

func NewCredentialHandler(credentialSvc *services.CredentialService) *CredentialHandler {
	return &CredentialHandler{credentialSvc: credentialSvc}
}

func (h *CredentialHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	wsCtx := RequireWorkspaceContext(w, r)
	if claims == nil || wsCtx == nil {
		return
	}

	var req dto.CreateCredentialRequest
	if !decode(w, r, &req) {
		return
	}

	credential, err := h.credentialSvc.CreateCredential(r.Context(), services.CreateCredentialInput{
		WorkspaceID: wsCtx.WorkspaceID,
		CreatedBy:   claims.UserID,
		Name:        req.Name,
		Type:        req.Type,
		Data:        req.Data,
		Description: req.Description,
	})
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.Created(w, dto.NewCredentialResponse(credential))
}

func (h *CredentialHandler) CreateVariable(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	wsCtx := RequireWorkspaceContext(w, r)
	if claims == nil || wsCtx == nil {
		return
	}

	var req dto.CreateVariableRequest
	if !decode(w, r, &req) {
		return
	}

	variable, err := h.credentialSvc.CreateVariable(r.Context(), services.CreateVariableInput{
		WorkspaceID: wsCtx.WorkspaceID,
		CreatedBy:   claims.UserID,
		Name:        req.Name,
		Value:       req.Value,
		IsSecret:    req.IsSecret,
		Description: req.Description,
	})
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.Created(w, dto.NewVariableResponse(variable))
}
