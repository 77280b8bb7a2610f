package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/rs/zerolog/log"
)

// WorkspaceFinder loads workspaces for access checks.
type WorkspaceFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
}

type TenantMiddleware struct {
	workspaces WorkspaceFinder
}

func NewTenantMiddleware(workspaces WorkspaceFinder) *TenantMiddleware {
	return &TenantMiddleware{workspaces: workspaces}
}

type WorkspaceContext struct {
	WorkspaceID uuid.UUID
	PlanID      string
}

// RequireAccess admits callers whose token is pinned to the workspace in the
// path, or who own it when the token is not pinned.
func (m *TenantMiddleware) RequireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r.Context())
		if claims == nil {
			dto.ErrorResponse(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
		if err != nil {
			dto.ErrorResponse(w, http.StatusBadRequest, "invalid workspace ID")
			return
		}

		if claims.WorkspaceID != nil && *claims.WorkspaceID != workspaceID {
			dto.ErrorResponse(w, http.StatusForbidden, "token is not valid for this workspace")
			return
		}

		workspace, err := m.workspaces.FindByID(r.Context(), workspaceID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				dto.NotFound(w, "Workspace")
				return
			}
			log.Error().Err(err).Str("workspace_id", workspaceID.String()).Msg("Failed to load workspace")
			dto.ErrorResponse(w, http.StatusInternalServerError, "failed to check workspace access")
			return
		}
		if claims.WorkspaceID == nil && workspace.OwnerID != claims.UserID {
			dto.ErrorResponse(w, http.StatusForbidden, "not a member of this workspace")
			return
		}

		wsCtx := &WorkspaceContext{
			WorkspaceID: workspace.ID,
			PlanID:      workspace.PlanID,
		}
		ctx := context.WithValue(r.Context(), WorkspaceContextKey, wsCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetWorkspaceFromContext(ctx context.Context) *WorkspaceContext {
	wsCtx, ok := ctx.Value(WorkspaceContextKey).(*WorkspaceContext)
	if !ok {
		return nil
	}
	return wsCtx
}
