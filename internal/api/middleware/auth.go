package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/pkg/crypto"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	UserContextKey      contextKey = "user"
	WorkspaceContextKey contextKey = "workspace"
)

// TokenValidator parses and verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*crypto.Claims, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			dto.ErrorResponse(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			dto.ErrorResponse(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := m.tokens.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, crypto.ErrExpiredToken) {
				dto.ErrorResponse(w, http.StatusUnauthorized, "token expired")
				return
			}
			dto.ErrorResponse(w, http.StatusUnauthorized, "invalid token")
			return
		}

		AnnotateLogger(r, func(c zerolog.Context) zerolog.Context {
			return c.Str("user_id", claims.UserID.String())
		})
		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetUserFromContext(ctx context.Context) *crypto.Claims {
	claims, ok := ctx.Value(UserContextKey).(*crypto.Claims)
	if !ok {
		return nil
	}
	return claims
}

// Actor names the caller in triggered_by. Tokens without an actor fall back
// to the user id.
func Actor(ctx context.Context) string {
	claims := GetUserFromContext(ctx)
	if claims == nil {
		return ""
	}
	if claims.Actor != "" {
		return claims.Actor
	}
	return claims.UserID.String()
}
