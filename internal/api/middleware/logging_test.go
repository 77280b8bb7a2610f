package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = previous })
	return &buf
}

func TestLogger_CarriesRouteAndCallerFields(t *testing.T) {
	buf := captureLog(t)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(Logger())
	router.Route("/workspaces/{workspaceID}", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				AnnotateLogger(r, func(c zerolog.Context) zerolog.Context {
					return c.Str("user_id", "u-1")
				})
				next.ServeHTTP(w, r)
			})
		})
		r.Get("/executions/{executionID}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/workspaces/ws-1/executions/ex-9", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request completed", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "ws-1", line["workspace_id"])
	assert.Equal(t, "ex-9", line["execution_id"])
	assert.Equal(t, "u-1", line["user_id"])
	assert.Equal(t, "/workspaces/{workspaceID}/executions/{executionID}", line["route"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.NotEmpty(t, line["request_id"])
	assert.NotContains(t, line, "workflow_id")
}

func TestRecoverer_LogsPanic(t *testing.T) {
	buf := captureLog(t)

	router := chi.NewRouter()
	router.Use(Logger())
	router.Use(Recoverer())
	router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaput") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), `"level":"error"`)
}
