package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// routeParams are the URL parameters copied onto the request log line.
var routeParams = []string{"workspaceID", "workflowID", "executionID", "triggerID", "nodeID"}

var routeFields = map[string]string{
	"workspaceID": "workspace_id",
	"workflowID":  "workflow_id",
	"executionID": "execution_id",
	"triggerID":   "trigger_id",
	"nodeID":      "node_id",
}

// Logger logs one line per request. It also puts a request-scoped logger in
// the context; inner middleware add fields to it with AnnotateLogger.
func Logger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			l := log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			r = r.WithContext(l.WithContext(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				event := zerolog.Ctx(r.Context()).Info()
				if status >= http.StatusInternalServerError {
					event = zerolog.Ctx(r.Context()).Error()
				}

				// Sub-routers fill the shared route context while serving.
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					if pattern := rctx.RoutePattern(); pattern != "" {
						event = event.Str("route", pattern)
					}
					for _, key := range routeParams {
						if v := rctx.URLParam(key); v != "" {
							event = event.Str(routeFields[key], v)
						}
					}
				}

				event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AnnotateLogger adds fields to the request logger installed by Logger.
func AnnotateLogger(r *http.Request, fn func(zerolog.Context) zerolog.Context) {
	zerolog.Ctx(r.Context()).UpdateContext(fn)
}

func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					zerolog.Ctx(r.Context()).Error().
						Interface("error", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Str("request_id", middleware.GetReqID(r.Context())).
						Msg("panic recovered")

					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
