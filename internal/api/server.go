package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/linkflow-ai/scriptflow/internal/api/handlers"
	"github.com/linkflow-ai/scriptflow/internal/api/middleware"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
	"github.com/linkflow-ai/scriptflow/internal/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	httpServer *http.Server
}

type Services struct {
	Workflow   *services.WorkflowService
	Graph      *services.GraphService
	Trigger    *services.TriggerService
	Execution  *services.ExecutionService
	Credential *services.CredentialService
}

// Dependencies are the infrastructure the HTTP layer talks to directly.
// DB and Redis are only pinged by health checks and may be nil.
type Dependencies struct {
	Tokens     middleware.TokenValidator
	Workspaces middleware.WorkspaceFinder
	Limiter    middleware.Counter
	DB         *gorm.DB
	Redis      *redis.Client
}

func NewServer(cfg *config.Config, svc *Services, deps Dependencies) *Server {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger())
	router.Use(middleware.Recoverer())
	router.Use(metrics.MetricsMiddleware)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS - support multiple origins (comma-separated in config)
	allowedOrigins := strings.Split(cfg.App.FrontendURL, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	router.Use(corsHandler.Handler)

	// Initialize handlers
	workflowHandler := handlers.NewWorkflowHandler(svc.Workflow)
	graphHandler := handlers.NewGraphHandler(svc.Workflow, svc.Graph)
	triggerHandler := handlers.NewTriggerHandler(svc.Workflow, svc.Trigger)
	executionHandler := handlers.NewExecutionHandler(svc.Workflow, svc.Execution)
	credentialHandler := handlers.NewCredentialHandler(svc.Credential)
	eventHandler := handlers.NewEventHandler(svc.Trigger)
	webhookHandler := handlers.NewWebhookHandler(svc.Trigger)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis)

	authMiddleware := middleware.NewAuthMiddleware(deps.Tokens)
	tenantMiddleware := middleware.NewTenantMiddleware(deps.Workspaces)
	rateLimiter := middleware.NewRateLimiter(deps.Limiter)

	router.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Use(rateLimiter.Limit(100, time.Minute))

			r.Get("/health", healthHandler.Health)
			r.Get("/health/live", healthHandler.Live)
			r.Get("/health/ready", healthHandler.Ready)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimiter.Limit(1000, time.Minute))

			r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
				r.Use(tenantMiddleware.RequireAccess)

				// Workflows
				r.Get("/workflows", workflowHandler.List)
				r.Post("/workflows", workflowHandler.Create)

				r.Route("/workflows/{workflowID}", func(r chi.Router) {
					r.Get("/", workflowHandler.Get)
					r.Patch("/", workflowHandler.Update)
					r.Delete("/", workflowHandler.Delete)
					r.Post("/activate", workflowHandler.Activate)
					r.Post("/deactivate", workflowHandler.Deactivate)
					r.Post("/archive", workflowHandler.Archive)
					r.Post("/draft", workflowHandler.Draft)

					// Graph
					r.Get("/order", graphHandler.Order)
					r.Get("/nodes", graphHandler.ListNodes)
					r.Post("/nodes", graphHandler.CreateNode)
					r.Get("/nodes/{nodeID}", graphHandler.GetNode)
					r.Patch("/nodes/{nodeID}", graphHandler.UpdateNode)
					r.Delete("/nodes/{nodeID}", graphHandler.DeleteNode)
					r.Get("/edges", graphHandler.ListEdges)
					r.Post("/edges", graphHandler.CreateEdge)
					r.Get("/edges/{edgeID}", graphHandler.GetEdge)
					r.Patch("/edges/{edgeID}", graphHandler.UpdateEdge)
					r.Delete("/edges/{edgeID}", graphHandler.DeleteEdge)

					// Triggers
					r.Get("/triggers", triggerHandler.List)
					r.Post("/triggers", triggerHandler.Create)
					r.Get("/triggers/{triggerID}", triggerHandler.Get)
					r.Patch("/triggers/{triggerID}", triggerHandler.Update)
					r.Delete("/triggers/{triggerID}", triggerHandler.Delete)
					r.Post("/triggers/{triggerID}/enable", triggerHandler.Enable)
					r.Post("/triggers/{triggerID}/disable", triggerHandler.Disable)
					r.Post("/triggers/{triggerID}/fire", triggerHandler.Fire)

					// Executions
					r.Post("/test", executionHandler.TestRun)
					r.Get("/executions", executionHandler.List)
				})

				r.Get("/executions/{executionID}", executionHandler.Get)
				r.Get("/executions/{executionID}/inputs", executionHandler.Inputs)
				r.Post("/executions/{executionID}/cancel", executionHandler.Cancel)
				r.Post("/executions/{executionID}/retry", executionHandler.Retry)

				r.Post("/events/{event}", eventHandler.Emit)

				r.Post("/credentials", credentialHandler.Create)
				r.Post("/variables", credentialHandler.CreateVariable)
			})
		})
	})

	// Webhooks (separate from API)
	router.Route("/webhooks", func(r chi.Router) {
		r.Use(rateLimiter.Limit(600, time.Minute))
		r.HandleFunc("/{triggerID}", webhookHandler.Handle)
	})

	// Metrics endpoint (Prometheus)
	router.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		cfg:        cfg,
		router:     router,
		httpServer: httpServer,
	}
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
