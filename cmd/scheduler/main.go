package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
	"github.com/linkflow-ai/scriptflow/internal/pkg/database"
	"github.com/linkflow-ai/scriptflow/internal/pkg/logger"
	"github.com/linkflow-ai/scriptflow/internal/pkg/queue"
	pkgredis "github.com/linkflow-ai/scriptflow/internal/pkg/redis"
	"github.com/linkflow-ai/scriptflow/internal/scheduler"
	"github.com/linkflow-ai/scriptflow/internal/worker/processor"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	logger.Init(cfg.App.Environment, cfg.App.Debug)

	log.Info().
		Str("app", cfg.App.Name).
		Str("service", "scheduler").
		Msg("Starting scheduler service")

	// Connect to database
	db, err := database.NewGormDB(&cfg.Database, cfg.App.Debug)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Connect to Redis
	redisClient, err := pkgredis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	queueClient := queue.NewClient(&cfg.Redis)
	defer queueClient.Close()
	inspector := queue.NewInspector(&cfg.Redis)
	defer inspector.Close()

	// Initialize repositories
	triggerRepo := repositories.NewTriggerRepository(db)
	executionRepo := repositories.NewExecutionRepository(db)

	executionSvc := services.NewExecutionService(
		executionRepo,
		repositories.NewExecutionInputRepository(db),
		repositories.NewWorkflowRepository(db),
		repositories.NewNodeRepository(db),
		repositories.NewEdgeRepository(db),
		queueClient,
		processor.NewCancellationManager(redisClient.Client),
	)

	s := scheduler.New(scheduler.FromConfig(&cfg.Scheduler), &scheduler.Dependencies{
		Triggers:   triggerRepo,
		Executions: executionSvc,
		Purger:     executionRepo,
		Redis:      redisClient,
		Queue:      queueClient,
		Inspector:  inspector,
	})

	if err := s.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	var srv *http.Server
	if cfg.Scheduler.MetricsAddr != "" {
		srv = &http.Server{
			Addr:              cfg.Scheduler.MetricsAddr,
			Handler:           s.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("Serving scheduler health and metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Scheduler HTTP server failed")
			}
		}()
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx)
		cancel()
	}

	if err := s.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping scheduler")
	}

	log.Info().Msg("Scheduler stopped")
}
