package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linkflow-ai/scriptflow/internal/domain/params"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
	"github.com/linkflow-ai/scriptflow/internal/pkg/crypto"
	"github.com/linkflow-ai/scriptflow/internal/pkg/database"
	"github.com/linkflow-ai/scriptflow/internal/pkg/logger"
	"github.com/linkflow-ai/scriptflow/internal/pkg/metrics"
	"github.com/linkflow-ai/scriptflow/internal/pkg/queue"
	pkgredis "github.com/linkflow-ai/scriptflow/internal/pkg/redis"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/cron"
	"github.com/linkflow-ai/scriptflow/internal/worker"
	"github.com/linkflow-ai/scriptflow/internal/worker/cache"
	"github.com/linkflow-ai/scriptflow/internal/worker/events"
	"github.com/linkflow-ai/scriptflow/internal/worker/middleware"
	"github.com/linkflow-ai/scriptflow/internal/worker/processor"
	"github.com/linkflow-ai/scriptflow/internal/worker/runtime"
	"github.com/linkflow-ai/scriptflow/internal/worker/stores"
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
		Str("service", "worker").
		Msg("Starting worker service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	encryptor, err := crypto.NewEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create encryptor")
	}

	// Initialize repositories
	workflowRepo := repositories.NewWorkflowRepository(db)
	nodeRepo := repositories.NewNodeRepository(db)
	edgeRepo := repositories.NewEdgeRepository(db)
	triggerRepo := repositories.NewTriggerRepository(db)
	executionRepo := repositories.NewExecutionRepository(db)
	inputRepo := repositories.NewExecutionInputRepository(db)

	// Initialize services
	cancellations := processor.NewCancellationManager(redisClient.Client)
	limitsSvc := services.NewLimitsService(repositories.NewWorkspaceRepository(db), &cfg.Engine)
	executionSvc := services.NewExecutionService(executionRepo, inputRepo, workflowRepo, nodeRepo, edgeRepo, queueClient, cancellations)
	triggerSvc := services.NewTriggerService(triggerRepo, workflowRepo, limitsSvc, executionSvc, cron.NewCalculator(), services.NewWorkflowLocks())
	credentialSvc := services.NewCredentialService(
		repositories.NewCredentialRepository(db),
		repositories.NewVariableRepository(db),
		encryptor,
	)

	// File references are only served when an object store is configured.
	var files params.Store
	if cfg.S3.Bucket != "" {
		fileStore, err := stores.NewFileStore(ctx, &cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create file store")
		}
		files = fileStore
	}

	secrets := cache.NewSecretsCache(credentialSvc, cache.DefaultTTL)
	secrets.StartCleanupRoutine(ctx, 5*time.Minute)

	scripts := middleware.NewChain(
		runtime.NewSandbox(runtime.DefaultConfig()),
		middleware.NewRecoveryMiddleware(middleware.RecoveryConfig{LogStackTrace: cfg.App.Debug}),
		middleware.NewLoggingMiddleware(middleware.LoggingOptions{LogInput: cfg.App.Debug, LogOutput: cfg.App.Debug}),
		middleware.NewRateLimitMiddleware(middleware.DefaultRateLimitConfig()),
	)

	engine := processor.New(processor.Config{
		Executions:        executionRepo,
		Inputs:            inputRepo,
		Nodes:             nodeRepo,
		Edges:             edgeRepo,
		Scripts:           repositories.NewScriptRepository(db),
		Limits:            limitsSvc,
		Stores:            stores.Registry(secrets, files),
		Runtime:           scripts,
		Cancellations:     cancellations,
		Publisher:         events.NewPublisher(redisClient.Client),
		Metrics:           metrics.Collector{},
		CancelGracePeriod: cfg.Engine.CancelGracePeriod,
		RetryBackoff:      cfg.Engine.RetryBackoff,
		MaxRetryBackoff:   cfg.Engine.MaxRetryBackoff,
	})

	w := worker.New(cfg, engine, triggerSvc, cancellations, queueClient)
	if err := w.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Worker error")
	}

	log.Info().Msg("Worker stopped")
}
