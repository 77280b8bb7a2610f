package main

import (
	"github.com/linkflow-ai/scriptflow/internal/api"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
	"github.com/linkflow-ai/scriptflow/internal/pkg/crypto"
	"github.com/linkflow-ai/scriptflow/internal/pkg/database"
	"github.com/linkflow-ai/scriptflow/internal/pkg/logger"
	"github.com/linkflow-ai/scriptflow/internal/pkg/queue"
	pkgredis "github.com/linkflow-ai/scriptflow/internal/pkg/redis"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/cron"
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
		Str("env", cfg.App.Environment).
		Msg("Starting API server")

	// Connect to database
	db, err := database.NewGormDB(&cfg.Database, cfg.App.Debug)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Seed plans
	if err := database.SeedPlans(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed plans")
	}

	// Connect to Redis
	redisClient, err := pkgredis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Initialize queue client
	queueClient := queue.NewClient(&cfg.Redis)
	defer queueClient.Close()

	// Initialize repositories
	workspaceRepo := repositories.NewWorkspaceRepository(db)
	workflowRepo := repositories.NewWorkflowRepository(db)
	nodeRepo := repositories.NewNodeRepository(db)
	edgeRepo := repositories.NewEdgeRepository(db)
	triggerRepo := repositories.NewTriggerRepository(db)
	executionRepo := repositories.NewExecutionRepository(db)
	inputRepo := repositories.NewExecutionInputRepository(db)
	scriptRepo := repositories.NewScriptRepository(db)
	credentialRepo := repositories.NewCredentialRepository(db)
	variableRepo := repositories.NewVariableRepository(db)

	// Initialize crypto
	jwtManager := crypto.NewJWTManager(crypto.JWTConfig{
		Secret:       cfg.JWT.Secret,
		AccessExpiry: cfg.JWT.AccessExpiry,
		Issuer:       cfg.JWT.Issuer,
	})

	encryptor, err := crypto.NewEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create encryptor")
	}

	// Initialize services
	locks := services.NewWorkflowLocks()
	limitsSvc := services.NewLimitsService(workspaceRepo, &cfg.Engine)
	cancellations := processor.NewCancellationManager(redisClient.Client)
	executionSvc := services.NewExecutionService(executionRepo, inputRepo, workflowRepo, nodeRepo, edgeRepo, queueClient, cancellations)
	triggerSvc := services.NewTriggerService(triggerRepo, workflowRepo, limitsSvc, executionSvc, cron.NewCalculator(), locks)
	workflowSvc := services.NewWorkflowService(workflowRepo, nodeRepo, edgeRepo, triggerSvc, locks)
	graphSvc := services.NewGraphService(workflowRepo, nodeRepo, edgeRepo, scriptRepo, locks)
	credentialSvc := services.NewCredentialService(credentialRepo, variableRepo, encryptor)

	// Create server
	server := api.NewServer(
		cfg,
		&api.Services{
			Workflow:   workflowSvc,
			Graph:      graphSvc,
			Trigger:    triggerSvc,
			Execution:  executionSvc,
			Credential: credentialSvc,
		},
		api.Dependencies{
			Tokens:     jwtManager,
			Workspaces: workspaceRepo,
			Limiter:    redisClient,
			DB:         db,
			Redis:      redisClient.Client,
		},
	)

	// Start server
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
