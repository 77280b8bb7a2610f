package database

import (
	"fmt"
	"time"

	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func NewGormDB(cfg *config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	dsn := cfg.DSN()

	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		Logger:                                   logger.Default.LogMode(logLevel),
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              true,
		TranslateError:                           true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Info().Msg("Database connected successfully")

	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")

	err := db.AutoMigrate(
		// Tenancy
		&models.Plan{},
		&models.Workspace{},

		// Graph
		&models.Workflow{},
		&models.Node{},
		&models.Edge{},
		&models.Trigger{},
		&models.Script{},

		// Executions
		&models.Execution{},
		&models.ExecutionInput{},

		// Secrets
		&models.Credential{},
		&models.Variable{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations completed")
	return nil
}

// SeedPlans upserts the built-in plan limits.
func SeedPlans(db *gorm.DB) error {
	for _, plan := range models.DefaultPlans {
		plan.CreatedAt = time.Now()
		plan.UpdatedAt = time.Now()
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "max_concurrent_executions", "max_triggers_per_workflow", "max_parallel_nodes", "updated_at"}),
		}).Create(&plan).Error
		if err != nil {
			return fmt.Errorf("failed to seed plan %s: %w", plan.ID, err)
		}
		log.Info().Str("plan", plan.ID).Msg("Seeded plan")
	}

	return nil
}
