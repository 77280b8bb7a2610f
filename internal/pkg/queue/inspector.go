package queue

import (
	"github.com/hibiken/asynq"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
)

// NewInspector returns an asynq inspector for the queues served by Server.
func NewInspector(cfg *config.RedisConfig) *asynq.Inspector {
	return asynq.NewInspector(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
