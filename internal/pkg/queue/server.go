package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
	"github.com/rs/zerolog/log"
)

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// ServerOptions tunes the asynq server.
type ServerOptions struct {
	Concurrency int
	// RetryDelay overrides the delay before a failed task is retried. It
	// returns false to fall back to the default exponential delay.
	RetryDelay func(n int, err error, task *asynq.Task) (time.Duration, bool)
	// Expected reports errors that are part of normal operation and are
	// logged at debug level instead of error.
	Expected func(err error) bool
}

func NewServer(cfg *config.RedisConfig, opts ServerOptions) *Server {
	retryDelay := asynq.DefaultRetryDelayFunc
	if opts.RetryDelay != nil {
		retryDelay = func(n int, err error, task *asynq.Task) time.Duration {
			if d, ok := opts.RetryDelay(n, err, task); ok {
				return d
			}
			return asynq.DefaultRetryDelayFunc(n, err, task)
		}
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		},
		asynq.Config{
			Concurrency: opts.Concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID := "unknown"
				if rw := task.ResultWriter(); rw != nil {
					taskID = rw.TaskID()
				}
				event := log.Error()
				if opts.Expected != nil && opts.Expected(err) {
					event = log.Debug()
				}
				event.
					Str("task_type", task.Type()).
					Str("task_id", taskID).
					Err(err).
					Msg("Task failed")
			}),
			Logger: &asynqLogger{},
		},
	)

	return &Server{
		server: server,
		mux:    asynq.NewServeMux(),
	}
}

func (s *Server) HandleFunc(pattern string, handler func(context.Context, *asynq.Task) error) {
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) Start() error {
	log.Info().Msg("Starting queue server...")
	return s.server.Start(s.mux)
}

func (s *Server) Shutdown() {
	log.Info().Msg("Shutting down queue server...")
	s.server.Shutdown()
}

// asynqLogger implements asynq.Logger interface
type asynqLogger struct{}

func (l *asynqLogger) Debug(args ...interface{}) {
	log.Debug().Msgf("%v", args)
}

func (l *asynqLogger) Info(args ...interface{}) {
	log.Info().Msgf("%v", args)
}

func (l *asynqLogger) Warn(args ...interface{}) {
	log.Warn().Msgf("%v", args)
}

func (l *asynqLogger) Error(args ...interface{}) {
	log.Error().Msgf("%v", args)
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	log.Fatal().Msgf("%v", args)
}
