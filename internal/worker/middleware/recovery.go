package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/rs/zerolog/log"
)

// RecoveryMiddleware turns a panicking script runtime into a failed run.
type RecoveryMiddleware struct {
	logStackTrace bool
	onPanic       func(ctx context.Context, script *models.Script, recovered interface{}, stack []byte)
}

// RecoveryConfig configures recovery middleware
type RecoveryConfig struct {
	LogStackTrace bool
	OnPanic       func(ctx context.Context, script *models.Script, recovered interface{}, stack []byte)
}

// NewRecoveryMiddleware creates a new recovery middleware
func NewRecoveryMiddleware(cfg RecoveryConfig) *RecoveryMiddleware {
	return &RecoveryMiddleware{
		logStackTrace: cfg.LogStackTrace,
		onPanic:       cfg.OnPanic,
	}
}

// Execute implements Middleware
func (m *RecoveryMiddleware) Execute(ctx context.Context, script *models.Script, inputs map[string]interface{}, next NextFunc) (output map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()

			log.Error().
				Str("script_id", script.ID.String()).
				Str("script_name", script.Name).
				Interface("panic", r).
				Msg("Script runtime panicked")

			if m.logStackTrace {
				log.Error().Str("stack", string(stack)).Msg("Panic stack trace")
			}

			if m.onPanic != nil {
				m.onPanic(ctx, script, r, stack)
			}

			err = fmt.Errorf("script panicked: %v", r)
			output = nil
		}
	}()

	return next(ctx)
}
