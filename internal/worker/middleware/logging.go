package middleware

import (
	"context"
	"time"

	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/rs/zerolog/log"
)

// LoggingMiddleware logs script runs
type LoggingMiddleware struct {
	logInput  bool
	logOutput bool
}

// LoggingOptions configures logging middleware
type LoggingOptions struct {
	LogInput  bool
	LogOutput bool
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(opts ...LoggingOptions) *LoggingMiddleware {
	m := &LoggingMiddleware{}
	if len(opts) > 0 {
		m.logInput = opts[0].LogInput
		m.logOutput = opts[0].LogOutput
	}
	return m
}

// Execute implements Middleware
func (m *LoggingMiddleware) Execute(ctx context.Context, script *models.Script, inputs map[string]interface{}, next NextFunc) (map[string]interface{}, error) {
	logger := log.With().
		Str("script_id", script.ID.String()).
		Str("script_name", script.Name).
		Str("language", script.Language).
		Bool("custom", script.IsCustom).
		Logger()

	startLog := logger.Debug()
	if m.logInput {
		startLog = startLog.Interface("input", truncateForLog(inputs, 500))
	}
	startLog.Msg("Script run started")

	startTime := time.Now()
	output, err := next(ctx)
	duration := time.Since(startTime)

	if err != nil {
		// Failures are reported by the processor; keep this at debug.
		logger.Debug().Err(err).Dur("duration", duration).Msg("Script run failed")
		return nil, err
	}

	endLog := logger.Debug().Dur("duration", duration)
	if m.logOutput {
		endLog = endLog.Interface("output", truncateForLog(output, 500))
	}
	endLog.Msg("Script run completed")

	return output, nil
}

// truncateForLog truncates large values for logging
func truncateForLog(data interface{}, maxLen int) interface{} {
	if data == nil {
		return nil
	}

	switch v := data.(type) {
	case string:
		if len(v) > maxLen {
			return v[:maxLen] + "...(truncated)"
		}
		return v

	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for k, val := range v {
			result[k] = truncateForLog(val, maxLen)
		}
		return result

	case []interface{}:
		if len(v) > 10 {
			truncated := make([]interface{}, 10)
			copy(truncated, v[:10])
			return map[string]interface{}{
				"_truncated": true,
				"_total":     len(v),
				"items":      truncated,
			}
		}
		return v

	default:
		return v
	}
}
