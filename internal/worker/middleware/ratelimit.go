package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles how often each script runs on this worker.
// Custom scripts get their own, usually tighter, budget.
type RateLimitMiddleware struct {
	limiters sync.Map // script id -> *rate.Limiter
	config   RateLimitConfig
}

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	ScriptRPS   float64
	ScriptBurst int

	CustomScriptRPS   float64
	CustomScriptBurst int

	// MaxWaitTime bounds how long a run waits for a token before failing.
	MaxWaitTime time.Duration
}

// DefaultRateLimitConfig returns default configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		ScriptRPS:         200,
		ScriptBurst:       100,
		CustomScriptRPS:   50,
		CustomScriptBurst: 25,
		MaxWaitTime:       30 * time.Second,
	}
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(cfg RateLimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		config: cfg,
	}
}

// Execute implements Middleware
func (m *RateLimitMiddleware) Execute(ctx context.Context, script *models.Script, inputs map[string]interface{}, next NextFunc) (map[string]interface{}, error) {
	limiter := m.limiterFor(script)

	waitCtx := ctx
	if m.config.MaxWaitTime > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, m.config.MaxWaitTime)
		defer cancel()
	}

	if err := limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("script %s rate limited: %w", script.Name, err)
	}

	return next(ctx)
}

func (m *RateLimitMiddleware) limiterFor(script *models.Script) *rate.Limiter {
	if l, ok := m.limiters.Load(script.ID); ok {
		return l.(*rate.Limiter)
	}

	rps, burst := m.config.ScriptRPS, m.config.ScriptBurst
	if script.IsCustom {
		rps, burst = m.config.CustomScriptRPS, m.config.CustomScriptBurst
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}

	l, _ := m.limiters.LoadOrStore(script.ID, rate.NewLimiter(limit, burst))
	return l.(*rate.Limiter)
}

// Reset drops the limiter of one script.
func (m *RateLimitMiddleware) Reset(scriptID uuid.UUID) {
	m.limiters.Delete(scriptID)
}
