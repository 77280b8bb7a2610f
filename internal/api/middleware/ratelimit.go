package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/pkg/metrics"
	"github.com/rs/zerolog/log"
)

// Counter is a windowed request counter, usually backed by Redis.
type Counter interface {
	RateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

type RateLimiter struct {
	counter Counter
}

func NewRateLimiter(counter Counter) *RateLimiter {
	return &RateLimiter{counter: counter}
}

// Limit caps requests per caller, keyed by user when authenticated and by
// client address otherwise.
func (rl *RateLimiter) Limit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, err := rl.counter.RateLimit(r.Context(), rl.getKey(r), limit, window)
			if err != nil {
				// If Redis fails, allow the request
				log.Warn().Err(err).Msg("Rate limit check failed")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(window).Unix()))

			if !allowed {
				metrics.RecordRateLimitHit("api")
				dto.ErrorResponse(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) getKey(r *http.Request) string {
	if claims := GetUserFromContext(r.Context()); claims != nil {
		return fmt.Sprintf("ratelimit:user:%s", claims.UserID.String())
	}
	// RealIP has already folded X-Forwarded-For into RemoteAddr.
	return fmt.Sprintf("ratelimit:ip:%s", r.RemoteAddr)
}
