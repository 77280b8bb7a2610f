package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// SlidingWindowLimiter counts dispatches per key in a redis sorted set so
// the limit holds across scheduler restarts and leader changes.
type SlidingWindowLimiter struct {
	redis      redis.Cmdable
	keyPrefix  string
	limit      int
	windowSize time.Duration
	now        func() time.Time
}

func NewSlidingWindowLimiter(rdb redis.Cmdable, keyPrefix string, limit int, windowSize time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:      rdb,
		keyPrefix:  keyPrefix,
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
	}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) bool {
	fullKey := l.keyPrefix + ":" + key
	now := l.now()
	windowStart := now.Add(-l.windowSize)

	pipe := l.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, fullKey, "-inf", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a redis outage must not stop schedules.
		log.Warn().Err(err).Str("key", fullKey).Msg("Rate limiter unavailable")
		return true
	}

	if int(countCmd.Val()) >= l.limit {
		return false
	}

	pipe = l.redis.Pipeline()
	pipe.ZAdd(ctx, fullKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, fullKey, l.windowSize*2)
	_, _ = pipe.Exec(ctx)

	return true
}

// LocalLimiter is a fixed-window in-memory limiter for single-node runs
// and tests.
type LocalLimiter struct {
	limit      int
	windowSize time.Duration
	windows    map[string]*window
	mu         sync.Mutex
	now        func() time.Time
}

type window struct {
	count     int
	startTime time.Time
}

func NewLocalLimiter(limit int, windowSize time.Duration) *LocalLimiter {
	return &LocalLimiter{
		limit:      limit,
		windowSize: windowSize,
		windows:    make(map[string]*window),
		now:        time.Now,
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	w, exists := l.windows[key]
	if !exists || now.Sub(w.startTime) >= l.windowSize {
		if l.limit < 1 {
			return false
		}
		l.windows[key] = &window{count: 1, startTime: now}
		return true
	}

	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

func (l *LocalLimiter) prune(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.startTime) > l.windowSize*2 {
			delete(l.windows, key)
		}
	}
}
