package cron

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"
)

// Calculator computes trigger fire times. Parsed schedules are cached per
// trigger and re-parsed when the expression changes.
type Calculator struct {
	parser   *Parser
	cache    map[uuid.UUID]*cacheEntry
	cacheTTL time.Duration
	mu       sync.RWMutex
}

type cacheEntry struct {
	schedule   cronlib.Schedule
	expression string
	cachedAt   time.Time
}

func NewCalculator() *Calculator {
	return &Calculator{
		parser:   NewParser(),
		cache:    make(map[uuid.UUID]*cacheEntry),
		cacheTTL: 10 * time.Minute,
	}
}

// NextRun returns the first fire time strictly after after, evaluated in
// timezone (UTC when empty). The result is in UTC.
func (c *Calculator) NextRun(triggerID uuid.UUID, expression, timezone string, after time.Time) (time.Time, error) {
	loc, err := location(timezone)
	if err != nil {
		return time.Time{}, err
	}

	schedule, err := c.getSchedule(triggerID, expression)
	if err != nil {
		return time.Time{}, err
	}

	next := schedule.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires", expression)
	}
	return next.UTC(), nil
}

func (c *Calculator) NextNRuns(expression, timezone string, after time.Time, n int) ([]time.Time, error) {
	loc, err := location(timezone)
	if err != nil {
		return nil, err
	}

	schedule, err := c.parser.Parse(expression)
	if err != nil {
		return nil, err
	}

	runs := make([]time.Time, n)
	current := after.In(loc)

	for i := 0; i < n; i++ {
		current = schedule.Next(current)
		runs[i] = current.UTC()
	}

	return runs, nil
}

func location(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return loc, nil
}

func (c *Calculator) getSchedule(id uuid.UUID, expression string) (cronlib.Schedule, error) {
	c.mu.RLock()
	entry, exists := c.cache[id]
	c.mu.RUnlock()

	if exists && entry.expression == expression && time.Since(entry.cachedAt) < c.cacheTTL {
		return entry.schedule, nil
	}

	schedule, err := c.parser.Parse(expression)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[id] = &cacheEntry{
		schedule:   schedule,
		expression: expression,
		cachedAt:   time.Now(),
	}
	c.mu.Unlock()

	return schedule, nil
}

func (c *Calculator) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
}

func (c *Calculator) Validate(expression string) error {
	return c.parser.Validate(expression)
}
