// Package metrics keeps in-process counters for the scheduler's health and
// stats endpoints.
package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	pollsTotal      atomic.Int64
	dispatchedTotal atomic.Int64
	limitedTotal    atomic.Int64
	failedTotal     atomic.Int64
	misfiredTotal   atomic.Int64
	recoveredTotal  atomic.Int64
	cleanedTotal    atomic.Int64

	queueDepth  atomic.Int64
	dueTriggers atomic.Int64

	lastPollDuration atomic.Int64 // milliseconds
	avgPollDuration  atomic.Int64 // milliseconds

	isLeader  atomic.Bool
	startedAt time.Time
}

func NewCollector() *Collector {
	return &Collector{
		startedAt: time.Now(),
	}
}

func (c *Collector) IncPolls() {
	c.pollsTotal.Add(1)
}

func (c *Collector) IncDispatched(n int64) {
	c.dispatchedTotal.Add(n)
}

func (c *Collector) IncLimited(n int64) {
	c.limitedTotal.Add(n)
}

func (c *Collector) IncFailed(n int64) {
	c.failedTotal.Add(n)
}

func (c *Collector) IncMisfired(n int64) {
	c.misfiredTotal.Add(n)
}

func (c *Collector) IncRecovered(n int64) {
	c.recoveredTotal.Add(n)
}

func (c *Collector) IncCleaned(n int64) {
	c.cleanedTotal.Add(n)
}

func (c *Collector) SetQueueDepth(depth int64) {
	c.queueDepth.Store(depth)
}

func (c *Collector) SetDueTriggers(count int64) {
	c.dueTriggers.Store(count)
}

func (c *Collector) SetLeader(isLeader bool) {
	c.isLeader.Store(isLeader)
}

func (c *Collector) RecordPollDuration(d time.Duration) {
	ms := d.Milliseconds()
	c.lastPollDuration.Store(ms)

	// Simple moving average
	old := c.avgPollDuration.Load()
	if old == 0 {
		c.avgPollDuration.Store(ms)
	} else {
		c.avgPollDuration.Store((old + ms) / 2)
	}
}

type Snapshot struct {
	PollsTotal       int64         `json:"polls_total"`
	DispatchedTotal  int64         `json:"dispatched_total"`
	LimitedTotal     int64         `json:"rate_limited_total"`
	FailedTotal      int64         `json:"failed_total"`
	MisfiredTotal    int64         `json:"misfired_total"`
	RecoveredTotal   int64         `json:"recovered_total"`
	CleanedTotal     int64         `json:"cleaned_total"`
	QueueDepth       int64         `json:"queue_depth"`
	DueTriggers      int64         `json:"due_triggers"`
	LastPollDuration int64         `json:"last_poll_duration_ms"`
	AvgPollDuration  int64         `json:"avg_poll_duration_ms"`
	IsLeader         bool          `json:"is_leader"`
	Uptime           time.Duration `json:"uptime"`
}

func (c *Collector) Snapshot() *Snapshot {
	return &Snapshot{
		PollsTotal:       c.pollsTotal.Load(),
		DispatchedTotal:  c.dispatchedTotal.Load(),
		LimitedTotal:     c.limitedTotal.Load(),
		FailedTotal:      c.failedTotal.Load(),
		MisfiredTotal:    c.misfiredTotal.Load(),
		RecoveredTotal:   c.recoveredTotal.Load(),
		CleanedTotal:     c.cleanedTotal.Load(),
		QueueDepth:       c.queueDepth.Load(),
		DueTriggers:      c.dueTriggers.Load(),
		LastPollDuration: c.lastPollDuration.Load(),
		AvgPollDuration:  c.avgPollDuration.Load(),
		IsLeader:         c.isLeader.Load(),
		Uptime:           time.Since(c.startedAt),
	}
}
