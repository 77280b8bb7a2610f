package dispatcher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// QueueInspector reports queue state. *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// BackpressureMonitor pauses dispatch while the worker queue is deeper than
// maxDepth and resumes once it drains below half of that.
type BackpressureMonitor struct {
	inspector     QueueInspector
	queue         string
	maxDepth      int64
	checkInterval time.Duration
	currentDepth  atomic.Int64
	isPaused      atomic.Bool
}

func NewBackpressureMonitor(inspector QueueInspector, queue string, maxDepth int64) *BackpressureMonitor {
	return &BackpressureMonitor{
		inspector:     inspector,
		queue:         queue,
		maxDepth:      maxDepth,
		checkInterval: 5 * time.Second,
	}
}

func (m *BackpressureMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *BackpressureMonitor) check() {
	info, err := m.inspector.GetQueueInfo(m.queue)
	if err != nil {
		log.Warn().Err(err).Str("queue", m.queue).Msg("Failed to check queue depth")
		return
	}

	depth := int64(info.Pending + info.Scheduled + info.Retry)
	m.currentDepth.Store(depth)

	wasPaused := m.isPaused.Load()

	if depth >= m.maxDepth {
		if !wasPaused {
			m.isPaused.Store(true)
			log.Warn().
				Int64("depth", depth).
				Int64("max", m.maxDepth).
				Msg("Backpressure: pausing dispatch")
		}
	} else if depth < m.maxDepth/2 {
		if wasPaused {
			m.isPaused.Store(false)
			log.Info().
				Int64("depth", depth).
				Msg("Backpressure: resuming dispatch")
		}
	}
}

func (m *BackpressureMonitor) ShouldPause() bool {
	return m.isPaused.Load()
}

func (m *BackpressureMonitor) QueueDepth() int64 {
	return m.currentDepth.Load()
}
