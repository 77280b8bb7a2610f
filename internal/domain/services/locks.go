package services

import (
	"sync"

	"github.com/google/uuid"
)

// WorkflowLocks serializes graph and trigger mutations per workflow so the
// validate-then-persist sequence sees a stable snapshot within one process.
type WorkflowLocks struct {
	locks sync.Map // uuid.UUID -> *sync.Mutex
}

func NewWorkflowLocks() *WorkflowLocks {
	return &WorkflowLocks{}
}

// Lock acquires the workflow's mutex and returns its unlock func.
func (l *WorkflowLocks) Lock(workflowID uuid.UUID) func() {
	v, _ := l.locks.LoadOrStore(workflowID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
