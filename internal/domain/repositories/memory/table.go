// Package memory provides thread-safe in-memory implementations of the
// repository interfaces, used by tests and single-process deployments.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
)

type row[T any] struct {
	seq   int64
	value T
}

// table is a generic keyed row set. Values are copied in and out so callers
// never share a row with the store.
type table[T any] struct {
	mu    sync.RWMutex
	rows  map[uuid.UUID]*row[T]
	seq   int64
	key   func(*T) *uuid.UUID
	stamp func(v *T, now time.Time, created bool)
}

func newTable[T any](key func(*T) *uuid.UUID, stamp func(*T, time.Time, bool)) *table[T] {
	return &table[T]{
		rows:  make(map[uuid.UUID]*row[T]),
		key:   key,
		stamp: stamp,
	}
}

func (t *table[T]) insert(v *T, conflict func(existing *T) bool) error {
	id := t.key(v)
	if *id == uuid.Nil {
		*id = uuid.New()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rows[*id]; ok {
		return repositories.ErrDuplicate
	}
	if conflict != nil {
		for _, r := range t.rows {
			if conflict(&r.value) {
				return repositories.ErrDuplicate
			}
		}
	}
	if t.stamp != nil {
		t.stamp(v, time.Now(), true)
	}
	t.seq++
	t.rows[*id] = &row[T]{seq: t.seq, value: *v}
	return nil
}

func (t *table[T]) save(v *T, conflict func(existing *T) bool) error {
	id := *t.key(v)

	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rows[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if conflict != nil {
		for other, o := range t.rows {
			if other != id && conflict(&o.value) {
				return repositories.ErrDuplicate
			}
		}
	}
	if t.stamp != nil {
		t.stamp(v, time.Now(), false)
	}
	r.value = *v
	return nil
}

// update applies fn to the stored row under the write lock.
func (t *table[T]) update(id uuid.UUID, fn func(v *T) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rows[id]
	if !ok {
		return repositories.ErrNotFound
	}
	v := r.value
	if err := fn(&v); err != nil {
		return err
	}
	if t.stamp != nil {
		t.stamp(&v, time.Now(), false)
	}
	r.value = v
	return nil
}

func (t *table[T]) get(id uuid.UUID) (*T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.rows[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	v := r.value
	return &v, nil
}

func (t *table[T]) first(pred func(*T) bool) (*T, error) {
	rows := t.filter(pred)
	if len(rows) == 0 {
		return nil, repositories.ErrNotFound
	}
	return &rows[0], nil
}

func (t *table[T]) remove(id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rows[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(t.rows, id)
	return nil
}

func (t *table[T]) removeWhere(pred func(*T) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, r := range t.rows {
		if pred(&r.value) {
			delete(t.rows, id)
		}
	}
}

// filter returns matching rows in insertion order.
func (t *table[T]) filter(pred func(*T) bool) []T {
	t.mu.RLock()
	matched := make([]*row[T], 0)
	for _, r := range t.rows {
		if pred == nil || pred(&r.value) {
			matched = append(matched, r)
		}
	}
	t.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	out := make([]T, len(matched))
	for i, r := range matched {
		out[i] = r.value
	}
	return out
}

func (t *table[T]) count(pred func(*T) bool) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var n int64
	for _, r := range t.rows {
		if pred(&r.value) {
			n++
		}
	}
	return n
}

func page[T any](rows []T, opts *repositories.ListOptions) []T {
	if opts == nil {
		return rows
	}
	if opts.Offset >= len(rows) {
		return []T{}
	}
	end := len(rows)
	if opts.Limit > 0 && opts.Offset+opts.Limit < end {
		end = opts.Offset + opts.Limit
	}
	return rows[opts.Offset:end]
}

func reverse[T any](rows []T) []T {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}
