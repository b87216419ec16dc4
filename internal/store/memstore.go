package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/conductorhq/agentorch/internal/task"
)

// MemStore is an in-process Store used by internal/queue and internal/worker
// tests so they exercise real concurrency semantics (ClaimOne under a mutex)
// without requiring a live Postgres instance, mirroring the teacher's own
// preference for fast in-package unit tests over integration-only coverage.
type MemStore struct {
	mu       sync.Mutex
	tasks    map[string]*task.Task
	logs     map[string][]*task.Log
	nextLogID int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		tasks: make(map[string]*task.Task),
		logs:  make(map[string][]*task.Log),
	}
}

func clone(t *task.Task) *task.Task {
	cp := *t
	return &cp
}

func (m *MemStore) InsertTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = clone(t)
	return nil
}

func (m *MemStore) LoadTask(_ context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, task.ErrTaskNotFound
	}
	return clone(t), nil
}

func (m *MemStore) ListTasks(_ context.Context, filter ListFilter) ([]*task.Task, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*task.Task
	for _, t := range m.tasks {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		matched = append(matched, clone(t))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemStore) UpdateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return task.ErrTaskNotFound
	}
	m.tasks[t.ID] = clone(t)
	return nil
}

func (m *MemStore) ClaimOne(_ context.Context, now time.Time) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *task.Task
	for _, t := range m.tasks {
		eligible := t.Status == task.StatusQueued ||
			(t.Status == task.StatusRetry && t.NextRetryAt != nil && !t.NextRetryAt.After(now))
		if !eligible {
			continue
		}
		if best == nil || t.CreatedAt.Before(best.CreatedAt) ||
			(t.CreatedAt.Equal(best.CreatedAt) && t.ID < best.ID) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}

	best.Status = task.StatusRunning
	best.StartedAt = &now
	best.Attempts++
	best.NextRetryAt = nil
	return clone(best), nil
}

func (m *MemStore) AppendLog(_ context.Context, l *task.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLogID++
	l.ID = m.nextLogID
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	cp := *l
	m.logs[l.TaskID] = append(m.logs[l.TaskID], &cp)
	return nil
}

func (m *MemStore) ListLogs(_ context.Context, taskID string, limit int) ([]*task.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.logs[taskID]
	out := make([]*task.Log, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) CountByStatus(_ context.Context) (map[task.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[task.Status]int)
	for _, t := range m.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

func (m *MemStore) Close() {}
