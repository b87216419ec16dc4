// Package store implements the durable Task Store (SPEC_FULL.md §4.1): a
// key-value-and-query layer over the tasks and task_logs tables, with the
// atomic ClaimOne dequeue operation as its one non-trivial requirement.
package store

import (
	"context"
	"time"

	"github.com/conductorhq/agentorch/internal/task"
)

// ListFilter narrows ListTasks to a status, with pagination.
type ListFilter struct {
	Status *task.Status
	Limit  int
	Offset int
}

// Store is the durable persistence interface the Queue facade is built on.
// Two implementations ship in this package: PostgresStore for production
// and MemStore (memstore.go), the in-memory fake that internal/queue and
// internal/worker are tested against.
type Store interface {
	InsertTask(ctx context.Context, t *task.Task) error
	LoadTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, filter ListFilter) ([]*task.Task, int, error)
	UpdateTask(ctx context.Context, t *task.Task) error

	// ClaimOne atomically claims the oldest eligible task (QUEUED, or RETRY
	// with NextRetryAt <= now), sets it RUNNING, bumps Attempts, and returns
	// it. Returns (nil, nil) when nothing is eligible.
	ClaimOne(ctx context.Context, now time.Time) (*task.Task, error)

	AppendLog(ctx context.Context, l *task.Log) error
	ListLogs(ctx context.Context, taskID string, limit int) ([]*task.Log, error)

	CountByStatus(ctx context.Context) (map[task.Status]int, error)

	Close()
}
