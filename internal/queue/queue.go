// Package queue implements the Task Queue state-machine facade
// (SPEC_FULL.md §4.3) over a store.Store, wrapping every transition with the
// error taxonomy in §7 and the structured logging the rest of this module
// uses throughout.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conductorhq/agentorch/internal/events"
	"github.com/conductorhq/agentorch/internal/logger"
	"github.com/conductorhq/agentorch/internal/metrics"
	"github.com/conductorhq/agentorch/internal/store"
	"github.com/conductorhq/agentorch/internal/task"
)

// Queue is the sole authorized mutator of task state.
type Queue struct {
	store       store.Store
	retryPolicy *task.RetryPolicy
	waker       *events.Waker
	outputsRoot string
}

// New builds a Queue over the given store. waker may be nil, in which case
// wake notifications are silently skipped and the worker relies solely on
// its poll interval.
func New(s store.Store, retryPolicy *task.RetryPolicy, waker *events.Waker, outputsRoot string) *Queue {
	if retryPolicy == nil {
		retryPolicy = task.DefaultRetryPolicy()
	}
	return &Queue{store: s, retryPolicy: retryPolicy, waker: waker, outputsRoot: outputsRoot}
}

func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, err.Error())
}

// Enqueue validates req and persists a new QUEUED task.
func (q *Queue) Enqueue(ctx context.Context, req *task.CreateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, wrapValidation(err)
	}

	t := task.New(req, q.outputsRoot, q.retryPolicy.MaxAttempts)
	if err := q.store.InsertTask(ctx, t); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	q.appendLog(ctx, t, task.LogInfo, task.EventTaskQueued, "task queued", nil)
	metrics.RecordEnqueue(string(t.Type))
	q.waker.Notify(ctx)

	return t, nil
}

// Dequeue atomically claims the next eligible task, if any.
func (q *Queue) Dequeue(ctx context.Context) (*task.Task, error) {
	t, err := q.store.ClaimOne(ctx, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if t == nil {
		return nil, nil
	}

	q.appendLog(ctx, t, task.LogInfo, task.EventTaskStarted, "task started", map[string]string{
		"attempt":      fmt.Sprint(t.Attempts),
		"max_attempts": fmt.Sprint(t.MaxAttempts),
	})

	return t, nil
}

// MarkProcessing transitions a RUNNING task to PROCESSING.
func (q *Queue) MarkProcessing(ctx context.Context, id string) error {
	t, err := q.loadForTransition(ctx, id)
	if err != nil {
		return err
	}

	sm := task.NewStateMachine(t)
	if err := sm.Processing(); err != nil {
		return fmt.Errorf("%w: %s", ErrConflict, err.Error())
	}
	if err := q.store.UpdateTask(ctx, t); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	q.appendLog(ctx, t, task.LogInfo, task.EventTaskProcessing, "task moved to post-processing", nil)
	return nil
}

// MarkCompleted transitions to COMPLETED, recording the summary and links.
// warnings carries non-fatal post-processing issues (e.g. a failed cloud
// upload or notification) that must be preserved in the task's log even
// though they don't affect the terminal status.
func (q *Queue) MarkCompleted(ctx context.Context, id, summary string, links map[string]string, warnings ...string) error {
	t, err := q.loadForTransition(ctx, id)
	if err != nil {
		return err
	}

	sm := task.NewStateMachine(t)
	if err := sm.Complete(summary, links); err != nil {
		return fmt.Errorf("%w: %s", ErrConflict, err.Error())
	}
	if err := q.store.UpdateTask(ctx, t); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	for _, w := range warnings {
		q.appendLog(ctx, t, task.LogWarning, task.EventUploadFailed, w, nil)
	}
	q.appendLog(ctx, t, task.LogInfo, task.EventTaskCompleted, "task completed", nil)
	metrics.RecordTerminal(string(t.Type), t.Status.String())
	return nil
}

// MarkFailed applies the retry-or-terminal decision for a failed attempt.
// retry=false routes straight to FAILED (timeouts, cancellations, missing
// binary); retry=true consults the retry policy, producing RETRY or DEAD.
func (q *Queue) MarkFailed(ctx context.Context, id, errMsg string, retry bool) (task.Status, error) {
	t, err := q.loadForTransition(ctx, id)
	if err != nil {
		return 0, err
	}

	sm := task.NewStateMachine(t)

	if !retry {
		if err := sm.Fail(errMsg); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrConflict, err.Error())
		}
		if err := q.store.UpdateTask(ctx, t); err != nil {
			return 0, fmt.Errorf("mark failed: %w", err)
		}
		q.appendLog(ctx, t, task.LogError, task.EventTaskFailed, errMsg, nil)
		metrics.RecordTerminal(string(t.Type), t.Status.String())
		return t.Status, nil
	}

	nextRetryAt := q.retryPolicy.NextRetryAt(t)
	if err := sm.Retry(errMsg, nextRetryAt); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrConflict, err.Error())
	}
	if err := q.store.UpdateTask(ctx, t); err != nil {
		return 0, fmt.Errorf("mark failed: %w", err)
	}

	if t.Status == task.StatusDead {
		q.appendLog(ctx, t, task.LogError, task.EventTaskDead, errMsg, nil)
		metrics.RecordTerminal(string(t.Type), t.Status.String())
	} else {
		q.appendLog(ctx, t, task.LogWarning, task.EventTaskRetryScheduled, errMsg, map[string]string{
			"next_retry_at": t.NextRetryAt.Format(time.RFC3339),
		})
		metrics.RecordRetryScheduled(string(t.Type))
		q.waker.Notify(ctx)
	}

	return t.Status, nil
}

// Cancel transitions a non-terminal task to FAILED. Returns (false, nil) if
// the task is already terminal; the HTTP adapter reports that case as a
// conflict.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	t, err := q.store.LoadTask(ctx, id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			return false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return false, fmt.Errorf("cancel: %w", err)
	}

	sm := task.NewStateMachine(t)
	if err := sm.Cancel(); err != nil {
		return false, nil
	}
	if err := q.store.UpdateTask(ctx, t); err != nil {
		return false, fmt.Errorf("cancel: %w", err)
	}
	q.appendLog(ctx, t, task.LogWarning, task.EventTaskCancelled, "cancelled by user", nil)
	metrics.RecordTerminal(string(t.Type), t.Status.String())
	return true, nil
}

// Get returns a task by id.
func (q *Queue) Get(ctx context.Context, id string) (*task.Task, error) {
	t, err := q.store.LoadTask(ctx, id)
	if errors.Is(err, task.ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns a page of tasks, optionally filtered by status.
func (q *Queue) List(ctx context.Context, filter store.ListFilter) ([]*task.Task, int, error) {
	return q.store.ListTasks(ctx, filter)
}

// Logs returns the most recent log entries for a task.
func (q *Queue) Logs(ctx context.Context, id string, limit int) ([]*task.Log, error) {
	return q.store.ListLogs(ctx, id, limit)
}

// Stats reports the current task count broken down by status.
func (q *Queue) Stats(ctx context.Context) (map[task.Status]int, error) {
	return q.store.CountByStatus(ctx)
}

func (q *Queue) loadForTransition(ctx context.Context, id string) (*task.Task, error) {
	t, err := q.store.LoadTask(ctx, id)
	if errors.Is(err, task.ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return t, nil
}

func (q *Queue) appendLog(ctx context.Context, t *task.Task, level task.LogLevel, event, message string, data map[string]string) {
	l := &task.Log{
		TaskID:        t.ID,
		Level:         level,
		Event:         event,
		Message:       message,
		Data:          data,
		CorrelationID: t.CorrelationID,
	}
	if err := q.store.AppendLog(ctx, l); err != nil {
		logger.WithTask(t.ID).Error().Err(err).Msg("failed to append task log")
	}
}
