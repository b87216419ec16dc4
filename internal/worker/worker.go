// Package worker implements the single background driver loop: poll the
// queue, run the agent, post-process its output, and apply the resulting
// terminal or retry transition.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conductorhq/agentorch/internal/events"
	"github.com/conductorhq/agentorch/internal/logger"
	"github.com/conductorhq/agentorch/internal/metrics"
	"github.com/conductorhq/agentorch/internal/processor"
	"github.com/conductorhq/agentorch/internal/queue"
	"github.com/conductorhq/agentorch/internal/runner"
	"github.com/conductorhq/agentorch/internal/task"
)

// Worker is the single-concurrency driver loop described in
// SPEC_FULL.md §4.6. At most one task is RUNNING per process; the atomic
// claim in the store is what actually enforces that invariant even if
// multiple Worker processes happen to run against the same store.
type Worker struct {
	id           string
	queue        *queue.Queue
	runner       *runner.Runner
	processor    *processor.Processor
	waker        *events.Waker
	heartbeat    *Heartbeat
	pollInterval time.Duration

	mu            sync.RWMutex
	running       bool
	currentTaskID string

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(
	q *queue.Queue,
	r *runner.Runner,
	p *processor.Processor,
	waker *events.Waker,
	heartbeat *Heartbeat,
	pollInterval time.Duration,
) *Worker {
	return newWithID(fmt.Sprintf("worker-%s", uuid.New().String()[:8]), q, r, p, waker, heartbeat, pollInterval)
}

// NewWithID is like New but takes an explicit worker ID, so callers that
// need the ID before construction (to wire a Heartbeat with a matching key)
// don't have to guess it.
func NewWithID(
	id string,
	q *queue.Queue,
	r *runner.Runner,
	p *processor.Processor,
	waker *events.Waker,
	heartbeat *Heartbeat,
	pollInterval time.Duration,
) *Worker {
	return newWithID(id, q, r, p, waker, heartbeat, pollInterval)
}

func newWithID(
	id string,
	q *queue.Queue,
	r *runner.Runner,
	p *processor.Processor,
	waker *events.Waker,
	heartbeat *Heartbeat,
	pollInterval time.Duration,
) *Worker {
	return &Worker{
		id:           id,
		queue:        q,
		runner:       r,
		processor:    p,
		waker:        waker,
		heartbeat:    heartbeat,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// ID returns this worker's identifier.
func (w *Worker) ID() string { return w.id }

// Run blocks, driving the poll/execute/process loop until Stop is called or
// ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.doneCh)

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	if w.heartbeat != nil {
		w.heartbeat.Start(ctx)
	}
	metrics.SetWorkerAlive(true)

	log := logger.WithWorker(w.id)
	log.Info().Msg("worker started")

	var wake <-chan struct{}
	if w.waker != nil {
		wake = w.waker.Subscribe(ctx)
	}

	for {
		if !w.isRunning() {
			break
		}

		select {
		case <-ctx.Done():
			w.setRunning(false)
		case <-w.stopCh:
			w.setRunning(false)
		default:
		}
		if !w.isRunning() {
			break
		}

		t, err := w.queue.Dequeue(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to dequeue")
			w.sleep(ctx, wake)
			continue
		}
		if t == nil {
			w.sleep(ctx, wake)
			continue
		}

		w.setCurrentTask(t.ID)
		w.runTask(ctx, t)
		w.setCurrentTask("")
	}

	metrics.SetWorkerAlive(false)
	if w.heartbeat != nil {
		w.heartbeat.Stop()
	}
	log.Info().Msg("worker stopped")
}

// Stop signals the loop to exit after the current task (if any) settles,
// and cancels that task's agent process so it terminates promptly.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	current := w.currentTaskID
	w.mu.Unlock()

	close(w.stopCh)

	if current != "" {
		w.runner.CancelTask(current)
	}

	<-w.doneCh
}

func (w *Worker) runTask(ctx context.Context, t *task.Task) {
	log := logger.WithTask(t.ID)
	start := time.Now()

	result, err := w.runner.ExecuteTask(ctx, t)
	if err != nil {
		w.failTask(ctx, t.ID, err.Error(), true)
		return
	}

	metrics.RecordAttemptDuration(string(t.Type), time.Since(start).Seconds())

	if result.Success {
		if err := w.queue.MarkProcessing(ctx, t.ID); err != nil {
			if !errors.Is(err, queue.ErrConflict) {
				log.Error().Err(err).Msg("failed to mark task processing")
				w.failTask(ctx, t.ID, err.Error(), true)
			}
			return
		}

		p := w.processor.Process(t, result.Output)
		warnings := p.UploadErrors
		if p.NotificationError != "" {
			warnings = append(warnings, "notification: "+p.NotificationError)
		}
		if err := w.queue.MarkCompleted(ctx, t.ID, p.Summary, p.CloudLinks, warnings...); err != nil && !errors.Is(err, queue.ErrConflict) {
			log.Error().Err(err).Msg("failed to mark task completed")
		}
		return
	}

	w.failTask(ctx, t.ID, result.Error, !result.Partial)
}

func (w *Worker) failTask(ctx context.Context, taskID, errMsg string, retry bool) {
	if _, err := w.queue.MarkFailed(ctx, taskID, errMsg, retry); err != nil && !errors.Is(err, queue.ErrConflict) {
		logger.WithTask(taskID).Error().Err(err).Msg("failed to mark task failed")
	}
}

func (w *Worker) sleep(ctx context.Context, wake <-chan struct{}) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-timer.C:
	case <-wake:
	}
}

func (w *Worker) isRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Worker) setRunning(v bool) {
	w.mu.Lock()
	w.running = v
	w.mu.Unlock()
}

func (w *Worker) setCurrentTask(id string) {
	w.mu.Lock()
	w.currentTaskID = id
	w.mu.Unlock()
	if w.heartbeat != nil {
		w.heartbeat.SetCurrentTask(id)
	}
}

// CurrentTaskID reports the task currently being processed, if any.
func (w *Worker) CurrentTaskID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentTaskID
}
