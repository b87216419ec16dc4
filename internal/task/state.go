package task

import (
	"errors"
	"time"
)

// Status represents the current lifecycle state of a task.
type Status int

const (
	StatusPending Status = iota
	StatusQueued
	StatusRunning
	StatusProcessing
	StatusCompleted
	StatusFailed
	StatusRetry
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusRetry:
		return "retry"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

func ParseStatus(s string) Status {
	switch s {
	case "pending":
		return StatusPending
	case "queued":
		return StatusQueued
	case "running":
		return StatusRunning
	case "processing":
		return StatusProcessing
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "retry":
		return StatusRetry
	case "dead":
		return StatusDead
	default:
		return StatusPending
	}
}

// IsTerminal returns true if no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDead
}

// Error definitions used by the state machine and the queue facade on top of it.
var (
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrInvalidTaskData   = errors.New("invalid task data")
	ErrTaskNotFound      = errors.New("task not found")
)

// ValidTransitions encodes the edges in SPEC_FULL.md §4.3. Any mutation outside
// this table is rejected rather than silently allowed.
var ValidTransitions = map[Status][]Status{
	StatusPending:    {StatusQueued, StatusFailed},
	StatusQueued:     {StatusRunning, StatusFailed},
	StatusRunning:    {StatusProcessing, StatusCompleted, StatusFailed, StatusRetry, StatusDead},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusRetry, StatusDead},
	StatusRetry:      {StatusRunning, StatusFailed, StatusDead},
	StatusFailed:     {},
	StatusCompleted:  {},
	StatusDead:       {},
}

// CanTransitionTo reports whether a transition from s to target is permitted.
func (s Status) CanTransitionTo(target Status) bool {
	for _, v := range ValidTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// StateMachine wraps a Task and enforces ValidTransitions on every mutation.
type StateMachine struct {
	task *Task
}

// NewStateMachine creates a state machine bound to the given task.
func NewStateMachine(t *Task) *StateMachine {
	return &StateMachine{task: t}
}

// Transition moves the task to target, stamping the timestamps the new
// status implies, or returns ErrInvalidTransition.
func (sm *StateMachine) Transition(target Status) error {
	if !sm.task.Status.CanTransitionTo(target) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	sm.task.Status = target

	switch target {
	case StatusRunning:
		if sm.task.StartedAt == nil {
			sm.task.StartedAt = &now
		}
	case StatusCompleted, StatusFailed, StatusDead:
		sm.task.CompletedAt = &now
	}

	if target != StatusRetry {
		sm.task.NextRetryAt = nil
	}

	return nil
}

// Start transitions QUEUED/RETRY -> RUNNING and bumps the attempt counter.
func (sm *StateMachine) Start() error {
	if err := sm.Transition(StatusRunning); err != nil {
		return err
	}
	sm.task.Attempts++
	return nil
}

// Processing transitions RUNNING -> PROCESSING.
func (sm *StateMachine) Processing() error {
	return sm.Transition(StatusProcessing)
}

// Complete transitions to COMPLETED, recording the result summary and links.
func (sm *StateMachine) Complete(summary string, links map[string]string) error {
	if err := sm.Transition(StatusCompleted); err != nil {
		return err
	}
	sm.task.ResultSummary = summary
	sm.task.CloudLinks = links
	sm.task.LastError = ""
	return nil
}

// Retry schedules a RETRY at nextRetryAt, or moves straight to DEAD if the
// task has exhausted MaxAttempts.
func (sm *StateMachine) Retry(errMsg string, nextRetryAt time.Time) error {
	sm.task.LastError = errMsg
	if sm.task.Attempts >= sm.task.MaxAttempts {
		return sm.Transition(StatusDead)
	}
	if err := sm.Transition(StatusRetry); err != nil {
		return err
	}
	sm.task.NextRetryAt = &nextRetryAt
	return nil
}

// Fail transitions to FAILED with no further retries (terminal failure path
// for non-retryable failures such as a timeout or an interrupted run;
// exhausted retries reach DEAD through Retry instead).
func (sm *StateMachine) Fail(errMsg string) error {
	if err := sm.Transition(StatusFailed); err != nil {
		return err
	}
	sm.task.LastError = errMsg
	return nil
}

// Cancel transitions a non-terminal task to FAILED with a fixed message.
// Cancellation reuses FAILED rather than introducing a distinct status (see
// DESIGN.md open question 2); terminal tasks cannot be cancelled.
func (sm *StateMachine) Cancel() error {
	if sm.task.Status.IsTerminal() {
		return ErrInvalidTransition
	}
	if err := sm.Transition(StatusFailed); err != nil {
		return err
	}
	sm.task.LastError = "Cancelled by user"
	return nil
}
