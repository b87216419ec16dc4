package task

import "time"

// LogLevel classifies a TaskLog entry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// Log is an append-only structured event attached to a task's lifecycle.
// Entries are never updated or deleted (SPEC_FULL.md §3 invariant 7).
type Log struct {
	ID            int64             `json:"id"`
	TaskID        string            `json:"task_id"`
	Level         LogLevel          `json:"level"`
	Event         string            `json:"event"`
	Message       string            `json:"message"`
	Data          map[string]string `json:"data,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// Event slugs used across the queue and worker packages.
const (
	EventTaskQueued         = "task_queued"
	EventTaskStarted        = "task_started"
	EventTaskProcessing     = "task_processing"
	EventTaskCompleted      = "task_completed"
	EventTaskRetryScheduled = "task_retry_scheduled"
	EventTaskDead           = "task_dead"
	EventTaskFailed         = "task_failed"
	EventTaskCancelled      = "task_cancelled"
	EventUploadFailed       = "upload_failed"
)
