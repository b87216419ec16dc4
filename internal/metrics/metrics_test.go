package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	assert.NotNil(t, TasksEnqueued)
	assert.NotNil(t, TasksTerminal)
	assert.NotNil(t, TaskAttemptDuration)
	assert.NotNil(t, TaskRetriesScheduled)
	assert.NotNil(t, QueueDepth)
	assert.NotNil(t, WorkerAlive)
	assert.NotNil(t, UploadOutcomes)
	assert.NotNil(t, NotificationOutcomes)
	assert.NotNil(t, HTTPRequestDuration)
	assert.NotNil(t, HTTPRequestsTotal)
}

func TestRecordEnqueue(t *testing.T) {
	TasksEnqueued.Reset()
	RecordEnqueue("research")
	RecordEnqueue("research")
	RecordEnqueue("document")
}

func TestRecordTerminal(t *testing.T) {
	TasksTerminal.Reset()
	RecordTerminal("research", "completed")
	RecordTerminal("research", "dead")
}

func TestRecordAttemptDuration(t *testing.T) {
	TaskAttemptDuration.Reset()
	RecordAttemptDuration("document", 12.5)
}

func TestRecordRetryScheduled(t *testing.T) {
	TaskRetriesScheduled.Reset()
	RecordRetryScheduled("analysis")
}

func TestSetQueueDepth(t *testing.T) {
	QueueDepth.Reset()
	SetQueueDepth("queued", 3)
	SetQueueDepth("retry", 1)
}

func TestSetWorkerAlive(t *testing.T) {
	SetWorkerAlive(true)
	SetWorkerAlive(false)
}

func TestRecordUploadAndNotification(t *testing.T) {
	UploadOutcomes.Reset()
	NotificationOutcomes.Reset()
	RecordUpload("google_drive", "success")
	RecordUpload("onedrive", "error")
	RecordNotification("sent")
	RecordNotification("error")
}

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestDuration.Reset()
	HTTPRequestsTotal.Reset()
	RecordHTTPRequest("GET", "/api/v1/tasks", "200", 0.05)
	RecordHTTPRequest("POST", "/api/v1/tasks", "201", 0.1)
}
