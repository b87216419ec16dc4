// Package metrics adapts the teacher's Prometheus metric set
// (internal/metrics/metrics.go) from job-queue domain names to the task
// orchestrator's task/runner/upload/notification domains.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentorch_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		},
		[]string{"type"},
	)

	TasksTerminal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentorch_tasks_terminal_total",
			Help: "Total number of tasks reaching a terminal status",
		},
		[]string{"type", "status"},
	)

	TaskAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentorch_task_attempt_duration_seconds",
			Help:    "Duration of a single agent-runner attempt",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34min
		},
		[]string{"type"},
	)

	TaskRetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentorch_task_retries_scheduled_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"type"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentorch_queue_depth",
			Help: "Current number of tasks by status",
		},
		[]string{"status"},
	)

	WorkerAlive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentorch_worker_alive",
			Help: "1 if the worker's heartbeat is current, 0 otherwise",
		},
	)

	UploadOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentorch_upload_outcomes_total",
			Help: "Total cloud upload attempts by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	NotificationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentorch_notification_outcomes_total",
			Help: "Total email notification attempts by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentorch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentorch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

func RecordEnqueue(taskType string) {
	TasksEnqueued.WithLabelValues(taskType).Inc()
}

func RecordTerminal(taskType, status string) {
	TasksTerminal.WithLabelValues(taskType, status).Inc()
}

func RecordAttemptDuration(taskType string, seconds float64) {
	TaskAttemptDuration.WithLabelValues(taskType).Observe(seconds)
}

func RecordRetryScheduled(taskType string) {
	TaskRetriesScheduled.WithLabelValues(taskType).Inc()
}

func SetQueueDepth(status string, depth float64) {
	QueueDepth.WithLabelValues(status).Set(depth)
}

func SetWorkerAlive(alive bool) {
	if alive {
		WorkerAlive.Set(1)
	} else {
		WorkerAlive.Set(0)
	}
}

func RecordUpload(sink, outcome string) {
	UploadOutcomes.WithLabelValues(sink, outcome).Inc()
}

func RecordNotification(outcome string) {
	NotificationOutcomes.WithLabelValues(outcome).Inc()
}

func RecordHTTPRequest(method, path, status string, seconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}
