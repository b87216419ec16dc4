package client

// TaskType mirrors internal/task.Type's wire values.
type TaskType string

const (
	TaskTypeResearch TaskType = "research"
	TaskTypeAnalysis TaskType = "analysis"
	TaskTypeDocument TaskType = "document"
)

// Delivery mirrors internal/task.Delivery's JSON shape.
type Delivery struct {
	Email   string `json:"email,omitempty"`
	Storage string `json:"storage,omitempty"`
	Folder  string `json:"folder,omitempty"`
}

// CreateTaskRequest mirrors the API's task creation payload.
type CreateTaskRequest struct {
	Type           TaskType          `json:"type"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Config         map[string]string `json:"config,omitempty"`
	Delivery       *Delivery         `json:"delivery,omitempty"`
	AttachmentRefs []string          `json:"attachments,omitempty"`
}

// Task mirrors the API's task representation.
type Task struct {
	ID          string            `json:"id"`
	Type        TaskType          `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      string            `json:"status"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
	CreatedAt   string            `json:"created_at"`
	QueuedAt    *string           `json:"queued_at,omitempty"`
	StartedAt   *string           `json:"started_at,omitempty"`
	CompletedAt *string           `json:"completed_at,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	CloudLinks  map[string]string `json:"cloud_links,omitempty"`
}

// TaskResult mirrors GET /api/v1/tasks/{id}/result.
type TaskResult struct {
	TaskID      string            `json:"task_id"`
	Status      string            `json:"status"`
	Summary     string            `json:"summary,omitempty"`
	OutputsPath string            `json:"outputs_path,omitempty"`
	CloudLinks  map[string]string `json:"cloud_links,omitempty"`
}

// TaskList mirrors GET /api/v1/tasks.
type TaskList struct {
	Tasks    []Task `json:"tasks"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// LogEntry mirrors one element of GET /api/v1/tasks/{id}/logs.
type LogEntry struct {
	TaskID    string `json:"task_id"`
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Event     string `json:"event"`
	Message   string `json:"message"`
}

// errorEnvelope mirrors the API's JSON error body.
type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Health mirrors GET /admin/health.
type Health struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Worker   string `json:"worker"`
}

// Stats mirrors GET /admin/stats.
type Stats struct {
	ByStatus map[string]int `json:"by_status"`
}
