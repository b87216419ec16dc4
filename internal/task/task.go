package task

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies a task and determines its timeout, turn budget and tool
// allowlist (see internal/runner).
type Type string

const (
	TypeResearch Type = "research"
	TypeAnalysis Type = "analysis"
	TypeDocument Type = "document"
)

func (t Type) Valid() bool {
	switch t {
	case TypeResearch, TypeAnalysis, TypeDocument:
		return true
	default:
		return false
	}
}

// allowedAttachmentExtensions mirrors the original's ALLOWED_ATTACHMENT_TYPES.
var allowedAttachmentExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".doc": true, ".txt": true, ".md": true,
	".csv": true, ".json": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
}

// Delivery describes where a completed task's artifacts should go.
type Delivery struct {
	Email   string `json:"email,omitempty"`
	Storage string `json:"storage,omitempty"` // "google_drive" or "onedrive"
	Folder  string `json:"folder,omitempty"`
}

func (d *Delivery) Validate() error {
	if d == nil {
		return nil
	}
	if d.Storage != "" && d.Storage != "google_drive" && d.Storage != "onedrive" {
		return errors.New("delivery.storage must be google_drive or onedrive")
	}
	return nil
}

// Task is a unit of work submitted to the orchestrator.
type Task struct {
	ID             string            `json:"id"`
	Type           Type              `json:"type"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Config         map[string]string `json:"config,omitempty"`
	Delivery       *Delivery         `json:"delivery,omitempty"`
	AttachmentRefs []string          `json:"attachment_refs,omitempty"`

	Status      Status `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`

	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	QueuedAt    *time.Time `json:"queued_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	OutputsPath   string            `json:"outputs_path"`
	ResultSummary string            `json:"result_summary,omitempty"`
	CloudLinks    map[string]string `json:"cloud_links,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`
}

// CreateRequest is the validated input to Queue.Enqueue.
type CreateRequest struct {
	Type           Type
	Title          string
	Description    string
	Config         map[string]string
	Delivery       *Delivery
	AttachmentRefs []string
	CorrelationID  string
}

// Validate checks the request against the invariants in SPEC_FULL.md §3,
// grounded on original_source/api/models.py's field validators.
func (r *CreateRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("type must be one of research, analysis, document")
	}
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return errors.New("title is required")
	}
	if len(title) > 200 {
		return errors.New("title must be at most 200 characters")
	}
	if strings.TrimSpace(r.Description) == "" {
		return errors.New("description is required")
	}
	if err := r.Delivery.Validate(); err != nil {
		return err
	}
	for _, ref := range r.AttachmentRefs {
		ext := strings.ToLower(filepath.Ext(ref))
		if !allowedAttachmentExtensions[ext] {
			return errors.New("attachment has unsupported extension: " + ref)
		}
	}
	return nil
}

// New builds a fresh QUEUED task from a validated CreateRequest.
func New(req *CreateRequest, outputsRoot string, defaultMaxAttempts int) *Task {
	now := time.Now().UTC()
	id := uuid.New().String()
	return &Task{
		ID:             id,
		Type:           req.Type,
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		Config:         req.Config,
		Delivery:       req.Delivery,
		AttachmentRefs: req.AttachmentRefs,
		Status:         StatusQueued,
		Attempts:       0,
		MaxAttempts:    defaultMaxAttempts,
		CreatedAt:      now,
		QueuedAt:       &now,
		OutputsPath:    filepath.Join(outputsRoot, id),
		CorrelationID:  req.CorrelationID,
	}
}

// CanRetry reports whether another attempt is still within budget.
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}
