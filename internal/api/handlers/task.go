package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/conductorhq/agentorch/internal/logger"
	"github.com/conductorhq/agentorch/internal/queue"
	"github.com/conductorhq/agentorch/internal/store"
	"github.com/conductorhq/agentorch/internal/task"
)

// TaskHandler handles task-related HTTP requests, delegating all state
// mutation to the Queue facade (SPEC_FULL.md §4.3).
type TaskHandler struct {
	queue *queue.Queue
}

func NewTaskHandler(q *queue.Queue) *TaskHandler {
	return &TaskHandler{queue: q}
}

// createTaskRequest mirrors original_source/api/models.py's TaskCreate.
type createTaskRequest struct {
	Type           task.Type         `json:"type"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Config         map[string]string `json:"config,omitempty"`
	Delivery       *task.Delivery    `json:"delivery,omitempty"`
	AttachmentRefs []string          `json:"attachments,omitempty"`
}

// taskResponse mirrors original_source/api/models.py's TaskResponse.
type taskResponse struct {
	ID          string            `json:"id"`
	Type        task.Type         `json:"type"`
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

func toTaskResponse(t *task.Task) taskResponse {
	resp := taskResponse{
		ID:          t.ID,
		Type:        t.Type,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status.String(),
		Attempts:    t.Attempts,
		MaxAttempts: t.MaxAttempts,
		CreatedAt:   t.CreatedAt.Format(timeFormat),
		LastError:   t.LastError,
		CloudLinks:  t.CloudLinks,
	}
	if t.QueuedAt != nil {
		s := t.QueuedAt.Format(timeFormat)
		resp.QueuedAt = &s
	}
	if t.StartedAt != nil {
		s := t.StartedAt.Format(timeFormat)
		resp.StartedAt = &s
	}
	if t.CompletedAt != nil {
		s := t.CompletedAt.Format(timeFormat)
		resp.CompletedAt = &s
	}
	return resp
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

// taskResultResponse mirrors original_source/api/models.py's TaskResult.
type taskResultResponse struct {
	TaskID      string            `json:"task_id"`
	Status      string            `json:"status"`
	Summary     string            `json:"summary,omitempty"`
	OutputsPath string            `json:"outputs_path,omitempty"`
	CloudLinks  map[string]string `json:"cloud_links,omitempty"`
}

// Create handles POST /api/v1/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	correlationID := uuid.New().String()
	log := logger.WithCorrelation(correlationID)

	t, err := h.queue.Enqueue(r.Context(), &task.CreateRequest{
		Type:           req.Type,
		Title:          req.Title,
		Description:    req.Description,
		Config:         req.Config,
		Delivery:       req.Delivery,
		AttachmentRefs: req.AttachmentRefs,
		CorrelationID:  correlationID,
	})
	if err != nil {
		if isValidationErr(err) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("failed to enqueue task")
		h.respondError(w, http.StatusInternalServerError, "failed to enqueue task")
		return
	}

	log.Info().Str("task_id", t.ID).Str("type", string(t.Type)).Msg("task created")
	h.respondJSON(w, http.StatusCreated, toTaskResponse(t))
}

// Get handles GET /api/v1/tasks/{taskID}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	t, err := h.queue.Get(r.Context(), taskID)
	if err != nil {
		if isNotFoundErr(err) {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Get().Error().Err(err).Str("task_id", taskID).Msg("failed to get task")
		h.respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	h.respondJSON(w, http.StatusOK, toTaskResponse(t))
}

// Result handles GET /api/v1/tasks/{taskID}/result.
func (h *TaskHandler) Result(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	t, err := h.queue.Get(r.Context(), taskID)
	if err != nil {
		if isNotFoundErr(err) {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Get().Error().Err(err).Str("task_id", taskID).Msg("failed to get task")
		h.respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	h.respondJSON(w, http.StatusOK, taskResultResponse{
		TaskID:      t.ID,
		Status:      t.Status.String(),
		Summary:     t.ResultSummary,
		OutputsPath: t.OutputsPath,
		CloudLinks:  t.CloudLinks,
	})
}

// Cancel handles DELETE /api/v1/tasks/{taskID}.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	cancelled, err := h.queue.Cancel(r.Context(), taskID)
	if err != nil {
		if isNotFoundErr(err) {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Get().Error().Err(err).Str("task_id", taskID).Msg("failed to cancel task")
		h.respondError(w, http.StatusInternalServerError, "failed to cancel task")
		return
	}
	if !cancelled {
		h.respondError(w, http.StatusConflict, "task is already in a terminal state")
		return
	}

	logger.Get().Info().Str("task_id", taskID).Msg("task cancelled")
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter{Limit: 20, Offset: 0}

	if s := r.URL.Query().Get("status"); s != "" {
		status := task.ParseStatus(s)
		filter.Status = &status
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	pageSize := 20
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	tasks, total, err := h.queue.List(r.Context(), filter)
	if err != nil {
		logger.Get().Error().Err(err).Msg("failed to list tasks")
		h.respondError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t))
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":     resp,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Logs handles GET /api/v1/tasks/{taskID}/logs.
func (h *TaskHandler) Logs(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	if _, err := h.queue.Get(r.Context(), taskID); err != nil {
		if isNotFoundErr(err) {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Get().Error().Err(err).Str("task_id", taskID).Msg("failed to get task")
		h.respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	logs, err := h.queue.Logs(r.Context(), taskID, limit)
	if err != nil {
		logger.Get().Error().Err(err).Str("task_id", taskID).Msg("failed to list task logs")
		h.respondError(w, http.StatusInternalServerError, "failed to get task logs")
		return
	}

	h.respondJSON(w, http.StatusOK, logs)
}

// ErrorResponse is the standard error envelope (original_source ErrorResponse).
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Get().Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message, Code: errorCode(status)})
}

func errorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "TASK_NOT_FOUND"
	case http.StatusConflict:
		return "TASK_ALREADY_COMPLETED"
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

func isNotFoundErr(err error) bool {
	return errors.Is(err, queue.ErrNotFound)
}

func isValidationErr(err error) bool {
	return errors.Is(err, queue.ErrValidation)
}
