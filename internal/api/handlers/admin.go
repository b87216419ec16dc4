package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conductorhq/agentorch/internal/logger"
	"github.com/conductorhq/agentorch/internal/queue"
	"github.com/conductorhq/agentorch/internal/store"
	"github.com/conductorhq/agentorch/internal/worker"
)

// AdminHandler handles the admin/ops API: queue stats and process health.
type AdminHandler struct {
	queue    *queue.Queue
	store    store.Store
	redis    *redis.Client
	workerID string
	version  string
}

func NewAdminHandler(q *queue.Queue, s store.Store, redisClient *redis.Client, workerID, version string) *AdminHandler {
	return &AdminHandler{queue: q, store: s, redis: redisClient, workerID: workerID, version: version}
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.Stats(r.Context())
	if err != nil {
		logger.Get().Error().Err(err).Msg("failed to get queue stats")
		h.respondError(w, http.StatusInternalServerError, "failed to get queue statistics")
		return
	}

	byStatus := make(map[string]int, len(counts))
	for status, count := range counts {
		byStatus[status.String()] = count
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"by_status": byStatus,
	})
}

// HealthCheck handles GET /admin/health.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "connected"
	if _, err := h.store.CountByStatus(ctx); err != nil {
		dbStatus = "disconnected"
	}

	workerStatus := "unknown"
	if alive, err := worker.IsAlive(ctx, h.redis, h.workerID); err == nil {
		if alive {
			workerStatus = "alive"
		} else {
			workerStatus = "not_reporting"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if dbStatus != "connected" {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	h.respondJSON(w, status, map[string]interface{}{
		"status":   overall,
		"version":  h.version,
		"database": dbStatus,
		"worker":   workerStatus,
	})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Get().Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message, Code: errorCode(status)})
}
