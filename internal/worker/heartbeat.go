package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conductorhq/agentorch/internal/logger"
)

const (
	heartbeatKeyPrefix = "agentorch:worker:"
	heartbeatKeySuffix = ":heartbeat"
)

// Info is the liveness record an admin endpoint reads back.
type Info struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	CurrentTaskID string    `json:"current_task_id,omitempty"`
}

// Heartbeat reports this worker's liveness to Redis on an interval so the
// admin health endpoint can tell whether the worker is alive. A nil client
// degrades this to a no-op — SPEC_FULL.md §6 treats redisAddr as optional.
type Heartbeat struct {
	client   *redis.Client
	workerID string
	interval time.Duration
	timeout  time.Duration

	mu            sync.Mutex
	currentTaskID string
	startedAt     time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewHeartbeat(client *redis.Client, workerID string, interval, timeout time.Duration) *Heartbeat {
	return &Heartbeat{
		client:   client,
		workerID: workerID,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	h.startedAt = time.Now().UTC()
	h.mu.Unlock()

	if h.client == nil {
		return
	}

	h.wg.Add(1)
	go h.loop(ctx)
	logger.WithWorker(h.workerID).Info().Dur("interval", h.interval).Msg("heartbeat started")
}

func (h *Heartbeat) Stop() {
	if h.client == nil {
		return
	}
	close(h.stopCh)
	h.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.client.Del(ctx, h.key())

	logger.WithWorker(h.workerID).Info().Msg("heartbeat stopped")
}

// SetCurrentTask records which task is in flight so the next heartbeat
// publishes it. Safe to call with "" when the worker goes idle.
func (h *Heartbeat) SetCurrentTask(taskID string) {
	h.mu.Lock()
	h.currentTaskID = taskID
	h.mu.Unlock()
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.send(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.send(ctx)
		}
	}
}

func (h *Heartbeat) send(ctx context.Context) {
	h.mu.Lock()
	info := Info{
		ID:            h.workerID,
		StartedAt:     h.startedAt,
		LastHeartbeat: time.Now().UTC(),
		CurrentTaskID: h.currentTaskID,
	}
	h.mu.Unlock()

	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := h.client.Set(ctx, h.key(), data, h.timeout).Err(); err != nil {
		logger.WithWorker(h.workerID).Error().Err(err).Msg("failed to send heartbeat")
	}
}

func (h *Heartbeat) key() string {
	return fmt.Sprintf("%s%s%s", heartbeatKeyPrefix, h.workerID, heartbeatKeySuffix)
}

// IsAlive reports whether a worker's heartbeat key is still present.
func IsAlive(ctx context.Context, client *redis.Client, workerID string) (bool, error) {
	if client == nil {
		return false, nil
	}
	key := fmt.Sprintf("%s%s%s", heartbeatKeyPrefix, workerID, heartbeatKeySuffix)
	exists, err := client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check worker heartbeat: %w", err)
	}
	return exists > 0, nil
}
