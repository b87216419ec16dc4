// Package events adapts the teacher's general Redis pub/sub event bus
// (internal/events/publisher.go, redis_pubsub.go) into a single narrow
// purpose: waking the worker's poll loop early when a task becomes eligible,
// rather than exposing event streaming to HTTP clients (a spec Non-goal).
package events

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/conductorhq/agentorch/internal/logger"
)

const wakeChannel = "agentorch:worker:wake"

// Waker publishes a best-effort notification whenever a task becomes
// eligible for dequeue (enqueue, or a failure that schedules a retry), and
// lets a worker subscribe to be woken instead of riding out the full poll
// interval. A nil *redis.Client degrades Waker to a no-op, matching
// SPEC_FULL.md's optional redisAddr: the worker still works off the poll
// interval alone.
type Waker struct {
	client *redis.Client
}

func NewWaker(client *redis.Client) *Waker {
	return &Waker{client: client}
}

// Notify publishes a wake signal. Failures are logged and swallowed: the
// poll-interval fallback always still applies (SPEC_FULL.md §4.3).
func (w *Waker) Notify(ctx context.Context) {
	if w == nil || w.client == nil {
		return
	}
	if err := w.client.Publish(ctx, wakeChannel, "1").Err(); err != nil {
		logger.Debug().Err(err).Msg("failed to publish worker wake signal")
	}
}

// Subscribe returns a channel that receives a value each time Notify is
// called anywhere in the system. Forwarding stops once ctx is done; the
// returned channel is never closed.
func (w *Waker) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	if w == nil || w.client == nil {
		return ch
	}

	sub := w.client.Subscribe(ctx, wakeChannel)
	go func() {
		defer sub.Close()
		pubsubCh := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-pubsubCh:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch
}
