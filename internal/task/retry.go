package task

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy implements SPEC_FULL.md §4.2's exponential backoff with jitter:
// delayFor(attempt) = clamp(base * 2^attempt, 0, maxDelay) + jitter, where
// jitter ~ Uniform(0, 0.1 * clamped). This replaces the teacher's
// multiplicative +/-jitter (internal/task/retry.go) with the spec's
// one-sided, post-clamp jitter so the bound in SPEC_FULL.md §8 invariant 7
// holds exactly.
type RetryPolicy struct {
	Base          time.Duration
	MaxDelay      time.Duration
	JitterFactor  float64
	MaxAttempts   int
	rngForTesting *rand.Rand
}

// DefaultRetryPolicy returns the spec's defaults: base=60s, maxDelay=900s,
// maxAttempts=3.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Base:         60 * time.Second,
		MaxDelay:     900 * time.Second,
		JitterFactor: 0.1,
		MaxAttempts:  3,
	}
}

func (p *RetryPolicy) random() float64 {
	if p.rngForTesting != nil {
		return p.rngForTesting.Float64()
	}
	return rand.Float64()
}

// DelayFor returns the backoff to apply after the given (1-indexed) attempt
// count, honoring the clamp-then-jitter order required by the spec.
func (p *RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	raw := float64(p.Base) * math.Pow(2, float64(attempt))
	clamped := raw
	if clamped > float64(p.MaxDelay) {
		clamped = float64(p.MaxDelay)
	}
	if clamped < 0 {
		clamped = 0
	}
	jitter := clamped * p.JitterFactor * p.random()
	return time.Duration(clamped + jitter)
}

// ShouldRetry reports whether a task that has just failed its Nth attempt
// may be retried.
func (p *RetryPolicy) ShouldRetry(t *Task) bool {
	return t.Attempts < p.MaxAttempts
}

// NextRetryAt computes the absolute time a failed task becomes eligible
// again.
func (p *RetryPolicy) NextRetryAt(t *Task) time.Time {
	return time.Now().UTC().Add(p.DelayFor(t.Attempts))
}
