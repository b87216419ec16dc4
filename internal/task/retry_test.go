package task

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_DelayFor_WithinSpecBounds(t *testing.T) {
	p := DefaultRetryPolicy()
	p.rngForTesting = rand.New(rand.NewSource(1))

	for attempt := 0; attempt < 6; attempt++ {
		d := p.DelayFor(attempt)
		clamped := float64(p.Base) * pow2(attempt)
		if clamped > float64(p.MaxDelay) {
			clamped = float64(p.MaxDelay)
		}
		lo := time.Duration(clamped)
		hi := time.Duration(clamped * 1.1)
		assert.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
		assert.LessOrEqual(t, d, hi, "attempt %d", attempt)
	}
}

func pow2(n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= 2
	}
	return r
}

func TestRetryPolicy_DelayFor_ClampsAtMaxDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	p.rngForTesting = rand.New(rand.NewSource(2))

	d := p.DelayFor(20) // 60s * 2^20 would be enormous without the clamp
	assert.LessOrEqual(t, d, time.Duration(float64(p.MaxDelay)*1.1))
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := DefaultRetryPolicy()
	p.MaxAttempts = 3

	tk := &Task{Attempts: 2}
	assert.True(t, p.ShouldRetry(tk))

	tk.Attempts = 3
	assert.False(t, p.ShouldRetry(tk))
}

func TestRetryPolicy_NextRetryAt_IsInFuture(t *testing.T) {
	p := DefaultRetryPolicy()
	p.rngForTesting = rand.New(rand.NewSource(3))
	tk := &Task{Attempts: 1}

	next := p.NextRetryAt(tk)
	assert.True(t, next.After(time.Now().UTC()))
}
