package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductorhq/agentorch/internal/task"
)

func TestMemStore_ClaimOne_OldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	older := &task.Task{ID: "a", Status: task.StatusQueued, CreatedAt: time.Now().UTC().Add(-time.Minute)}
	newer := &task.Task{ID: "b", Status: task.StatusQueued, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertTask(ctx, older))
	require.NoError(t, s.InsertTask(ctx, newer))

	claimed, err := s.ClaimOne(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "a", claimed.ID)
	assert.Equal(t, task.StatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
}

func TestMemStore_ClaimOne_RetryEligibleOnlyAfterNextRetryAt(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	future := time.Now().UTC().Add(time.Hour)
	t1 := &task.Task{ID: "a", Status: task.StatusRetry, NextRetryAt: &future, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertTask(ctx, t1))

	claimed, err := s.ClaimOne(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, claimed)

	claimed, err = s.ClaimOne(ctx, future.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "a", claimed.ID)
}

func TestMemStore_ClaimOne_NeverDeliversTwiceConcurrently(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	for i := 0; i < 20; i++ {
		require.NoError(t, s.InsertTask(ctx, &task.Task{
			ID: string(rune('a' + i)), Status: task.StatusQueued, CreatedAt: time.Now().UTC(),
		}))
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.ClaimOne(ctx, time.Now().UTC())
			require.NoError(t, err)
			if claimed == nil {
				return
			}
			mu.Lock()
			seen[claimed.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, count := range seen {
		assert.Equal(t, 1, count, "task %s claimed more than once", id)
	}
}

func TestMemStore_AppendLog_IsOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.AppendLog(ctx, &task.Log{TaskID: "a", Event: task.EventTaskQueued}))
	time.Sleep(time.Millisecond)
	require.NoError(t, s.AppendLog(ctx, &task.Log{TaskID: "a", Event: task.EventTaskStarted}))

	logs, err := s.ListLogs(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, task.EventTaskStarted, logs[0].Event)
	assert.Equal(t, task.EventTaskQueued, logs[1].Event)
}
