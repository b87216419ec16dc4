//go:build integration
// +build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductorhq/agentorch/internal/config"
	"github.com/conductorhq/agentorch/internal/logger"
	"github.com/conductorhq/agentorch/internal/processor"
	"github.com/conductorhq/agentorch/internal/prompts"
	"github.com/conductorhq/agentorch/internal/queue"
	"github.com/conductorhq/agentorch/internal/runner"
	"github.com/conductorhq/agentorch/internal/store"
	"github.com/conductorhq/agentorch/internal/task"
)

func init() {
	logger.Init("error", false)
}

func installFakeClaude(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func testExternal(timeout time.Duration) config.ExternalConfig {
	return config.ExternalConfig{
		ResearchTimeout: timeout,
		AnalysisTimeout: timeout,
		DocumentTimeout: timeout,
	}
}

// newHarness wires the real Queue/Runner/Processor stack over an in-memory
// store, mirroring how cmd/worker/main.go assembles the same components
// against Postgres. Exercising the full chain (not just the queue in
// isolation) is the point of this package.
func newHarness(t *testing.T, retryPolicy *task.RetryPolicy, timeout time.Duration) (*queue.Queue, *runner.Runner, *processor.Processor) {
	t.Helper()
	outputsRoot := t.TempDir()
	q := queue.New(store.NewMemStore(), retryPolicy, nil, outputsRoot)
	r := runner.New(prompts.NewBuilder(""), testExternal(timeout), t.TempDir())
	p := processor.New()
	return q, r, p
}

// drive runs one dequeue/execute/process/transition cycle, the same
// sequence internal/worker.Worker.Run performs.
func drive(ctx context.Context, q *queue.Queue, r *runner.Runner, p *processor.Processor) (*task.Task, error) {
	t, err := q.Dequeue(ctx)
	if err != nil || t == nil {
		return t, err
	}

	result, err := r.ExecuteTask(ctx, t)
	if err != nil {
		_, markErr := q.MarkFailed(ctx, t.ID, err.Error(), true)
		return t, markErr
	}

	if result.Success {
		if err := q.MarkProcessing(ctx, t.ID); err != nil {
			return t, err
		}
		out := p.Process(t, result.Output)
		warnings := out.UploadErrors
		if out.NotificationError != "" {
			warnings = append(warnings, "notification: "+out.NotificationError)
		}
		return t, q.MarkCompleted(ctx, t.ID, out.Summary, out.CloudLinks, warnings...)
	}

	_, err = q.MarkFailed(ctx, t.ID, result.Error, !result.Partial)
	return t, err
}

func TestScenario_HappyPath(t *testing.T) {
	installFakeClaude(t, `cat > /dev/null
echo '{"turns": 3}'
exit 0
`)
	q, r, p := newHarness(t, task.DefaultRetryPolicy(), 5*time.Second)
	ctx := context.Background()

	created, err := q.Enqueue(ctx, &task.CreateRequest{Type: task.TypeDocument, Title: "X", Description: "Y"})
	require.NoError(t, err)

	outputsDir := created.OutputsPath
	require.NoError(t, os.MkdirAll(outputsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outputsDir, "README.md"), []byte("# Summary\nDone."), 0o644))

	_, err = drive(ctx, q, r, p)
	require.NoError(t, err)

	final, err := q.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, final.Status)
	assert.Equal(t, 1, final.Attempts)
	assert.NotEmpty(t, final.ResultSummary)
}

func TestScenario_RetryThenSucceed(t *testing.T) {
	installFakeClaude(t, `exit 1
`)
	retryPolicy := &task.RetryPolicy{Base: time.Second, MaxDelay: 10 * time.Second, MaxAttempts: 3, JitterFactor: 0.1}
	q, r, p := newHarness(t, retryPolicy, 5*time.Second)
	ctx := context.Background()

	created, err := q.Enqueue(ctx, &task.CreateRequest{Type: task.TypeDocument, Title: "X", Description: "Y"})
	require.NoError(t, err)

	before := time.Now()
	_, err = drive(ctx, q, r, p)
	require.NoError(t, err)

	afterFirst, err := q.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusRetry, afterFirst.Status)
	assert.Equal(t, 1, afterFirst.Attempts)
	require.NotNil(t, afterFirst.NextRetryAt)
	assert.True(t, afterFirst.NextRetryAt.Sub(before) >= time.Second)

	// A dequeue before nextRetryAt must not return this task.
	early, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, early)

	time.Sleep(time.Until(*afterFirst.NextRetryAt) + 50*time.Millisecond)

	installFakeClaude(t, `cat > /dev/null
echo '{"turns": 1}'
exit 0
`)
	_, err = drive(ctx, q, r, p)
	require.NoError(t, err)

	final, err := q.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, final.Status)
	assert.Equal(t, 2, final.Attempts)
}

func TestScenario_Exhaustion(t *testing.T) {
	installFakeClaude(t, `exit 1
`)
	retryPolicy := &task.RetryPolicy{Base: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 2, JitterFactor: 0}
	q, r, p := newHarness(t, retryPolicy, 5*time.Second)
	ctx := context.Background()

	created, err := q.Enqueue(ctx, &task.CreateRequest{Type: task.TypeDocument, Title: "X", Description: "Y"})
	require.NoError(t, err)

	_, err = drive(ctx, q, r, p)
	require.NoError(t, err)
	afterFirst, err := q.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, afterFirst.NextRetryAt)
	time.Sleep(time.Until(*afterFirst.NextRetryAt) + 20*time.Millisecond)

	_, err = drive(ctx, q, r, p)
	require.NoError(t, err)

	final, err := q.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDead, final.Status)
	assert.Equal(t, 2, final.Attempts)
	assert.NotNil(t, final.CompletedAt)
}

func TestScenario_TimeoutIsTerminal(t *testing.T) {
	installFakeClaude(t, `sleep 5
`)
	q, r, p := newHarness(t, task.DefaultRetryPolicy(), 100*time.Millisecond)
	ctx := context.Background()

	created, err := q.Enqueue(ctx, &task.CreateRequest{Type: task.TypeDocument, Title: "X", Description: "Y"})
	require.NoError(t, err)

	_, err = drive(ctx, q, r, p)
	require.NoError(t, err)

	final, err := q.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, final.Status)
	assert.Equal(t, 1, final.Attempts)
	assert.NotNil(t, final.CompletedAt)
}

func TestScenario_CancelWhileRunning(t *testing.T) {
	installFakeClaude(t, `trap 'exit 143' TERM
sleep 10
`)
	q, r, p := newHarness(t, task.DefaultRetryPolicy(), 30*time.Second)
	ctx := context.Background()

	created, err := q.Enqueue(ctx, &task.CreateRequest{Type: task.TypeDocument, Title: "X", Description: "Y"})
	require.NoError(t, err)

	dequeued, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, dequeued)

	done := make(chan struct{})
	go func() {
		_, _ = r.ExecuteTask(ctx, dequeued)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancelled, err := q.Cancel(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)
	r.CancelTask(created.ID)

	select {
	case <-done:
	case <-time.After(6 * time.Second):
		t.Fatal("runner did not terminate within grace period")
	}

	final, err := q.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, final.Status)
	assert.Equal(t, "Cancelled by user", final.LastError)
}

func TestScenario_UploadFailureDoesNotFailTask(t *testing.T) {
	installFakeClaude(t, `cat > /dev/null
echo '{"turns": 2}'
exit 0
`)
	q, r, p := newHarness(t, task.DefaultRetryPolicy(), 5*time.Second)
	ctx := context.Background()

	dir := t.TempDir()
	gdcli := filepath.Join(dir, "gdcli")
	require.NoError(t, os.WriteFile(gdcli, []byte("#!/bin/sh\necho 'quota exceeded' >&2\nexit 1\n"), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	created, err := q.Enqueue(ctx, &task.CreateRequest{
		Type:        task.TypeDocument,
		Title:       "X",
		Description: "Y",
		Delivery:    &task.Delivery{Storage: "google_drive"},
	})
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(created.OutputsPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(created.OutputsPath, "report.md"), []byte("body"), 0o644))

	_, err = drive(ctx, q, r, p)
	require.NoError(t, err)

	final, err := q.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, final.Status)

	logs, err := q.Logs(ctx, created.ID, 50)
	require.NoError(t, err)
	var sawUploadIssue bool
	for _, l := range logs {
		if l.Event == task.EventUploadFailed {
			sawUploadIssue = true
		}
	}
	assert.True(t, sawUploadIssue, "expected an upload-failure log entry to be preserved")
}
