package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client is a thin REST client over the orchestrator's HTTP API.
type Client struct {
	baseURL string
	opts    *options
}

// New creates a Client targeting baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{baseURL: baseURL, opts: o}, nil
}

// APIError wraps a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %s (status %d, code %s)", e.Message, e.StatusCode, e.Code)
}

// CreateTask submits POST /api/v1/tasks.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTask fetches GET /api/v1/tasks/{id}.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(taskID), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CancelTask issues DELETE /api/v1/tasks/{id}.
func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(taskID), nil, nil)
}

// GetTaskResult fetches GET /api/v1/tasks/{id}/result.
func (c *Client) GetTaskResult(ctx context.Context, taskID string) (*TaskResult, error) {
	var r TaskResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(taskID)+"/result", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetTaskLogs fetches GET /api/v1/tasks/{id}/logs.
func (c *Client) GetTaskLogs(ctx context.Context, taskID string, limit int) ([]LogEntry, error) {
	path := "/api/v1/tasks/" + url.PathEscape(taskID) + "/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var logs []LogEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// ListTasksOptions filters/paginates ListTasks.
type ListTasksOptions struct {
	Status   string
	Page     int
	PageSize int
}

// ListTasks fetches GET /api/v1/tasks.
func (c *Client) ListTasks(ctx context.Context, opts ListTasksOptions) (*TaskList, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}
	path := "/api/v1/tasks"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var list TaskList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Stats fetches GET /admin/stats.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.do(ctx, http.MethodGet, "/admin/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Health fetches GET /admin/health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/admin/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.apiKey)
	}
	for k, v := range c.opts.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var env errorEnvelope
		_ = json.Unmarshal(data, &env)
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Error}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
