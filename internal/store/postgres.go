package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conductorhq/agentorch/internal/task"
)

// PostgresStore is the production Store, backed by a pgx connection pool.
// ClaimOne is the component this package exists to provide: a single
// transaction that finds the oldest eligible row with
// `SELECT ... FOR UPDATE SKIP LOCKED` and flips it to RUNNING before any
// other caller can see it, which is the atomic-claim recipe SPEC_FULL.md
// §4.1 asks for and the teacher's Redis-streams queue never needed.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool against databaseURL. Callers should run
// Migrate(databaseURL) once at process start before using the store.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func marshalDelivery(d *task.Delivery) (email, storage, folder *string) {
	if d == nil {
		return nil, nil, nil
	}
	return nonEmpty(d.Email), nonEmpty(d.Storage), nonEmpty(d.Folder)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *PostgresStore) InsertTask(ctx context.Context, t *task.Task) error {
	configJSON, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	email, storage, folder := marshalDelivery(t.Delivery)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (
			id, type, title, description, config,
			delivery_email, delivery_storage, delivery_folder, attachment_refs,
			status, attempts, max_attempts, last_error,
			next_retry_at, created_at, queued_at, started_at, completed_at,
			outputs_path, result_summary, cloud_links, correlation_id
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22
		)`,
		t.ID, string(t.Type), t.Title, t.Description, configJSON,
		email, storage, folder, t.AttachmentRefs,
		t.Status.String(), t.Attempts, t.MaxAttempts, nonEmpty(t.LastError),
		t.NextRetryAt, t.CreatedAt, t.QueuedAt, t.StartedAt, t.CompletedAt,
		t.OutputsPath, nonEmpty(t.ResultSummary), mustJSON(t.CloudLinks), nonEmpty(t.CorrelationID),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func mustJSON(v interface{}) []byte {
	if v == nil {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}

func (s *PostgresStore) LoadTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, taskSelectSQL+" WHERE id = $1", id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter ListFilter) ([]*task.Task, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	args := []interface{}{}
	where := ""
	if filter.Status != nil {
		args = append(args, filter.Status.String())
		where = "WHERE status = $1"
	}

	countSQL := "SELECT count(*) FROM tasks " + where
	var total int
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	args = append(args, limit, filter.Offset)
	listSQL := fmt.Sprintf("%s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		taskSelectSQL, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) UpdateTask(ctx context.Context, t *task.Task) error {
	email, storage, folder := marshalDelivery(t.Delivery)
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET
			status = $2, attempts = $3, max_attempts = $4, last_error = $5,
			next_retry_at = $6, queued_at = $7, started_at = $8, completed_at = $9,
			result_summary = $10, cloud_links = $11,
			delivery_email = $12, delivery_storage = $13, delivery_folder = $14
		WHERE id = $1`,
		t.ID, t.Status.String(), t.Attempts, t.MaxAttempts, nonEmpty(t.LastError),
		t.NextRetryAt, t.QueuedAt, t.StartedAt, t.CompletedAt,
		nonEmpty(t.ResultSummary), mustJSON(t.CloudLinks),
		email, storage, folder,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrTaskNotFound
	}
	return nil
}

// ClaimOne is the store's one atomic operation: it runs the claim query
// inside a transaction so the SELECT ... FOR UPDATE SKIP LOCKED and the
// subsequent UPDATE observe a consistent snapshot, and commits before
// returning so a crash afterward can never re-deliver the same attempt.
func (s *PostgresStore) ClaimOne(ctx context.Context, now time.Time) (*task.Task, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id string
	err = tx.QueryRow(ctx, `
		SELECT id FROM tasks
		WHERE status = 'queued' OR (status = 'retry' AND next_retry_at <= $1)
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, now).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable task: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE tasks
		SET status = 'running', started_at = $2, attempts = attempts + 1, next_retry_at = NULL
		WHERE id = $1
		RETURNING `+taskColumns, id, now)

	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, l *task.Log) error {
	dataJSON := mustJSON(l.Data)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO task_logs (task_id, level, event, message, data, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, timestamp`,
		l.TaskID, string(l.Level), l.Event, l.Message, dataJSON, nonEmpty(l.CorrelationID),
	).Scan(&l.ID, &l.Timestamp)
	if err != nil {
		return fmt.Errorf("append task log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLogs(ctx context.Context, taskID string, limit int) ([]*task.Log, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, level, event, message, data, timestamp, correlation_id
		FROM task_logs WHERE task_id = $1
		ORDER BY timestamp DESC LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list task logs: %w", err)
	}
	defer rows.Close()

	var out []*task.Log
	for rows.Next() {
		var l task.Log
		var level, event string
		var correlationID *string
		var data []byte
		if err := rows.Scan(&l.ID, &l.TaskID, &level, &event, &l.Message, &data, &l.Timestamp, &correlationID); err != nil {
			return nil, fmt.Errorf("scan task log: %w", err)
		}
		l.Level = task.LogLevel(level)
		l.Event = event
		l.CorrelationID = deref(correlationID)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &l.Data)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[task.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[task.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[task.ParseStatus(status)] = n
	}
	return counts, rows.Err()
}

const taskColumns = `
	id, type, title, description, config,
	delivery_email, delivery_storage, delivery_folder, attachment_refs,
	status, attempts, max_attempts, last_error,
	next_retry_at, created_at, queued_at, started_at, completed_at,
	outputs_path, result_summary, cloud_links, correlation_id`

const taskSelectSQL = "SELECT " + taskColumns + " FROM tasks"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var typ, status string
	var configJSON, cloudLinksJSON []byte
	var email, storage, folder, lastError, resultSummary, correlationID *string

	err := row.Scan(
		&t.ID, &typ, &t.Title, &t.Description, &configJSON,
		&email, &storage, &folder, &t.AttachmentRefs,
		&status, &t.Attempts, &t.MaxAttempts, &lastError,
		&t.NextRetryAt, &t.CreatedAt, &t.QueuedAt, &t.StartedAt, &t.CompletedAt,
		&t.OutputsPath, &resultSummary, &cloudLinksJSON, &correlationID,
	)
	if err != nil {
		return nil, err
	}

	t.Type = task.Type(typ)
	t.Status = task.ParseStatus(status)
	t.LastError = deref(lastError)
	t.ResultSummary = deref(resultSummary)
	t.CorrelationID = deref(correlationID)

	if len(configJSON) > 0 {
		_ = json.Unmarshal(configJSON, &t.Config)
	}
	if len(cloudLinksJSON) > 0 {
		_ = json.Unmarshal(cloudLinksJSON, &t.CloudLinks)
	}
	if deref(email) != "" || deref(storage) != "" || deref(folder) != "" {
		t.Delivery = &task.Delivery{Email: deref(email), Storage: deref(storage), Folder: deref(folder)}
	}

	return &t, nil
}
