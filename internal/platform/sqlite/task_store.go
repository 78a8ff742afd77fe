package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nuevabiblioteca/biblioteca/internal/platform/logger"
	"github.com/nuevabiblioteca/biblioteca/internal/store"
	"github.com/nuevabiblioteca/biblioteca/internal/taskqueue"
)

// TaskStore implements the taskqueue.Store interface on SQLite.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a TaskStore over the given connection or transaction.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `id, type, params, status, created_at, started_at, completed_at, error, result, retries, max_retries, retry_delay`

// CreateTask persists a new pending task row.
func (s *TaskStore) CreateTask(ctx context.Context, rec *taskqueue.Record) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	params := rec.Params
	if len(params) == 0 {
		params = json.RawMessage("null")
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Type,
		string(params),
		string(rec.Status),
		rec.CreatedAt,
		nullableTime(rec.StartedAt),
		nullableTime(rec.CompletedAt),
		nullableString(rec.Error),
		nullableJSON(rec.Result),
		rec.Retries,
		rec.MaxRetries,
		int64(rec.RetryDelay/time.Second),
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", rec.ID,
			"task_type", rec.Type,
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", err)
	}

	return nil
}

// GetTask returns a snapshot of the task row.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*taskqueue.Record, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	rec, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, taskqueue.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return rec, nil
}

// ListPending returns up to limit pending tasks, oldest first.
func (s *TaskStore) ListPending(ctx context.Context, limit int) ([]*taskqueue.Record, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, string(taskqueue.StatusPending), limit)
	if err != nil {
		log.Error("failed to query pending tasks", "error", err)
		return nil, fmt.Errorf("failed to query pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*taskqueue.Record
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// ClaimTask atomically transitions a pending task to running. The
// conditional UPDATE is the mutual-exclusion point: of any number of
// concurrent claimants, exactly one observes an affected row.
func (s *TaskStore) ClaimTask(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET status = ?, started_at = ?
		WHERE id = ? AND status = ?
	`
	return s.conditional(ctx, query,
		string(taskqueue.StatusRunning), startedAt, id, string(taskqueue.StatusPending))
}

// MarkCompleted transitions a running task to completed. A row cancelled
// while the handler was in flight is left untouched.
func (s *TaskStore) MarkCompleted(ctx context.Context, id string, result json.RawMessage, completedAt time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET status = ?, result = ?, completed_at = ?, error = NULL
		WHERE id = ? AND status = ?
	`
	return s.conditional(ctx, query,
		string(taskqueue.StatusCompleted), nullableJSON(result), completedAt,
		id, string(taskqueue.StatusRunning))
}

// MarkFailed transitions a running task to failed with its final error.
func (s *TaskStore) MarkFailed(ctx context.Context, id string, errMsg string, completedAt time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET status = ?, error = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`
	return s.conditional(ctx, query,
		string(taskqueue.StatusFailed), errMsg, completedAt,
		id, string(taskqueue.StatusRunning))
}

// MarkRetrying records a retryable failure against a running task.
func (s *TaskStore) MarkRetrying(ctx context.Context, id string, errMsg string, retries int) (bool, error) {
	query := `
		UPDATE tasks
		SET status = ?, error = ?, retries = ?
		WHERE id = ? AND status = ?
	`
	return s.conditional(ctx, query,
		string(taskqueue.StatusRetrying), errMsg, retries,
		id, string(taskqueue.StatusRunning))
}

// RequeueForRetry rewrites a retrying task to pending with error cleared.
func (s *TaskStore) RequeueForRetry(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE tasks
		SET status = ?, error = NULL
		WHERE id = ? AND status = ?
	`
	return s.conditional(ctx, query,
		string(taskqueue.StatusPending), id, string(taskqueue.StatusRetrying))
}

// RequeueRetrying rewrites every retrying row to pending.
func (s *TaskStore) RequeueRetrying(ctx context.Context) (int64, error) {
	query := `
		UPDATE tasks
		SET status = ?, error = NULL
		WHERE status = ?
	`
	return s.affected(ctx, query,
		string(taskqueue.StatusPending), string(taskqueue.StatusRetrying))
}

// CancelTask transitions a pending or running task to cancelled.
func (s *TaskStore) CancelTask(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET status = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)
	`
	return s.conditional(ctx, query,
		string(taskqueue.StatusCancelled), completedAt, id,
		string(taskqueue.StatusPending), string(taskqueue.StatusRunning))
}

// DeleteTerminatedBefore removes expired completed and cancelled rows.
func (s *TaskStore) DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM tasks
		WHERE status IN (?, ?) AND completed_at < ?
	`
	return s.affected(ctx, query,
		string(taskqueue.StatusCompleted), string(taskqueue.StatusCancelled), cutoff)
}

// ReleaseStale requeues running rows whose start predates the cutoff.
func (s *TaskStore) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE tasks
		SET status = ?, started_at = NULL
		WHERE status = ? AND started_at < ?
	`
	return s.affected(ctx, query,
		string(taskqueue.StatusPending), string(taskqueue.StatusRunning), cutoff)
}

// conditional executes a guarded single-row UPDATE and reports whether
// the precondition held.
func (s *TaskStore) conditional(ctx context.Context, query string, args ...any) (bool, error) {
	n, err := s.affected(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *TaskStore) affected(ctx context.Context, query string, args ...any) (int64, error) {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("task store write failed", "error", err)
		return 0, fmt.Errorf("failed to update tasks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*taskqueue.Record, error) {
	var (
		rec         taskqueue.Record
		status      string
		params      string
		startedAt   sql.NullTime
		completedAt sql.NullTime
		errMsg      sql.NullString
		result      sql.NullString
		retryDelay  int64
	)

	if err := row.Scan(
		&rec.ID,
		&rec.Type,
		&params,
		&status,
		&rec.CreatedAt,
		&startedAt,
		&completedAt,
		&errMsg,
		&result,
		&rec.Retries,
		&rec.MaxRetries,
		&retryDelay,
	); err != nil {
		return nil, err
	}

	rec.Params = json.RawMessage(params)
	rec.Status = taskqueue.Status(status)
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		rec.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		rec.CompletedAt = &t
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.Error = errMsg.String
	if result.Valid {
		rec.Result = json.RawMessage(result.String)
	}
	rec.RetryDelay = time.Duration(retryDelay) * time.Second

	return &rec, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
