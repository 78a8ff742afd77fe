package taskqueue

import (
	"context"
	"encoding/json"
	"time"
)

// Store defines the interface for persisting tasks.
//
// Every state transition is a self-contained conditional write: the
// store rejects a transition whose precondition no longer holds (for
// example completing a task that was cancelled mid-flight), and reports
// the rejection through the boolean return rather than an error. This
// keeps interleaved claim/cancel/complete operations safe without
// multi-statement transactions.
type Store interface {
	// CreateTask persists a new pending task row.
	CreateTask(ctx context.Context, rec *Record) error

	// GetTask returns a snapshot of the task row, or ErrTaskNotFound.
	GetTask(ctx context.Context, id string) (*Record, error)

	// ListPending returns up to limit pending tasks ordered by creation
	// time ascending (FIFO).
	ListPending(ctx context.Context, limit int) ([]*Record, error)

	// ClaimTask atomically transitions a task from pending to running and
	// records startedAt. It reports false if the task is no longer pending;
	// at most one concurrent claimant may succeed for a given id.
	ClaimTask(ctx context.Context, id string, startedAt time.Time) (bool, error)

	// MarkCompleted transitions a running task to completed, storing the
	// serialized result. Reports false if the task is not running (e.g.
	// cancelled while the handler was in flight).
	MarkCompleted(ctx context.Context, id string, result json.RawMessage, completedAt time.Time) (bool, error)

	// MarkFailed transitions a running task to failed, recording the
	// final error message.
	MarkFailed(ctx context.Context, id string, errMsg string, completedAt time.Time) (bool, error)

	// MarkRetrying transitions a running task to retrying, recording the
	// attempt's error and the incremented retry count.
	MarkRetrying(ctx context.Context, id string, errMsg string, retries int) (bool, error)

	// RequeueForRetry rewrites a retrying task to pending with its error
	// cleared, making it eligible for the next scheduling pass.
	RequeueForRetry(ctx context.Context, id string) (bool, error)

	// RequeueRetrying rewrites every retrying row to pending. Used at
	// startup to re-arm retries whose in-process delay was lost to a crash.
	RequeueRetrying(ctx context.Context) (int64, error)

	// CancelTask transitions a pending or running task to cancelled.
	// Reports false if no such row exists.
	CancelTask(ctx context.Context, id string, completedAt time.Time) (bool, error)

	// DeleteTerminatedBefore removes completed and cancelled rows whose
	// completion predates the cutoff, returning the number deleted.
	DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ReleaseStale rewrites running rows whose start predates the cutoff
	// back to pending, recovering tasks orphaned by a crashed owner.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
}
