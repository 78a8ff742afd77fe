package taskqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current lifecycle state of a task.
type Status string

// Possible task status values.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"

	// StatusRetrying is a short-lived marker set after a retryable failure;
	// once the retry delay elapses the row is rewritten to pending.
	StatusRetrying Status = "retrying"
)

// Terminal reports whether a task in this status will never run again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Record is the persisted state of a single task. One row per task id;
// the store row is the sole authority on the task's lifecycle.
type Record struct {
	// ID is assigned at enqueue time: the task type plus a time-ordered
	// unique suffix.
	ID string

	// Type selects the registered handler that processes the task.
	Type string

	// Params is the opaque payload passed to the handler verbatim.
	Params json.RawMessage

	Status Status

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	// Error holds the most recent failure message. Cleared when a retry
	// begins; always set on a failed task.
	Error string

	// Result is the JSON-serialized handler output, set only on completion.
	Result json.RawMessage

	// Retries counts failed attempts so far; never exceeds MaxRetries.
	Retries    int
	MaxRetries int

	// RetryDelay is the wait before a failed task becomes eligible again.
	RetryDelay time.Duration
}

// NewTaskID builds a task id from the task type and a UUIDv7 suffix.
// UUIDv7 is time-ordered, so ids of the same type sort by creation.
func NewTaskID(taskType string) string {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return taskType + "-" + u.String()
}
