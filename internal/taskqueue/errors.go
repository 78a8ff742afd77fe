package taskqueue

import "errors"

// Common errors returned by the queue.
var (
	// ErrHandlerNotRegistered is returned by Enqueue for a task type with
	// no registered handler. This is a configuration error: it is surfaced
	// synchronously to the caller and nothing is persisted.
	ErrHandlerNotRegistered = errors.New("no handler registered for task type")

	// ErrTaskNotFound is returned when no task row exists for the given id.
	ErrTaskNotFound = errors.New("task not found")
)

// nonRetryableError marks a handler failure that must not consume the
// retry budget; the executor maps it straight to the failed state.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }

func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable wraps a handler error so the executor fails the task
// immediately instead of scheduling a retry. Handlers use this for
// permanent conditions such as malformed parameters or missing files.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable reports whether err carries the non-retryable marker.
func IsNonRetryable(err error) bool {
	var nr *nonRetryableError
	return errors.As(err, &nr)
}
