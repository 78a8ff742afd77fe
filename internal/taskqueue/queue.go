package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config holds configuration for the task queue.
type Config struct {
	// MaxConcurrent is the ceiling on simultaneously running handlers.
	MaxConcurrent int

	// DefaultMaxRetries applies when Enqueue is called without WithMaxRetries.
	DefaultMaxRetries int

	// DefaultRetryDelay applies when Enqueue is called without WithRetryDelay.
	DefaultRetryDelay time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     2,
		DefaultMaxRetries: 3,
		DefaultRetryDelay: 60 * time.Second,
	}
}

// Queue is the background task queue service. It is constructed once at
// startup and passed by reference to every caller; its lifecycle is tied
// to the application via Start and Stop.
//
// A single supervisor goroutine blocks on a wake signal raised by Enqueue,
// by executor completion, and by reaper recovery, and fills free concurrency
// slots from the store's pending pool in FIFO order. Selection always goes
// through the store, never an in-memory queue, so pending work survives a
// process restart.
type Queue struct {
	store    Store
	registry *Registry
	cfg      Config
	logger   *slog.Logger

	// mu guards running, the in-process set of executing task ids.
	// Insertions happen only in fill, removals only in execute.
	mu      sync.Mutex
	running map[string]context.CancelFunc

	// wake has capacity 1: repeated signals coalesce into one pass.
	wake chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a task queue backed by the given store and handler registry.
func New(store Store, registry *Registry, cfg Config, logger *slog.Logger) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Queue{
		store:    store,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		running:  make(map[string]context.CancelFunc),
		wake:     make(chan struct{}, 1),
	}
}

// RegisterHandler associates a task type with a handler, replacing any
// prior registration. Must be called before enqueueing tasks of that type.
func (q *Queue) RegisterHandler(taskType string, handler Handler) {
	q.registry.Register(taskType, handler)
}

// EnqueueOption customizes a single enqueued task.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	maxRetries *int
	retryDelay *time.Duration
}

// WithMaxRetries overrides the queue's default retry budget for this task.
func WithMaxRetries(n int) EnqueueOption {
	return func(o *enqueueOptions) { o.maxRetries = &n }
}

// WithRetryDelay overrides the queue's default retry delay for this task.
func WithRetryDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.retryDelay = &d }
}

// Enqueue persists a new pending task and returns its id immediately,
// without waiting for execution. params is JSON-marshaled and handed to
// the handler verbatim. Enqueueing an unregistered task type fails with
// ErrHandlerNotRegistered before anything is persisted.
func (q *Queue) Enqueue(ctx context.Context, taskType string, params any, opts ...EnqueueOption) (string, error) {
	if !q.registry.Registered(taskType) {
		return "", fmt.Errorf("%w: %q", ErrHandlerNotRegistered, taskType)
	}

	var o enqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	maxRetries := q.cfg.DefaultMaxRetries
	if o.maxRetries != nil {
		maxRetries = *o.maxRetries
	}
	retryDelay := q.cfg.DefaultRetryDelay
	if o.retryDelay != nil {
		retryDelay = *o.retryDelay
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task params: %w", err)
	}

	rec := &Record{
		ID:         NewTaskID(taskType),
		Type:       taskType,
		Params:     raw,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
	}

	if err := q.store.CreateTask(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to save task: %w", err)
	}

	q.logger.Debug("task enqueued",
		"task_id", rec.ID,
		"task_type", taskType,
		"max_retries", maxRetries)

	q.Wake()
	return rec.ID, nil
}

// GetTask returns a read-only snapshot of the task's current state.
func (q *Queue) GetTask(ctx context.Context, id string) (*Record, error) {
	return q.store.GetTask(ctx, id)
}

// Cancel transitions a pending or running task to cancelled. The durable
// row is written immediately; an in-flight handler is asked to stop via
// its context but is never forcibly terminated. Returns true if a task in
// a cancellable state was found.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := q.store.CancelTask(ctx, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to cancel task: %w", err)
	}
	if !ok {
		return false, nil
	}

	q.mu.Lock()
	cancelTask, inFlight := q.running[id]
	q.mu.Unlock()
	if inFlight {
		cancelTask()
	}

	q.logger.Info("task cancelled", "task_id", id, "was_running", inFlight)
	return true, nil
}

// Start launches the supervisor goroutine and performs crash recovery:
// retrying rows whose in-process delay was lost to a restart are requeued
// as pending. Pending rows need no special handling — the supervisor's
// first pass picks them up from the store.
func (q *Queue) Start(ctx context.Context) error {
	if q.started {
		return nil
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.started = true

	requeued, err := q.store.RequeueRetrying(q.ctx)
	if err != nil {
		return fmt.Errorf("failed to recover retrying tasks: %w", err)
	}
	if requeued > 0 {
		q.logger.Info("recovered tasks stranded in retrying state", "count", requeued)
	}

	q.wg.Add(1)
	go q.supervise()

	q.Wake()
	return nil
}

// Stop shuts the queue down: the supervisor exits, in-flight handlers are
// cancelled cooperatively, and Stop blocks until every executor returns.
// Tasks interrupted by shutdown keep their running row and are recovered
// by the reaper's staleness sweep after restart.
func (q *Queue) Stop() {
	if !q.started {
		return
	}
	q.cancel()
	q.wg.Wait()
	q.started = false
	q.logger.Info("task queue stopped")
}

// Wake nudges the supervisor to attempt a scheduling pass. Safe to call
// from any goroutine; signals coalesce.
func (q *Queue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// RunningCount returns the number of tasks currently held in the
// in-process running-set.
func (q *Queue) RunningCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// supervise is the single scheduler loop: it blocks until woken, then
// fills free concurrency slots from the pending pool.
func (q *Queue) supervise() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
			q.fill()
		}
	}
}

// fill claims up to MaxConcurrent-running pending tasks, oldest first,
// and launches one executor per successful claim.
func (q *Queue) fill() {
	q.mu.Lock()
	free := q.cfg.MaxConcurrent - len(q.running)
	q.mu.Unlock()
	if free <= 0 {
		return
	}

	pending, err := q.store.ListPending(q.ctx, free)
	if err != nil {
		// Abandon this pass; the next wake retries the store read.
		q.logger.Error("failed to list pending tasks", "error", err)
		return
	}

	for _, rec := range pending {
		startedAt := time.Now().UTC()
		claimed, err := q.store.ClaimTask(q.ctx, rec.ID, startedAt)
		if err != nil {
			q.logger.Error("failed to claim task", "task_id", rec.ID, "error", err)
			continue
		}
		if !claimed {
			// The row left pending between selection and claim
			// (cancelled, or claimed by a concurrent pass).
			continue
		}
		rec.Status = StatusRunning
		rec.StartedAt = &startedAt

		taskCtx, cancelTask := context.WithCancel(q.ctx)
		q.mu.Lock()
		q.running[rec.ID] = cancelTask
		q.mu.Unlock()

		q.wg.Add(1)
		go q.execute(taskCtx, rec)
	}
}

// execute runs one claimed task to a terminal or retrying state. All
// persistence happens before the in-process running-set is updated, so
// the store is never behind the in-process view.
func (q *Queue) execute(ctx context.Context, rec *Record) {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		if cancelTask, ok := q.running[rec.ID]; ok {
			cancelTask()
			delete(q.running, rec.ID)
		}
		q.mu.Unlock()
		q.Wake()
	}()

	logger := q.logger.With("task_id", rec.ID, "task_type", rec.Type)
	logger.Info("processing task", "attempt", rec.Retries+1)

	result, err := q.invoke(ctx, rec)
	if err == nil {
		q.complete(rec, result, logger)
		return
	}

	// A handler interrupted by shutdown keeps its running row; the
	// staleness sweep requeues it after restart instead of the
	// interruption consuming a retry.
	if q.ctx.Err() != nil {
		logger.Info("task interrupted by shutdown, leaving for recovery")
		return
	}

	q.fail(ctx, rec, err, logger)
}

// invoke calls the registered handler with panic containment: a panicking
// handler is converted into an ordinary task failure.
func (q *Queue) invoke(ctx context.Context, rec *Record) (result any, err error) {
	handler, ok := q.registry.Lookup(rec.Type)
	if !ok {
		// Possible after a restart with fewer registrations than the
		// enqueueing process had.
		return nil, NonRetryable(fmt.Errorf("%w: %q", ErrHandlerNotRegistered, rec.Type))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler(ctx, rec.Params)
}

func (q *Queue) complete(rec *Record, result any, logger *slog.Logger) {
	raw, err := json.Marshal(result)
	if err != nil {
		// Results are best-effort; an unserializable one is dropped.
		logger.Warn("task result not JSON-serializable, storing null", "error", err)
		raw = json.RawMessage("null")
	}

	ok, err := q.store.MarkCompleted(context.Background(), rec.ID, raw, time.Now().UTC())
	if err != nil {
		logger.Error("failed to mark task completed", "error", err)
		return
	}
	if !ok {
		// Cancelled while the handler was in flight; the cancelled row wins.
		logger.Info("task finished after cancellation, result discarded")
		return
	}
	logger.Info("task completed")
}

// fail classifies a handler error: non-retryable errors and exhausted
// budgets become failed; anything else schedules a retry after the
// task's delay, holding the concurrency slot while it waits.
func (q *Queue) fail(ctx context.Context, rec *Record, taskErr error, logger *slog.Logger) {
	if IsNonRetryable(taskErr) || rec.Retries >= rec.MaxRetries {
		ok, err := q.store.MarkFailed(context.Background(), rec.ID, taskErr.Error(), time.Now().UTC())
		if err != nil {
			logger.Error("failed to mark task failed", "error", err)
			return
		}
		if !ok {
			logger.Info("task failed after cancellation, error discarded")
			return
		}
		logger.Error("task failed",
			"error", taskErr,
			"retries", rec.Retries,
			"max_retries", rec.MaxRetries)
		return
	}

	attempt := rec.Retries + 1
	ok, err := q.store.MarkRetrying(context.Background(), rec.ID, taskErr.Error(), attempt)
	if err != nil {
		logger.Error("failed to mark task retrying", "error", err)
		return
	}
	if !ok {
		logger.Info("task cancelled before retry could be scheduled")
		return
	}
	logger.Warn("task failed, retry scheduled",
		"error", taskErr,
		"attempt", attempt,
		"max_retries", rec.MaxRetries,
		"retry_delay", rec.RetryDelay)

	timer := time.NewTimer(rec.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		// Cancelled or shut down during the delay. A cancelled row is
		// already terminal; a shutdown leaves the row retrying, which
		// Start requeues on the next run.
		return
	}

	ok, err = q.store.RequeueForRetry(context.Background(), rec.ID)
	if err != nil {
		logger.Error("failed to requeue task for retry", "error", err)
		return
	}
	if !ok {
		logger.Info("task cancelled during retry delay")
	}
}
