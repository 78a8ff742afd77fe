package taskqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ReaperConfig holds configuration for the periodic maintenance sweep.
type ReaperConfig struct {
	// Interval between sweeps.
	Interval time.Duration

	// Retention is how long completed and cancelled rows are kept.
	Retention time.Duration

	// StaleAge is how long a task may sit in the running state before
	// its owner is presumed to have crashed.
	StaleAge time.Duration
}

// DefaultReaperConfig returns a ReaperConfig with reasonable defaults.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Interval:  time.Hour,
		Retention: 7 * 24 * time.Hour,
		StaleAge:  time.Hour,
	}
}

// Reaper periodically deletes expired terminal tasks and requeues tasks
// stranded in the running state. Ownership of a running task lives only in
// its process's memory, so a crash leaves the row running forever unless
// the reaper reclaims it — at the cost of possible duplicate execution.
type Reaper struct {
	store  Store
	cfg    ReaperConfig
	logger *slog.Logger

	// notify wakes the scheduler after stale tasks are requeued.
	notify func()

	cron *cron.Cron
}

// NewReaper creates a reaper over the given store. notify may be nil; when
// set it is called after a sweep requeues recovered tasks, typically wired
// to Queue.Wake.
func NewReaper(store Store, cfg ReaperConfig, logger *slog.Logger, notify func()) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Reaper{
		store:  store,
		cfg:    cfg,
		logger: logger,
		notify: notify,
	}
}

// Start schedules the sweep on a fixed interval.
func (r *Reaper) Start() {
	r.cron = cron.New()
	r.cron.Schedule(cron.Every(r.cfg.Interval), cron.FuncJob(func() {
		r.Sweep(context.Background())
	}))
	r.cron.Start()
	r.logger.Info("reaper started",
		"interval", r.cfg.Interval,
		"retention", r.cfg.Retention,
		"stale_age", r.cfg.StaleAge)
}

// Stop halts the schedule and waits for a sweep in progress to finish.
func (r *Reaper) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.logger.Info("reaper stopped")
}

// Sweep runs both maintenance passes once. Exported so startup code and
// tests can trigger a sweep outside the schedule. Store failures are
// logged and abandoned; the next sweep retries.
func (r *Reaper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	deleted, err := r.store.DeleteTerminatedBefore(ctx, now.Add(-r.cfg.Retention))
	if err != nil {
		r.logger.Error("failed to delete expired tasks", "error", err)
	} else if deleted > 0 {
		r.logger.Info("deleted expired tasks", "count", deleted)
	}

	released, err := r.store.ReleaseStale(ctx, now.Add(-r.cfg.StaleAge))
	if err != nil {
		r.logger.Error("failed to release stale tasks", "error", err)
		return
	}
	if released > 0 {
		r.logger.Warn("requeued tasks stuck in running state", "count", released)
		if r.notify != nil {
			r.notify()
		}
	}
}
