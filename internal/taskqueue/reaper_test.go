package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrTime(t time.Time) *time.Time { return &t }

func TestReaperSweepDeletesExpiredTerminalRows(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := NewMockStore()
	store.Put(&Record{
		ID: "echo-old-completed", Type: "echo", Status: StatusCompleted,
		CreatedAt: now.Add(-9 * 24 * time.Hour), CompletedAt: ptrTime(now.Add(-8 * 24 * time.Hour)),
	})
	store.Put(&Record{
		ID: "echo-old-cancelled", Type: "echo", Status: StatusCancelled,
		CreatedAt: now.Add(-9 * 24 * time.Hour), CompletedAt: ptrTime(now.Add(-8 * 24 * time.Hour)),
	})
	store.Put(&Record{
		ID: "echo-fresh-completed", Type: "echo", Status: StatusCompleted,
		CreatedAt: now.Add(-time.Hour), CompletedAt: ptrTime(now.Add(-time.Minute)),
	})
	// Failed rows are kept regardless of age so the error stays inspectable.
	store.Put(&Record{
		ID: "echo-old-failed", Type: "echo", Status: StatusFailed,
		CreatedAt: now.Add(-30 * 24 * time.Hour), CompletedAt: ptrTime(now.Add(-30 * 24 * time.Hour)),
	})
	store.Put(&Record{
		ID: "echo-pending", Type: "echo", Status: StatusPending,
		CreatedAt: now.Add(-30 * 24 * time.Hour),
	})

	r := NewReaper(store, DefaultReaperConfig(), testLogger(), nil)
	r.Sweep(context.Background())

	_, err := store.GetTask(context.Background(), "echo-old-completed")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = store.GetTask(context.Background(), "echo-old-cancelled")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	for _, id := range []string{"echo-fresh-completed", "echo-old-failed", "echo-pending"} {
		_, err := store.GetTask(context.Background(), id)
		assert.NoError(t, err, "row %s must survive the sweep", id)
	}
}

func TestReaperSweepReleasesStaleRunningRows(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := NewMockStore()
	store.Put(&Record{
		ID: "echo-stale", Type: "echo", Status: StatusRunning,
		CreatedAt: now.Add(-3 * time.Hour), StartedAt: ptrTime(now.Add(-2 * time.Hour)),
	})
	store.Put(&Record{
		ID: "echo-live", Type: "echo", Status: StatusRunning,
		CreatedAt: now.Add(-time.Minute), StartedAt: ptrTime(now.Add(-30 * time.Second)),
	})

	notified := false
	r := NewReaper(store, DefaultReaperConfig(), testLogger(), func() { notified = true })
	r.Sweep(context.Background())

	stale, err := store.GetTask(context.Background(), "echo-stale")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stale.Status)
	assert.Nil(t, stale.StartedAt)

	live, err := store.GetTask(context.Background(), "echo-live")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, live.Status)

	assert.True(t, notified, "requeued work must wake the scheduler")
}

func TestReaperSweepSkipsNotifyWhenNothingReleased(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	store.Put(&Record{
		ID: "echo-pending", Type: "echo", Status: StatusPending,
		CreatedAt: time.Now().UTC(),
	})

	notified := false
	r := NewReaper(store, DefaultReaperConfig(), testLogger(), func() { notified = true })
	r.Sweep(context.Background())

	assert.False(t, notified)
}

func TestReaperStartAndStop(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	r := NewReaper(store, ReaperConfig{
		Interval:  10 * time.Millisecond,
		Retention: time.Hour,
		StaleAge:  time.Hour,
	}, testLogger(), nil)

	r.Start()
	time.Sleep(30 * time.Millisecond)
	r.Stop()
}
