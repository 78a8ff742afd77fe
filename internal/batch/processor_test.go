package batch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorKeepsItemOrder(t *testing.T) {
	t.Parallel()

	p := New[int, int](3, 2)
	items := []int{1, 2, 3, 4, 5, 6, 7}

	results, err := p.Process(context.Background(), items, func(ctx context.Context, n int) (int, error) {
		return n * 10, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70}, results)
}

func TestProcessorCollectsItemFailures(t *testing.T) {
	t.Parallel()

	p := New[string, string](2, 2)
	items := []string{"a.mp3", "bad.mp3", "c.mp3"}

	var lastProgress Progress
	results, err := p.Process(context.Background(), items, func(ctx context.Context, path string) (string, error) {
		if strings.HasPrefix(path, "bad") {
			return "", errors.New("unreadable")
		}
		return path, nil
	}, func(p Progress) {
		lastProgress = p
	})
	require.NoError(t, err, "item failures must not abort the run")
	assert.Equal(t, []string{"a.mp3", "c.mp3"}, results)

	assert.Equal(t, 3, lastProgress.TotalItems)
	assert.Equal(t, 3, lastProgress.ProcessedItems)
	require.Len(t, lastProgress.Errors, 1)
	assert.Contains(t, lastProgress.Errors[0], "bad.mp3")
	assert.InEpsilon(t, 100.0, lastProgress.Percent(), 0.001)
}

func TestProcessorStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	p := New[int, int](1, 1)
	items := []int{1, 2, 3, 4, 5}

	var processed atomic.Int32
	results, err := p.Process(ctx, items, func(ctx context.Context, n int) (int, error) {
		if processed.Add(1) == 2 {
			cancel()
		}
		return n, nil
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(results), len(items))
	assert.Less(t, processed.Load(), int32(5))
}

func TestProcessorBoundsConcurrency(t *testing.T) {
	t.Parallel()

	p := New[int, int](10, 2)
	items := make([]int, 10)

	var current, peak atomic.Int32
	_, err := p.Process(context.Background(), items, func(ctx context.Context, n int) (int, error) {
		c := current.Add(1)
		for {
			m := peak.Load()
			if c <= m || peak.CompareAndSwap(m, c) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return n, nil
	}, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestProcessorProgressPerChunk(t *testing.T) {
	t.Parallel()

	p := New[int, int](2, 1)
	items := []int{1, 2, 3, 4, 5}

	var calls []int
	_, err := p.Process(context.Background(), items, func(ctx context.Context, n int) (int, error) {
		return n, nil
	}, func(p Progress) {
		calls = append(calls, p.ProcessedItems)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5}, calls)
}

func TestProcessorEmptyInput(t *testing.T) {
	t.Parallel()

	p := New[int, int](10, 2)
	results, err := p.Process(context.Background(), nil, func(ctx context.Context, n int) (int, error) {
		return n, nil
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProgressPercentEmptyRun(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Progress{}.Percent())
}
