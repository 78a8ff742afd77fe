// Package batch implements chunked concurrent processing of large item
// sets with bounded memory and worker counts. It performs its own
// concurrency outside the task queue; queue handlers use it for the
// fan-out inside a single task.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Progress represents the state of a batch run.
type Progress struct {
	TotalItems     int
	ProcessedItems int
	CurrentItem    string
	Errors         []string
	StartTime      time.Time
}

// Percent returns the completion percentage.
func (p Progress) Percent() float64 {
	if p.TotalItems == 0 {
		return 0
	}
	return float64(p.ProcessedItems) / float64(p.TotalItems) * 100
}

// Elapsed returns the time since the run started.
func (p Progress) Elapsed() time.Duration {
	return time.Since(p.StartTime)
}

// Processor processes item slices in fixed-size chunks, running the items
// of each chunk concurrently under a bounded worker count. Item failures
// are collected into the progress report rather than aborting the run;
// only context cancellation stops a run early.
type Processor[T, R any] struct {
	chunkSize int
	workers   int
}

// New creates a processor with the given chunk size and worker bound.
// Non-positive values fall back to chunks of 10 and 2 workers.
func New[T, R any](chunkSize, workers int) *Processor[T, R] {
	if chunkSize <= 0 {
		chunkSize = 10
	}
	if workers <= 0 {
		workers = 2
	}
	return &Processor[T, R]{chunkSize: chunkSize, workers: workers}
}

// Process runs fn over every item and returns the successful results in
// item order. onProgress, when non-nil, is invoked after each chunk.
// Returns ctx.Err if the run was cancelled mid-way.
func (p *Processor[T, R]) Process(
	ctx context.Context,
	items []T,
	fn func(ctx context.Context, item T) (R, error),
	onProgress func(Progress),
) ([]R, error) {
	progress := Progress{
		TotalItems: len(items),
		StartTime:  time.Now().UTC(),
	}
	results := make([]R, 0, len(items))

	for start := 0; start < len(items); start += p.chunkSize {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := start + p.chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		chunkResults, chunkErrs := p.processChunk(ctx, chunk, fn)
		for _, r := range chunkResults {
			if r != nil {
				results = append(results, *r)
			}
		}

		progress.ProcessedItems += len(chunk)
		progress.Errors = append(progress.Errors, chunkErrs...)
		progress.CurrentItem = fmt.Sprintf("%v", chunk[len(chunk)-1])
		if onProgress != nil {
			onProgress(progress)
		}
	}

	return results, ctx.Err()
}

// processChunk runs one chunk's items under the worker bound. Results
// keep chunk order; failed items yield nil plus an error string.
func (p *Processor[T, R]) processChunk(
	ctx context.Context,
	chunk []T,
	fn func(ctx context.Context, item T) (R, error),
) ([]*R, []string) {
	results := make([]*R, len(chunk))

	var mu sync.Mutex
	var errs []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, item := range chunk {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%v: %v", item, err))
				mu.Unlock()
				// Item failures are recorded, not propagated: the rest
				// of the chunk still runs.
				return nil
			}
			results[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	return results, errs
}
