package taskqueue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MockStore is a thread-safe in-memory Store implementation for tests.
// Its conditional transitions mirror the SQL store's semantics exactly,
// including rejected writes against rows that changed underneath.
type MockStore struct {
	mu    sync.Mutex
	tasks map[string]*Record

	// CreateFn, when set, replaces CreateTask. Used to simulate
	// persistence failures.
	CreateFn func(ctx context.Context, rec *Record) error

	// ListPendingFn, when set, replaces ListPending.
	ListPendingFn func(ctx context.Context, limit int) ([]*Record, error)
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		tasks: make(map[string]*Record),
	}
}

func cloneRecord(rec *Record) *Record {
	c := *rec
	if rec.StartedAt != nil {
		t := *rec.StartedAt
		c.StartedAt = &t
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		c.CompletedAt = &t
	}
	c.Params = append(json.RawMessage(nil), rec.Params...)
	c.Result = append(json.RawMessage(nil), rec.Result...)
	return &c
}

// Len returns the number of stored rows.
func (s *MockStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Put inserts a row directly, bypassing CreateTask. Test setup helper.
func (s *MockStore) Put(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[rec.ID] = cloneRecord(rec)
}

func (s *MockStore) CreateTask(ctx context.Context, rec *Record) error {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, rec)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MockStore) GetTask(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MockStore) ListPending(ctx context.Context, limit int) ([]*Record, error) {
	if s.ListPendingFn != nil {
		return s.ListPendingFn(ctx, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*Record
	for _, rec := range s.tasks {
		if rec.Status == StatusPending {
			pending = append(pending, cloneRecord(rec))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *MockStore) ClaimTask(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok || rec.Status != StatusPending {
		return false, nil
	}
	rec.Status = StatusRunning
	rec.StartedAt = &startedAt
	return true, nil
}

func (s *MockStore) MarkCompleted(ctx context.Context, id string, result json.RawMessage, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok || rec.Status != StatusRunning {
		return false, nil
	}
	rec.Status = StatusCompleted
	rec.Result = append(json.RawMessage(nil), result...)
	rec.CompletedAt = &completedAt
	rec.Error = ""
	return true, nil
}

func (s *MockStore) MarkFailed(ctx context.Context, id string, errMsg string, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok || rec.Status != StatusRunning {
		return false, nil
	}
	rec.Status = StatusFailed
	rec.Error = errMsg
	rec.CompletedAt = &completedAt
	return true, nil
}

func (s *MockStore) MarkRetrying(ctx context.Context, id string, errMsg string, retries int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok || rec.Status != StatusRunning {
		return false, nil
	}
	rec.Status = StatusRetrying
	rec.Error = errMsg
	rec.Retries = retries
	return true, nil
}

func (s *MockStore) RequeueForRetry(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok || rec.Status != StatusRetrying {
		return false, nil
	}
	rec.Status = StatusPending
	rec.Error = ""
	return true, nil
}

func (s *MockStore) RequeueRetrying(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.tasks {
		if rec.Status == StatusRetrying {
			rec.Status = StatusPending
			rec.Error = ""
			n++
		}
	}
	return n, nil
}

func (s *MockStore) CancelTask(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok || (rec.Status != StatusPending && rec.Status != StatusRunning) {
		return false, nil
	}
	rec.Status = StatusCancelled
	rec.CompletedAt = &completedAt
	return true, nil
}

func (s *MockStore) DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.tasks {
		if (rec.Status == StatusCompleted || rec.Status == StatusCancelled) &&
			rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

func (s *MockStore) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.tasks {
		if rec.Status == StatusRunning && rec.StartedAt != nil && rec.StartedAt.Before(cutoff) {
			rec.Status = StatusPending
			rec.StartedAt = nil
			n++
		}
	}
	return n, nil
}
