package taskqueue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Handler performs the actual work for one task type. It receives the
// task's params verbatim and returns a JSON-serializable result.
// Handlers must observe ctx: cancellation is cooperative, and the queue
// never forcibly terminates an in-flight handler.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Registry maps task-type identifiers to their handlers.
// Handlers must be registered before any task of that type is enqueued.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register associates a task type with a handler, replacing any prior
// registration for that type.
func (r *Registry) Register(taskType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = handler
}

// Lookup returns the handler for the given task type.
func (r *Registry) Lookup(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}

// Registered reports whether a handler exists for the given task type.
func (r *Registry) Registered(taskType string) bool {
	_, ok := r.Lookup(taskType)
	return ok
}

// Types returns the registered task types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
