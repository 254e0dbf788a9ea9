// Package executor runs the payload of a claimed job.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"jobqueue/internal/payload"
	"jobqueue/internal/store"
)

// ErrNoExecutor is returned by Registry.Execute for a job type with no
// registered executor.
var ErrNoExecutor = errors.New("no executor registered for job type")

// Executor performs the work described by one payload variant. A nil error
// completes the job; any error fails it with the error text.
type Executor interface {
	Execute(ctx context.Context, job *store.Job, p payload.Payload) error
}

// Func adapts a plain function to Executor.
type Func func(ctx context.Context, job *store.Job, p payload.Payload) error

func (f Func) Execute(ctx context.Context, job *store.Job, p payload.Payload) error {
	return f(ctx, job, p)
}

// Registry maps job types to executors. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	executors map[payload.Type]Executor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[payload.Type]Executor)}
}

// Register binds e to t, replacing any previous binding.
func (r *Registry) Register(t payload.Type, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[t] = e
}

// Lookup returns the executor for t.
func (r *Registry) Lookup(t payload.Type) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[t]
	return e, ok
}

// Execute dispatches to the executor registered for job.Type.
func (r *Registry) Execute(ctx context.Context, job *store.Job, p payload.Payload) error {
	e, ok := r.Lookup(payload.Type(job.Type))
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoExecutor, job.Type)
	}
	return e.Execute(ctx, job, p)
}

// Defaults returns a registry with the built-in executors. File operations
// are confined to root.
func Defaults(root string, logger *slog.Logger) *Registry {
	r := NewRegistry()
	files := NewFiles(root)
	r.Register(payload.TypeEcho, NewEcho(logger))
	r.Register(payload.TypeCreateFile, Func(files.Create))
	r.Register(payload.TypeDeleteFile, Func(files.Delete))
	return r
}

func unexpected(want payload.Type, got payload.Payload) error {
	return fmt.Errorf("%s executor got %T payload", want, got)
}
