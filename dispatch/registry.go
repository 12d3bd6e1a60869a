// Package dispatch routes a payload to every handler registered under a key.
//
// A Registry keeps (key, handler) entries in registration order. Keys need
// not be unique. Dispatch invokes every handler whose key matches exactly,
// synchronously and in order, each inside its own failure boundary: a
// returned error or a panic is captured in the Result and the remaining
// handlers still run.
//
// Handlers may call Register on the registry that is dispatching to them.
// The new entry is visible to later Dispatch calls only; the one in progress
// works on a snapshot taken before the first handler ran.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// Handler receives payloads dispatched under the key it was registered with.
// Handle runs on the dispatching goroutine and must not block indefinitely.
type Handler[T any] interface {
	Handle(ctx context.Context, payload T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, payload T) error

// Handle calls f(ctx, payload).
func (f HandlerFunc[T]) Handle(ctx context.Context, payload T) error {
	return f(ctx, payload)
}

type entry[T any] struct {
	key     string
	handler Handler[T]
}

// Registry is safe for concurrent Register and Dispatch.
type Registry[T any] struct {
	name string

	mu      sync.RWMutex
	entries []entry[T]
}

// New returns an empty registry. name identifies it in errors.
func New[T any](name string) *Registry[T] {
	return &Registry[T]{name: name}
}

// Name returns the registry name.
func (r *Registry[T]) Name() string {
	return r.name
}

// Register appends h under key. It panics if h is nil.
func (r *Registry[T]) Register(key string, h Handler[T]) {
	if h == nil {
		panic("dispatch: nil handler for key " + key)
	}
	r.mu.Lock()
	r.entries = append(r.entries, entry[T]{key: key, handler: h})
	r.mu.Unlock()
}

// RegisterFunc is Register for a plain function.
func (r *Registry[T]) RegisterFunc(key string, fn func(ctx context.Context, payload T) error) {
	if fn == nil {
		panic("dispatch: nil handler for key " + key)
	}
	r.Register(key, HandlerFunc[T](fn))
}

// Len returns the number of entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Keys returns the distinct keys in first-registration order.
func (r *Registry[T]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.entries))
	keys := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		if _, ok := seen[e.key]; ok {
			continue
		}
		seen[e.key] = struct{}{}
		keys = append(keys, e.key)
	}
	return keys
}

// Dispatch invokes every handler registered under key. A key with no
// handlers is not an error.
func (r *Registry[T]) Dispatch(ctx context.Context, key string, payload T) Result {
	res := Result{Registry: r.name, Key: key}

	r.mu.RLock()
	var matched []Handler[T]
	for _, e := range r.entries {
		if e.key == key {
			matched = append(matched, e.handler)
		}
	}
	r.mu.RUnlock()

	for i, h := range matched {
		res.Invoked++
		if err := invoke(ctx, h, payload); err != nil {
			res.Failures = append(res.Failures, &HandlerError{
				Registry: r.name,
				Key:      key,
				Index:    i,
				Err:      err,
			})
		}
	}
	return res
}

func invoke[T any](ctx context.Context, h Handler[T], payload T) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return h.Handle(ctx, payload)
}

// Result summarises one Dispatch call.
type Result struct {
	Registry string
	Key      string
	Invoked  int
	Failures []*HandlerError
}

// Err joins the handler failures, or returns nil.
func (r Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// HandlerError is a failure of one handler during Dispatch.
type HandlerError struct {
	Registry string
	Key      string
	Index    int // position among the handlers matched for Key
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("dispatch: %s handler #%d for %q: %v", e.Registry, e.Index, e.Key, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError is a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}
