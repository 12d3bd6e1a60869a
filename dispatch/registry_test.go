package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name    string
	payload int
}

type callLog struct {
	mu    sync.Mutex
	calls []call
}

func (l *callLog) handler(name string) HandlerFunc[int] {
	return func(_ context.Context, payload int) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.calls = append(l.calls, call{name, payload})
		return nil
	}
}

func (l *callLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c.name)
	}
	return out
}

func TestRegistry_DispatchMatchesKeyInOrder(t *testing.T) {
	r := New[int]("action")
	log := &callLog{}
	r.Register("A", log.handler("A1"))
	r.Register("A", log.handler("A2"))
	r.Register("B", log.handler("B1"))

	res := r.Dispatch(context.Background(), "A", 7)

	assert.Equal(t, []string{"A1", "A2"}, log.names())
	assert.Equal(t, 2, res.Invoked)
	assert.Empty(t, res.Failures)
	assert.NoError(t, res.Err())
	assert.Equal(t, "A", res.Key)
	assert.Equal(t, "action", res.Registry)

	log.mu.Lock()
	for _, c := range log.calls {
		assert.Equal(t, 7, c.payload)
	}
	log.mu.Unlock()
}

func TestRegistry_UnknownKeyInvokesNothing(t *testing.T) {
	r := New[int]("action")
	log := &callLog{}
	r.Register("A", log.handler("A1"))

	res := r.Dispatch(context.Background(), "missing", 1)
	assert.Zero(t, res.Invoked)
	assert.NoError(t, res.Err())
	assert.Empty(t, log.names())

	empty := New[int]("message")
	assert.Zero(t, empty.Dispatch(context.Background(), "", 0).Invoked)
}

func TestRegistry_ExactKeyMatch(t *testing.T) {
	r := New[int]("action")
	log := &callLog{}
	r.Register("ping", log.handler("ping"))
	r.Register("Ping", log.handler("Ping"))
	r.Register("ping ", log.handler("ping-space"))

	r.Dispatch(context.Background(), "ping", 0)
	assert.Equal(t, []string{"ping"}, log.names())
}

func TestRegistry_FailureIsolation(t *testing.T) {
	r := New[int]("action")
	log := &callLog{}
	boom := errors.New("boom")

	r.Register("A", log.handler("first"))
	r.RegisterFunc("A", func(context.Context, int) error { return boom })
	r.RegisterFunc("A", func(context.Context, int) error { panic("kaput") })
	r.Register("A", log.handler("last"))

	var res Result
	require.NotPanics(t, func() {
		res = r.Dispatch(context.Background(), "A", 1)
	})

	assert.Equal(t, []string{"first", "last"}, log.names())
	assert.Equal(t, 4, res.Invoked)
	require.Len(t, res.Failures, 2)

	assert.Equal(t, 1, res.Failures[0].Index)
	assert.ErrorIs(t, res.Failures[0], boom)

	assert.Equal(t, 2, res.Failures[1].Index)
	var pe *PanicError
	require.True(t, errors.As(res.Failures[1], &pe))
	assert.Equal(t, "kaput", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	err := res.Err()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `action handler #2 for "A": handler panic: kaput`)

	// The registry is still usable after a panic.
	r.Dispatch(context.Background(), "A", 2)
	assert.Equal(t, []string{"first", "last", "first", "last"}, log.names())
}

func TestRegistry_ReentrantRegister(t *testing.T) {
	r := New[int]("action")
	log := &callLog{}

	r.RegisterFunc("A", func(context.Context, int) error {
		r.Register("A", log.handler("added"))
		return nil
	})

	res := r.Dispatch(context.Background(), "A", 1)
	assert.Equal(t, 1, res.Invoked, "entries added during dispatch must not run in the same dispatch")
	assert.Empty(t, log.names())
	assert.Equal(t, 2, r.Len())

	res = r.Dispatch(context.Background(), "A", 2)
	assert.Equal(t, 2, res.Invoked)
	assert.Equal(t, []string{"added"}, log.names())
}

func TestRegistry_ConcurrentRegisterAndDispatch(t *testing.T) {
	r := New[int]("action")
	var mu sync.Mutex
	count := 0
	r.RegisterFunc("A", func(context.Context, int) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.RegisterFunc(fmt.Sprintf("k%d", i), func(context.Context, int) error { return nil })
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Dispatch(context.Background(), "A", j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1+8*50, r.Len())
	assert.Equal(t, 8*50, count)
}

func TestRegistry_Keys(t *testing.T) {
	r := New[string]("message")
	noop := func(context.Context, string) error { return nil }
	r.RegisterFunc("log", noop)
	r.RegisterFunc("error", noop)
	r.RegisterFunc("log", noop)

	assert.Equal(t, []string{"log", "error"}, r.Keys())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, "message", r.Name())
}

func TestRegistry_NilHandlerPanics(t *testing.T) {
	r := New[int]("action")
	assert.Panics(t, func() { r.Register("A", nil) })
	assert.Panics(t, func() { r.RegisterFunc("A", nil) })
	assert.Zero(t, r.Len())
}

func TestRegistry_PassesContext(t *testing.T) {
	type ctxKey struct{}
	r := New[int]("action")
	var got any
	r.RegisterFunc("A", func(ctx context.Context, _ int) error {
		got = ctx.Value(ctxKey{})
		return nil
	})

	r.Dispatch(context.WithValue(context.Background(), ctxKey{}, "v"), "A", 0)
	assert.Equal(t, "v", got)
}
