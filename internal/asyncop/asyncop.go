// Package asyncop wraps a single async call with tri-state tracking
// (data, loading, error) and optional success/error side effects.
package asyncop

import (
	"context"
	"fmt"
	"sync"
)

// Func is the call an Operation wraps.
type Func[P, T any] func(ctx context.Context, params P) (T, error)

// State is a snapshot of an operation's tri-state.
type State[T any] struct {
	Data    *T
	Loading bool
	Err     error
}

// Operation tracks at most one result for a wrapped call. Each Execute
// starts its own cycle; completions from an older cycle are discarded
// rather than overwriting newer state.
type Operation[P, T any] struct {
	fn        Func[P, T]
	onSuccess func(T)
	onError   func(error)

	mu      sync.Mutex
	data    *T
	loading bool
	err     error
	gen     uint64
}

// New creates an Operation around fn.
func New[P, T any](fn Func[P, T]) *Operation[P, T] {
	return &Operation[P, T]{fn: fn}
}

// OnSuccess registers a side effect run after a successful, non-stale
// completion. Returns the operation for chaining.
func (o *Operation[P, T]) OnSuccess(fn func(T)) *Operation[P, T] {
	o.onSuccess = fn
	return o
}

// OnError registers a side effect run after a failed, non-stale
// completion. Returns the operation for chaining.
func (o *Operation[P, T]) OnError(fn func(error)) *Operation[P, T] {
	o.onError = fn
	return o
}

// Execute runs the wrapped call: prior data and error are cleared, the
// loading flag is set, and on completion the result or normalized error
// is stored and the matching side effect fires. The error is also
// returned so callers can chain their own handling. A completion that has
// been superseded by a newer Execute or a Reset neither mutates state nor
// fires side effects.
func (o *Operation[P, T]) Execute(ctx context.Context, params P) (T, error) {
	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.data = nil
	o.err = nil
	o.loading = true
	o.mu.Unlock()

	data, err := o.fn(ctx, params)

	o.mu.Lock()
	if o.gen != gen {
		// Stale completion; a newer cycle owns the state now.
		o.mu.Unlock()
		return data, err
	}
	if err != nil {
		err = normalize(err)
		o.err = err
		o.loading = false
		o.mu.Unlock()
		if o.onError != nil {
			o.onError(err)
		}
		return data, err
	}
	o.data = &data
	o.loading = false
	o.mu.Unlock()
	if o.onSuccess != nil {
		o.onSuccess(data)
	}
	return data, nil
}

// Reset returns the state to {no data, not loading, no error}. In-flight
// calls are not cancelled; their completions are discarded.
func (o *Operation[P, T]) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	o.data = nil
	o.err = nil
	o.loading = false
}

// State returns a snapshot of the tri-state.
func (o *Operation[P, T]) State() State[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State[T]{Data: o.data, Loading: o.loading, Err: o.err}
}

func normalize(err error) error {
	if err == nil {
		return nil
	}
	// Keep error values intact; only wrap types that stringify poorly.
	if err.Error() == "" {
		return fmt.Errorf("operation failed: %v", err)
	}
	return err
}
