/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"context"
	"sync"
)

// Result is a future holding the outcome of an enqueued request function.
// It is settled exactly once: with the function's own return values,
// with *PanicError if the function panicked,
// or with *QueueClosedError if the queue was closed before dispatch.
type Result[T any] struct {
	settleOnce sync.Once
	done       chan struct{}
	value      T
	err        error
}

func newResult[T any]() *Result[T] {
	return &Result[T]{done: make(chan struct{})}
}

func (r *Result[T]) settle(value T, err error) {
	r.settleOnce.Do(func() {
		r.value = value
		r.err = err
		close(r.done)
	})
}

// Done returns a channel that is closed when the result is settled.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the result is settled or ctx is done.
// Abandoning Wait does not cancel the request:
// the function keeps running and the result is settled as usual.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Value returns the settled outcome.
// Like ctx.Err after ctx.Done, it is meaningful only after the channel
// returned by Done is closed; before that it returns zero values.
func (r *Result[T]) Value() (T, error) {
	select {
	case <-r.done:
		return r.value, r.err
	default:
		var zero T
		return zero, nil
	}
}
