/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"bytes"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrGoexit is returned to waiters when the goroutine building the shared value calls runtime.Goexit.
var ErrGoexit = errors.New("builder goroutine called runtime.Goexit")

type inflightBuild[V any] struct {
	wg  sync.WaitGroup
	val V
	err error
}

// buildGroup deduplicates concurrent builds of the same cache entry.
// While a build for a key is in flight, callers with the same key wait
// for it and share its result instead of starting their own build.
type buildGroup[K comparable, V any] struct {
	mu       sync.Mutex
	inflight map[K]*inflightBuild[V]
}

func (g *buildGroup[K, V]) Do(key K, buildFn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.inflight == nil {
		g.inflight = make(map[K]*inflightBuild[V])
	}
	if b, ok := g.inflight[key]; ok {
		g.mu.Unlock()
		b.wg.Wait()
		return b.val, b.err
	}
	b := &inflightBuild[V]{}
	b.wg.Add(1)
	g.inflight[key] = b
	g.mu.Unlock()

	return g.runBuild(b, key, buildFn)
}

func (g *buildGroup[K, V]) runBuild(b *inflightBuild[V], key K, buildFn func() (V, error)) (val V, err error) {
	returnedNormally := false
	panicked := false

	// Two defers are needed to tell a panic apart from runtime.Goexit:
	// the recover in the inner defer fires only for panics, while the
	// outer defer runs in both cases.
	defer func() {
		if !returnedNormally && !panicked {
			b.err = ErrGoexit
		}

		b.wg.Done()

		g.mu.Lock()
		delete(g.inflight, key)
		g.mu.Unlock()

		if panicked {
			panic(b.err.(*PanicError).Value) // re-panic on the building goroutine
		}

		val, err = b.val, b.err
	}()

	defer func() {
		if !returnedNormally {
			if v := recover(); v != nil {
				b.err = newPanicError(v)
				panicked = true
			}
		}
	}()
	b.val, b.err = buildFn()
	returnedNormally = true

	return b.val, b.err // overwritten in the outer defer
}

// PanicError carries the value the build function panicked with and the stack trace of the panic.
// Waiters that shared the failed build receive it as the error.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("%v\n\n%s", p.Value, p.Stack)
}

func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(v interface{}) error {
	stack := debug.Stack()

	// The stack starts with "goroutine N [status]:", and by the time the
	// waiters see the error that goroutine is gone or in another state.
	// Drop the misleading line.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &PanicError{Value: v, Stack: stack}
}
