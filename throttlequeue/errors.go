/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"fmt"
	"time"
)

// RateLimitExceededError is returned by Enqueue when accepting one more request
// would exceed the admission limit of the current rate window.
// The rejected request is not counted against any window.
type RateLimitExceededError struct {
	// EstimatedRetryAfter is an estimate of how long the caller should wait
	// before enqueueing again. For the fixed-window algorithm the window is
	// reset by a periodic background check, so the actual reset may happen
	// up to WindowResetInterval later than estimated.
	EstimatedRetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitExceededError) Error() string {
	if e.EstimatedRetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %s", e.EstimatedRetryAfter)
	}
	return "rate limit exceeded"
}

// RetryAfterEstimate returns the estimated wait before a new attempt may be admitted.
// It implements the retry package's RetryAfterProvider,
// so DoWithRetry backs off at least this long after the rejection.
func (e *RateLimitExceededError) RetryAfterEstimate() time.Duration {
	return e.EstimatedRetryAfter
}

// QueueClosedError is returned by Enqueue when the queue is closed.
// It also settles results of requests that were admitted but not yet
// dispatched at the moment Close was called.
type QueueClosedError struct{}

// Error implements the error interface.
func (e *QueueClosedError) Error() string {
	return "queue is closed"
}

// QueueFullError is returned by Enqueue when MaxPending is configured
// and the number of requests waiting for dispatch has reached it.
type QueueFullError struct {
	PendingLimit int
}

// Error implements the error interface.
func (e *QueueFullError) Error() string {
	return fmt.Sprintf("queue is full, %d requests are pending", e.PendingLimit)
}

// PanicError settles the result of a request function that panicked.
// The queue recovers such panics and keeps dispatching.
type PanicError struct {
	// Value is the value the request function panicked with.
	Value interface{}

	// Stack is the stack trace of the panicking goroutine.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("request function panicked: %v", e.Value)
}
