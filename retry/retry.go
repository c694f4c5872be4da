/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry implements caller-side retries with configurable backoff policies.
// It composes with the throttle queue: the queue itself never retries,
// and rejection errors that estimate when the next attempt may be admitted
// make DoWithRetry wait at least that long.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable defines a func that can tell if error is retryable as opposed to persistent.
type IsRetryable func(error) bool

// RetryableFunc is function that does some work and can be potentially retried.
type RetryableFunc func(ctx context.Context) error

// RetryAfterProvider is implemented by errors that carry an estimate of when
// a new attempt may succeed (throttlequeue.RateLimitExceededError is one).
// DoWithRetry uses the estimate as a lower bound for the backoff delay.
type RetryAfterProvider interface {
	RetryAfterEstimate() time.Duration
}

// DoWithRetry executes fn with retry according to policy p and with respect to context ctx.
// IsRetryable defines which errors lead to retry attempt (can be nil for any error).
// Notify can be used to receive notification on every retry with error and backoff delay
// (can be nil if no notifications required).
// When the attempt error provides a retry-after estimate longer than the delay
// the policy computed, the estimate wins.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	b := &retryAfterBackOff{next: p.NewBackOff()}
	bctx := backoff.WithContext(b, ctx)
	var op backoff.Operation = func() error {
		err := fn(bctx.Context())
		if err != nil &&
			(isRetryable != nil && !isRetryable(err)) {
			return backoff.Permanent(err)
		}
		b.lastErr = err
		return err
	}
	return backoff.RetryNotify(op, bctx, notify)
}

// retryAfterBackOff floors the wrapped backoff's delay with the retry-after
// estimate of the last attempt error.
type retryAfterBackOff struct {
	next    backoff.BackOff
	lastErr error
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.next.NextBackOff()
	if d == backoff.Stop {
		return backoff.Stop
	}
	var provider RetryAfterProvider
	if errors.As(b.lastErr, &provider) {
		if est := provider.RetryAfterEstimate(); est > d {
			return est
		}
	}
	return d
}

func (b *retryAfterBackOff) Reset() {
	b.next.Reset()
}
