/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy builds backoff strategies for retrying.
// A fresh backoff.BackOff is built for every retried call,
// so a single Policy value may be shared between callers.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// The PolicyFunc type is an adapter to allow the use of ordinary functions as retry.Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements retry.Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ExponentialBackoffPolicy retries with exponentially growing delays.
type ExponentialBackoffPolicy struct {
	// InitialInterval is the delay before the first retry.
	// If 0, the backoff default (500ms) is used.
	InitialInterval time.Duration

	// Multiplier is the factor by which the delay grows on every attempt.
	// If 0, the backoff default (1.5) is used.
	Multiplier float64

	// MaxRetryAttempts limits the number of retries. 0 means no limit.
	MaxRetryAttempts int
}

// NewExponentialBackoffPolicy returns an exponential backoff policy
// with the given initial interval and max retry attempt count.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{InitialInterval: initialInterval, MaxRetryAttempts: maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.Multiplier > 0 {
		eb.Multiplier = p.Multiplier
	}
	var bf backoff.BackOff = eb
	if p.MaxRetryAttempts > 0 {
		bf = backoff.WithMaxRetries(eb, uint64(p.MaxRetryAttempts))
	}
	bf.Reset()
	return bf
}

// ConstantBackoffPolicy retries with a constant delay between attempts.
type ConstantBackoffPolicy struct {
	// Interval is the delay between attempts.
	Interval time.Duration

	// MaxRetryAttempts limits the number of retries. 0 means no limit.
	MaxRetryAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy
// with the given interval and max retry attempt count.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{Interval: interval, MaxRetryAttempts: maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	var bf backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	if p.MaxRetryAttempts > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(p.MaxRetryAttempts))
	}
	bf.Reset()
	return bf
}
