/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// Admission algorithms.
const (
	AdmissionAlgFixedWindow   = "fixed_window"
	AdmissionAlgSlidingWindow = "sliding_window"
	AdmissionAlgLeakyBucket   = "leaky_bucket"
)

// admission decides synchronously whether one more request fits into
// the current rate window.
// Both methods are called with the queue mutex held.
type admission interface {
	// allow reports whether one more request may be admitted, counting it
	// if so. On rejection, retryAfter estimates how long to wait before
	// trying again.
	allow(now time.Time) (ok bool, retryAfter time.Duration, err error)

	// maintain advances time-based state.
	// The queue calls it periodically from its background goroutine.
	// It reports whether the rate window was reset.
	maintain(now time.Time) bool
}

func newAdmission(alg string, limit int, window time.Duration, now time.Time) (admission, error) {
	switch alg {
	case AdmissionAlgFixedWindow, "":
		return newFixedWindowAdmission(limit, window, now), nil
	case AdmissionAlgSlidingWindow:
		return newSlidingWindowAdmission(limit, window), nil
	case AdmissionAlgLeakyBucket:
		return newLeakyBucketAdmission(limit, window)
	}
	return nil, fmt.Errorf("unknown admission algorithm %q", alg)
}

// fixedWindowAdmission counts admissions against a fixed window.
// The counter is zeroed only by maintain, not on admission attempts,
// so the window boundary advances with the poll granularity.
type fixedWindowAdmission struct {
	limit     int
	window    time.Duration
	count     int
	windowEnd time.Time
}

func newFixedWindowAdmission(limit int, window time.Duration, now time.Time) *fixedWindowAdmission {
	return &fixedWindowAdmission{limit: limit, window: window, windowEnd: now.Add(window)}
}

func (a *fixedWindowAdmission) allow(now time.Time) (bool, time.Duration, error) {
	if a.count >= a.limit {
		retryAfter := a.windowEnd.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}
	a.count++
	return true, 0, nil
}

func (a *fixedWindowAdmission) maintain(now time.Time) bool {
	if now.Before(a.windowEnd) {
		return false
	}
	a.count = 0
	a.windowEnd = now.Add(a.window)
	return true
}

// slidingWindowAdmission does sliding window admission accounting.
type slidingWindowAdmission struct {
	lim    *slidingwindow.Limiter
	window time.Duration
}

func newSlidingWindowAdmission(limit int, window time.Duration) *slidingWindowAdmission {
	lim, _ := slidingwindow.NewLimiter(window, int64(limit), func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return slidingwindow.NewLocalWindow()
	})
	return &slidingWindowAdmission{lim: lim, window: window}
}

func (a *slidingWindowAdmission) allow(now time.Time) (bool, time.Duration, error) {
	if a.lim.Allow() {
		return true, 0, nil
	}
	retryAfter := now.Truncate(a.window).Add(a.window).Sub(now)
	return false, retryAfter, nil
}

func (a *slidingWindowAdmission) maintain(time.Time) bool {
	return false
}

// leakyBucketAdmission implements GCRA (Generic Cell Rate Algorithm), a leaky bucket variant.
// More details and a good explanation of this alg: https://brandur.org/rate-limiting#gcra.
type leakyBucketAdmission struct {
	lim *throttled.GCRARateLimiterCtx
}

const leakyBucketKey = "throttlequeue"

func newLeakyBucketAdmission(limit int, window time.Duration) (*leakyBucketAdmission, error) {
	gcraStore, err := memstore.NewCtx(0)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	quota := throttled.RateQuota{
		MaxRate:  throttled.PerDuration(limit, window),
		MaxBurst: limit - 1,
	}
	lim, err := throttled.NewGCRARateLimiterCtx(gcraStore, quota)
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}
	return &leakyBucketAdmission{lim: lim}, nil
}

func (a *leakyBucketAdmission) allow(time.Time) (bool, time.Duration, error) {
	limited, res, err := a.lim.RateLimitCtx(context.Background(), leakyBucketKey, 1)
	if err != nil {
		return false, 0, err
	}
	return !limited, res.RetryAfter, nil
}

func (a *leakyBucketAdmission) maintain(time.Time) bool {
	return false
}
