/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
)

// EnqueueFunc is a request function executed by the queue.
// The queue passes a background context and never cancels it,
// so a function that hangs forever occupies one of MaxConcurrent slots forever.
// Callers that need a deadline should build it into the function itself.
type EnqueueFunc[T any] func(ctx context.Context) (T, error)

type queueItem[T any] struct {
	fn         EnqueueFunc[T]
	res        *Result[T]
	enqueuedAt time.Time
}

// Queue schedules the execution of request functions against a rate-limited API.
// Admissions are bounded per rate window, running functions are bounded by MaxConcurrent,
// admitted requests are dispatched in FIFO order,
// and a randomized pause after each settlement spreads the outgoing load.
//
// The queue never retries and never cancels a running function.
// Every admitted request settles its Result exactly once.
type Queue[T any] struct {
	maxConcurrent int
	baseDelay     time.Duration
	maxJitter     time.Duration
	maxPending    int

	logger  log.FieldLogger
	metrics MetricsCollector

	mu          sync.Mutex
	adm         admission
	pending     []*queueItem[T]
	dispatching bool
	closed      bool

	slots   chan struct{}
	settled chan struct{}
	closeCh chan struct{}

	rnd *rand.Rand

	wg sync.WaitGroup
}

// Opts contains optional parameters for Queue.
type Opts struct {
	// Logger is used for logging dispatch events. Logging is disabled if not set.
	Logger log.FieldLogger

	// MetricsCollector is used for collecting queue metrics.
	// Metrics collection is disabled if not set.
	MetricsCollector MetricsCollector
}

// New creates a new Queue with the provided configuration.
// The queue owns a background goroutine that resets the rate window;
// call Close to release it.
func New[T any](cfg *Config) (*Queue[T], error) {
	return NewWithOpts[T](cfg, Opts{})
}

// NewWithOpts is a version of New with an ability to specify optional parameters.
func NewWithOpts[T any](cfg *Config, opts Opts) (*Queue[T], error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	rateLimit := cfg.RateLimit
	if rateLimit == 0 {
		rateLimit = DefaultRateLimit
	}
	rateWindow := time.Duration(cfg.RateWindow)
	if rateWindow == 0 {
		rateWindow = DefaultRateWindow
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	resetInterval := time.Duration(cfg.WindowResetInterval)
	if resetInterval == 0 {
		resetInterval = DefaultWindowResetInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	metrics := opts.MetricsCollector
	if metrics == nil {
		metrics = disabledMetrics{}
	}

	adm, err := newAdmission(cfg.Admission, rateLimit, rateWindow, time.Now())
	if err != nil {
		return nil, err
	}

	q := &Queue[T]{
		maxConcurrent: maxConcurrent,
		baseDelay:     time.Duration(cfg.DispatchBaseDelay),
		maxJitter:     time.Duration(cfg.DispatchMaxJitter),
		maxPending:    cfg.MaxPending,
		logger:        logger,
		metrics:       metrics,
		adm:           adm,
		slots:         make(chan struct{}, maxConcurrent),
		settled:       make(chan struct{}, 1),
		closeCh:       make(chan struct{}),
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	q.wg.Add(1)
	go q.maintainWindow(resetInterval)

	return q, nil
}

// Must is a version of New that panics on error.
func Must[T any](cfg *Config) *Queue[T] {
	q, err := New[T](cfg)
	if err != nil {
		panic(err)
	}
	return q
}

// MustWithOpts is a version of NewWithOpts that panics on error.
func MustWithOpts[T any](cfg *Config, opts Opts) *Queue[T] {
	q, err := NewWithOpts[T](cfg, opts)
	if err != nil {
		panic(err)
	}
	return q
}

// Enqueue admits fn into the queue and returns a future for its outcome.
// The admission decision is made synchronously:
// a closed queue yields *QueueClosedError, a full queue *QueueFullError,
// and an exhausted rate window *RateLimitExceededError.
// Rejected requests are never executed and are not counted against any window.
func (q *Queue[T]) Enqueue(fn EnqueueFunc[T]) (*Result[T], error) {
	now := time.Now()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.metrics.IncEnqueuedTotal(EnqueueResultRejectedClosed)
		return nil, &QueueClosedError{}
	}
	if q.maxPending > 0 && len(q.pending) >= q.maxPending {
		q.mu.Unlock()
		q.metrics.IncEnqueuedTotal(EnqueueResultRejectedQueueFull)
		return nil, &QueueFullError{PendingLimit: q.maxPending}
	}
	ok, retryAfter, err := q.adm.allow(now)
	if err != nil {
		q.mu.Unlock()
		return nil, fmt.Errorf("admit request: %w", err)
	}
	if !ok {
		q.mu.Unlock()
		q.metrics.IncEnqueuedTotal(EnqueueResultRejectedRateLimit)
		return nil, &RateLimitExceededError{EstimatedRetryAfter: retryAfter}
	}

	it := &queueItem[T]{fn: fn, res: newResult[T](), enqueuedAt: now}
	q.pending = append(q.pending, it)
	pendingCount := len(q.pending)
	startLoop := !q.dispatching
	if startLoop {
		q.dispatching = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	q.metrics.IncEnqueuedTotal(EnqueueResultAccepted)
	q.metrics.SetPendingAmount(pendingCount)

	if startLoop {
		go q.dispatchLoop()
	}
	return it.res, nil
}

// Do enqueues fn and waits for its outcome.
// ctx bounds only the waiting: when it is done before the settlement,
// Do returns ctx.Err() while the request keeps running and settles internally.
func (q *Queue[T]) Do(ctx context.Context, fn EnqueueFunc[T]) (T, error) {
	res, err := q.Enqueue(fn)
	if err != nil {
		var zero T
		return zero, err
	}
	return res.Wait(ctx)
}

// PendingCount returns the number of admitted requests waiting for dispatch.
func (q *Queue[T]) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlightCount returns the number of request functions currently running.
func (q *Queue[T]) InFlightCount() int {
	return len(q.slots)
}

// Close stops the queue. It is idempotent.
// Subsequent Enqueue calls fail with *QueueClosedError,
// admitted requests that were not dispatched yet settle with *QueueClosedError,
// and the background goroutines are released.
// Running request functions are not cancelled and Close does not wait for them;
// their results settle as usual.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeCh)
	aborted := q.pending
	q.pending = nil
	q.mu.Unlock()

	var zero T
	for _, it := range aborted {
		it.res.settle(zero, &QueueClosedError{})
	}
	if len(aborted) != 0 {
		q.logger.Debug("throttle queue closed, pending requests aborted", log.Int("aborted", len(aborted)))
	}
	q.metrics.SetPendingAmount(0)

	q.wg.Wait()
	return nil
}

// maintainWindow periodically advances the admission window.
// It runs for the whole queue lifetime regardless of request activity.
func (q *Queue[T]) maintainWindow(interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.closeCh:
			return
		case <-ticker.C:
			q.mu.Lock()
			reset := q.adm.maintain(time.Now())
			q.mu.Unlock()
			if reset {
				q.logger.Debug("rate window reset")
			}
		}
	}
}

// dispatchLoop is the single goroutine that moves requests from the pending
// queue into execution. It exits when the queue is empty or closed, clearing
// the dispatching flag under the mutex so that the next Enqueue can start it again.
func (q *Queue[T]) dispatchLoop() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.dispatching = false
			q.mu.Unlock()
			return
		}
		take := q.maxConcurrent - len(q.slots)
		if take > len(q.pending) {
			take = len(q.pending)
		}
		batch := q.pending[:take:take]
		q.pending = q.pending[take:]
		pendingCount := len(q.pending)
		q.mu.Unlock()

		now := time.Now()
		for _, it := range batch {
			q.slots <- struct{}{}
			q.metrics.ObserveWaitDuration(now.Sub(it.enqueuedAt))
			go q.run(it)
		}
		if len(batch) != 0 {
			q.metrics.SetPendingAmount(pendingCount)
			q.metrics.SetInFlightAmount(len(q.slots))
		}

		// Wake up on the next settlement, pause, then dispatch more.
		select {
		case <-q.settled:
		case <-q.closeCh:
			continue
		}

		delay := q.baseDelay
		if q.maxJitter > 0 {
			delay += time.Duration(q.rnd.Int63n(int64(q.maxJitter)))
		}
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-q.closeCh:
				t.Stop()
			}
		}
	}
}

func (q *Queue[T]) run(it *queueItem[T]) {
	startedAt := time.Now()
	panicked := true
	defer func() {
		if panicked {
			p := recover()
			const stackSize = 8192
			stack := make([]byte, stackSize)
			stack = stack[:runtime.Stack(stack, false)]
			q.logger.Error(fmt.Sprintf("request function panic: %+v", p), log.Bytes("stack", stack))
			var zero T
			it.res.settle(zero, &PanicError{Value: p, Stack: stack})
			q.metrics.ObserveRequestDuration(RequestStatusPanic, time.Since(startedAt))
		}
		<-q.slots
		q.metrics.SetInFlightAmount(len(q.slots))
		select {
		case q.settled <- struct{}{}:
		default:
		}
	}()

	value, err := it.fn(context.Background())
	panicked = false
	status := RequestStatusOK
	if err != nil {
		status = RequestStatusError
	}
	q.metrics.ObserveRequestDuration(status, time.Since(startedAt))
	it.res.settle(value, err)
}
