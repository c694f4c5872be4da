/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
)

// ErrPeriodicWorkerStop may be returned by the underlying worker to interrupt PeriodicWorker's loop.
var ErrPeriodicWorkerStop = errors.New("periodic worker stop requested")

// Worker performs some (usually long-running) work, for example periodic cache cleanup
// or queue maintenance.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter that turns an ordinary function into a Worker.
type WorkerFunc func(ctx context.Context) error

// Run calls f. It implements the Worker interface.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker runs the underlying worker periodically until the context is canceled.
type PeriodicWorker struct {
	worker      Worker
	logger      log.FieldLogger
	startDelay  time.Duration
	interval    time.Duration
	nextDelayFn func(worker Worker, err error) time.Duration
}

// PeriodicWorkerOpts holds optional parameters for PeriodicWorker.
type PeriodicWorkerOpts struct {
	// InitialDelay is the delay before the first run.
	InitialDelay time.Duration

	// IntervalDelayFunc, when not nil, computes the delay before the next run
	// from the last run's error. It overrides the constant interval delay.
	IntervalDelayFunc func(w Worker, lastErr error) time.Duration
}

// NewPeriodicWorker creates a PeriodicWorker that reruns worker every interval.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, interval, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts is a version of NewPeriodicWorker that accepts options.
func NewPeriodicWorkerWithOpts(
	worker Worker, interval time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	return &PeriodicWorker{
		worker:      worker,
		logger:      logger,
		startDelay:  opts.InitialDelay,
		interval:    interval,
		nextDelayFn: opts.IntervalDelayFunc,
	}
}

// Run runs PeriodicWorker loop. A run finishing with error is logged, not propagated;
// the loop stops on context cancellation or ErrPeriodicWorkerStop.
func (w *PeriodicWorker) Run(ctx context.Context) (resErr error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(fmt.Sprintf("panic: %+v", r), log.Bytes("stack", dumpStack()))
			panic(r)
		}
		if resErr != nil {
			w.logger.Error("periodic worker exited with error", log.Error(resErr))
			return
		}
		w.logger.Info("periodic worker stopped")
	}()

	w.logger.Infof("starting periodic worker, initial delay %s, interval %s", w.startDelay, w.interval)

	timer := time.NewTimer(w.startDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		err := w.worker.Run(ctx)
		if err != nil {
			if errors.Is(err, ErrPeriodicWorkerStop) {
				return nil
			}
			w.logger.Error("periodic worker run failed", log.Error(err))
		}

		nextDelay := w.interval
		if w.nextDelayFn != nil {
			nextDelay = w.nextDelayFn(w.worker, err)
		}

		// The timer has fired and its channel is drained at this point, Reset is safe.
		timer.Reset(nextDelay)
	}
}

func dumpStack() []byte {
	stack := make([]byte, 8192)
	return stack[:runtime.Stack(stack, false)]
}
