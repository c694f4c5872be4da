/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"time"
)

// ErrWorkerUnitStopTimeoutExceeded is an error that occurs when WorkerUnit's graceful stop timeout is exceeded.
var ErrWorkerUnitStopTimeoutExceeded = errors.New("worker unit graceful stop timed out")

// WorkerUnit presents a Worker as a Unit: Start runs the worker,
// Stop cancels its context and (gracefully) waits for Run to return.
type WorkerUnit struct {
	worker          Worker
	runCtx          context.Context
	runCtxCancel    context.CancelFunc
	runDone         chan struct{}
	gracefulTimeout time.Duration
	metrics         MetricsRegisterer
}

// WorkerUnitOpts contains optional parameters for constructing WorkerUnit.
type WorkerUnitOpts struct {
	MetricsRegisterer   MetricsRegisterer
	GracefulStopTimeout time.Duration
}

// NewWorkerUnit wraps the worker into a Unit using default options.
func NewWorkerUnit(worker Worker) *WorkerUnit {
	return NewWorkerUnitWithOpts(worker, WorkerUnitOpts{})
}

// NewWorkerUnitWithOpts is a version of NewWorkerUnit that accepts options.
func NewWorkerUnitWithOpts(worker Worker, opts WorkerUnitOpts) *WorkerUnit {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerUnit{
		worker:          worker,
		runCtx:          ctx,
		runCtxCancel:    cancel,
		runDone:         make(chan struct{}, 1),
		gracefulTimeout: opts.GracefulStopTimeout,
		metrics:         opts.MetricsRegisterer,
	}
}

// Start runs the underlying Worker and blocks until its Run method returns.
func (u *WorkerUnit) Start(fatalError chan<- error) {
	if err := u.worker.Run(u.runCtx); err != nil {
		fatalError <- err
	}
	u.runDone <- struct{}{}
}

// Stop cancels the worker's context.
// When graceful stop is requested, it waits for the current run to finish,
// but no longer than the configured graceful stop timeout.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.runCtxCancel()
	if !gracefully {
		return nil
	}
	if u.gracefulTimeout == 0 {
		<-u.runDone
		return nil
	}
	select {
	case <-u.runDone:
		return nil
	case <-time.After(u.gracefulTimeout):
		return ErrWorkerUnitStopTimeoutExceeded
	}
}

// MustRegisterMetrics registers the metrics of the wrapped worker, if any were provided.
func (u *WorkerUnit) MustRegisterMetrics() {
	if u.metrics != nil {
		u.metrics.MustRegisterMetrics()
	}
}

// UnregisterMetrics removes the metrics of the wrapped worker.
func (u *WorkerUnit) UnregisterMetrics() {
	if u.metrics != nil {
		u.metrics.UnregisterMetrics()
	}
}
