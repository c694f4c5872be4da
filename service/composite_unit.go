/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

// CompositeUnit bundles several units into one,
// for example an operational HTTP server plus background dispatch workers.
type CompositeUnit struct {
	Units []Unit
}

// NewCompositeUnit bundles the given units.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start launches all units concurrently, each in its own goroutine,
// and blocks until all Start invocations return.
//
// If any unit reports a fatal error, the remaining units are stopped
// (non-gracefully) and a single CompositeUnitError carrying the unit errors,
// possibly together with errors from stopping, is sent to the provided channel.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	errChans := make([]chan error, len(cu.Units))
	for i := range errChans {
		errChans[i] = make(chan error, 1)
	}

	stopped := make(chan bool, len(cu.Units)) // true when the last unit stopped cleanly
	running := int32(len(cu.Units))           //nolint:gosec // unit count is reasonable
	for i := range cu.Units {
		go func(u Unit, unitErr chan error) {
			u.Start(unitErr)
			if len(unitErr) != 0 {
				stopped <- false
				return
			}
			if atomic.AddInt32(&running, -1) == 0 {
				stopped <- true
			}
		}(cu.Units[i], errChans[i])
	}

	if <-stopped {
		return
	}

	stopErr := cu.Stop(false)

	var errs []error
	for _, unitErr := range errChans {
		select {
		case err := <-unitErr:
			errs = append(errs, err)
		default:
		}
	}
	var stopUnitErrs *CompositeUnitError
	if errors.As(stopErr, &stopUnitErrs) {
		errs = append(errs, stopUnitErrs.UnitErrors...)
	}
	if len(errs) > 0 {
		fatalError <- &CompositeUnitError{UnitErrors: errs}
	}
}

// Stop stops all units, each in its own goroutine.
// Errors that occurred while stopping are collected into a single CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	errCh := make(chan error, len(cu.Units))

	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for _, unit := range cu.Units {
		go func(u Unit) {
			defer wg.Done()
			errCh <- u.Stop(gracefully)
		}(unit)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &CompositeUnitError{UnitErrors: errs}
	}
	return nil
}

// MustRegisterMetrics registers metrics of all units implementing MetricsRegisterer
// and panics if any error occurs.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, unit := range cu.Units {
		if reg, ok := unit.(MetricsRegisterer); ok {
			reg.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of all units implementing MetricsRegisterer.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, unit := range cu.Units {
		if reg, ok := unit.(MetricsRegisterer); ok {
			reg.UnregisterMetrics()
		}
	}
}

// CompositeUnitError is an error that may occur in CompositeUnit's methods.
type CompositeUnitError struct {
	UnitErrors []error
}

// Error joins the messages of all unit errors into one string.
func (cue *CompositeUnitError) Error() string {
	parts := make([]string, 0, len(cue.UnitErrors))
	for _, unitErr := range cue.UnitErrors {
		parts = append(parts, unitErr.Error())
	}
	return strings.Join(parts, "; ")
}
