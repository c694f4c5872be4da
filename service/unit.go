/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

// Unit is a single component of a long-running process with its own lifecycle,
// for example an operational HTTP server or a background dispatch worker.
type Unit interface {
	// Start begins the unit's operation.
	//
	// An implementation may initialize and return immediately, or block the calling
	// goroutine for the whole lifetime of the unit. If a fatal error occurs, it is sent
	// to the provided channel; nothing is written on the happy path, and the channel
	// must not be used after Start has returned.
	Start(fatalErr chan<- error)

	// Stop halts the unit.
	//
	// If gracefully is true, the unit should attempt a clean shutdown, finishing the
	// work it has already accepted. Stop may be called even if Start has failed or
	// was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that register their own metrics.
// Service calls it around the unit's lifecycle.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
