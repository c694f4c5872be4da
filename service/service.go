/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
)

// Opts represents options for Service.
type Opts struct {
	// ShutdownSignals are the OS signals that trigger a graceful stop of the unit.
	ShutdownSignals []os.Signal
}

// Service runs a single Unit (use CompositeUnit to run several) for the lifetime
// of the process: it registers the unit's metrics, starts the unit in a separate
// goroutine, and stops it gracefully on an OS signal.
type Service struct {
	Unit    Unit
	Signals chan os.Signal
	Logger  log.FieldLogger
	Opts    Opts
}

// New creates a new Service that will start and stop the passed unit.
// SIGINT and SIGTERM trigger a graceful shutdown.
func New(logger log.FieldLogger, unit Unit) *Service {
	opts := Opts{ShutdownSignals: []os.Signal{syscall.SIGINT, syscall.SIGTERM}}
	return NewWithOpts(logger, unit, opts)
}

// NewWithOpts is a version of New that accepts options.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	return &Service{
		Unit:    unit,
		Signals: make(chan os.Signal, 1),
		Logger:  logger,
		Opts:    opts,
	}
}

// Start calls StartContext with the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext starts the service unit in a separate goroutine and blocks until
// a fatal error occurs, the context is canceled, or a shutdown signal is received.
func (s *Service) StartContext(ctx context.Context) error {
	if registerer, ok := s.Unit.(MetricsRegisterer); ok {
		registerer.MustRegisterMetrics()
		defer registerer.UnregisterMetrics()
	}

	fatalErr := make(chan error, 1)
	go s.Unit.Start(fatalErr)

	signal.Notify(s.Signals, s.Opts.ShutdownSignals...)

	select {
	case <-ctx.Done():
		s.Logger.Info("context is done, stopping service")
	case err := <-fatalErr:
		s.Logger.Error("fatal error in unit", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	case sig := <-s.Signals:
		s.Logger.Info("shutdown signal received, stopping service", log.String("signal", sig.String()))
	}

	if err := s.Unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	return nil
}
