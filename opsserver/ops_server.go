/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package opsserver provides an auxiliary HTTP server exposing operational
// endpoints: health checks, Prometheus metrics, and pprof profiling.
package opsserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
	"github.com/gitboycryptogeek/tassiac-sub000/service"
)

// OpsServer represents an HTTP server for operational needs: liveness checks,
// metrics scraping, and profiling. It implements the service.Unit interface.
type OpsServer struct {
	URL            string
	HTTPServer     *http.Server
	httpServerDone chan struct{}
	Logger         log.FieldLogger
}

var _ service.Unit = (*OpsServer)(nil)

// Opts holds optional parameters for the operational server.
type Opts struct {
	// HealthCheck is called on every request to the health endpoint.
	// If nil, the endpoint always reports success with no components.
	HealthCheck HealthCheck

	// MetricsGatherer is used for serving the metrics endpoint.
	// prometheus.DefaultGatherer is used if not specified.
	MetricsGatherer prometheus.Gatherer
}

// New creates a new operational HTTP server.
func New(cfg *Config, logger log.FieldLogger) *OpsServer {
	return NewWithOpts(cfg, logger, Opts{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(cfg *Config, logger log.FieldLogger, opts Opts) *OpsServer {
	gatherer := opts.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := chi.NewRouter()
	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck, logger))
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Mount("/debug", chimiddleware.Profiler())

	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: time.Second * 5,
	}

	return &OpsServer{
		URL:            "http://" + httpServer.Addr,
		HTTPServer:     httpServer,
		httpServerDone: make(chan struct{}),
		Logger:         logger,
	}
}

// Start starts the operational HTTP server in a blocking way.
// Supposed this method will be called in a separate goroutine.
// If a fatal error occurs, it's sent into the passed fatalError channel and should be processed outside.
func (s *OpsServer) Start(fatalError chan<- error) {
	defer close(s.httpServerDone)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))

	logger.Info("starting operational HTTP server...")
	if err := s.HTTPServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("operational HTTP server closed")
			return
		}
		logger.Error("operational HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
}

// Stop stops the operational HTTP server. In-flight requests are not awaited.
func (s *OpsServer) Stop(gracefully bool) error {
	s.Logger.Info("closing operational HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("operational HTTP server closing error", log.Error(err))
		return err
	}
	<-s.httpServerDone // Wait closing of listener.
	return nil
}
