/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides a toolkit for building http.Client for calling external APIs.
// The client transport is assembled from composable round trippers:
// logging, metrics, client-side rate limiting, queue-based throttling,
// User-Agent and X-Request-ID headers, and retries with backoff.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gitboycryptogeek/tassiac-sub000/internal/libinfo"
	"github.com/gitboycryptogeek/tassiac-sub000/log"
	"github.com/gitboycryptogeek/tassiac-sub000/throttlequeue"
)

// New builds an http.Client from the configuration using default options.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// Must is like New but panics on error.
func Must(cfg *Config) *http.Client {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Opts holds optional parameters for NewWithOpts and MustWithOpts.
type Opts struct {
	// UserAgent is a user agent string. If empty, the library name and version are used.
	UserAgent string

	// RequestType is a type of request, e.g. a target service ("bank-api") or an action ("payment-status").
	// It's used as a label in logs and metrics.
	RequestType string

	// Delegate is the transport the chain is built around. http.DefaultTransport clone is used if not set.
	Delegate http.RoundTripper

	// Logger is used for logging. LoggerProvider takes priority when both are set.
	Logger log.FieldLogger

	// LoggerProvider is a function that returns a logger for the request context.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID for the X-Request-ID header.
	RequestIDProvider func(ctx context.Context) string

	// Collector is a metrics collector for outgoing requests.
	Collector MetricsCollector

	// QueueMetricsProvider returns a metrics collector for the throttle zone's queue.
	// Typically it curries a shared throttlequeue.PrometheusMetrics with the zone name.
	QueueMetricsProvider func(zone string) throttlequeue.MetricsCollector
}

// NewWithOpts creates a new http.Client with the transport chain built from the configuration and options.
// The chain, from the innermost round tripper to the outermost one, is:
// logging, metrics, rate limiting, throttling, user agent, request ID, retries.
// Each retry attempt therefore passes the throttle queue and the rate limiter again.
//
// When throttling is enabled, the zone queues own background goroutines that live
// as long as the process. If the client needs to be torn down, build the
// ThrottlingRoundTripper directly and call its Close method.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	var err error
	rt := opts.Delegate

	if rt == nil {
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Logger.Enabled {
		lopts := cfg.Logger.TransportOpts()
		lopts.Logger = opts.Logger
		lopts.LoggerProvider = opts.LoggerProvider
		rt = NewLoggingRoundTripperWithOpts(rt, opts.RequestType, lopts)
	}

	if cfg.Metrics.Enabled {
		rt = NewMetricsRoundTripperWithOpts(rt, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.Collector,
		})
	}

	if cfg.RateLimits.Enabled {
		rt, err = NewRateLimitingRoundTripperWithOpts(rt, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts())
		if err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if cfg.Throttling.Enabled {
		rt, err = NewThrottlingRoundTripperWithOpts(rt, &cfg.Throttling, ThrottlingRoundTripperOpts{
			Logger:               opts.Logger,
			QueueMetricsProvider: opts.QueueMetricsProvider,
		})
		if err != nil {
			return nil, fmt.Errorf("create throttling round tripper: %w", err)
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = libinfo.UserAgent()
	}
	rt = NewUserAgentRoundTripper(rt, userAgent)

	rt = NewRequestIDRoundTripperWithOpts(rt, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	if cfg.Retries.Enabled {
		ropts := cfg.Retries.TransportOpts()
		ropts.Logger = opts.Logger
		ropts.LoggerProvider = opts.LoggerProvider
		ropts.BackoffPolicy = cfg.Retries.GetPolicy()
		rt, err = NewRetryableRoundTripperWithOpts(rt, ropts)
		if err != nil {
			return nil, fmt.Errorf("create retryable round tripper: %w", err)
		}
	}

	return &http.Client{Transport: rt, Timeout: time.Duration(cfg.Timeout)}, nil
}

// MustWithOpts is like NewWithOpts but panics on error.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	c, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return c
}
