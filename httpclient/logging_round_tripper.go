/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
)

// LoggingMode represents a mode of logging outgoing requests.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// DefaultLoggingMode is used when the mode is not specified in the configuration.
const DefaultLoggingMode = LoggingModeFailed

var availableLoggingModes = []string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}

// IsValid checks if the logging mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper implements http.RoundTripper interface and logs outgoing requests.
type LoggingRoundTripper struct {
	// Delegate is the transport the request is handed to next.
	Delegate http.RoundTripper

	// ReqType is a type of request, e.g. a target service ("bank-api") or an action ("payment-status").
	ReqType string

	// Opts holds the logging options.
	Opts LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// Logger is used for logging. LoggerProvider takes priority when both are set.
	Logger log.FieldLogger

	// LoggerProvider is a function that returns a logger for the request context.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode of logging: none, all, failed. Unknown mode behaves like "all".
	Mode LoggingMode

	// SlowRequestThreshold is the minimum request duration to be logged. Zero logs every request.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that logs outgoing requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, reqType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, reqType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that logs outgoing requests with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, reqType string, opts LoggingRoundTripperOpts,
) http.RoundTripper {
	return &LoggingRoundTripper{Delegate: delegate, ReqType: reqType, Opts: opts}
}

func (rt *LoggingRoundTripper) loggerFor(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		return rt.Opts.LoggerProvider(ctx)
	}
	return rt.Opts.Logger
}

// RoundTrip executes a single HTTP transaction and logs its duration and result.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	logger := rt.loggerFor(r.Context())
	if logger == nil || elapsed < rt.Opts.SlowRequestThreshold {
		return resp, err
	}

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	if rt.Opts.Mode == LoggingModeFailed && err == nil && statusCode < http.StatusBadRequest {
		return resp, err
	}

	logFn := logger.Infof
	if err != nil {
		logFn = logger.Errorf
	}
	logFn("client http request %s %s req type %s status code %d, time taken %.3f, err %+v",
		r.Method, r.URL.String(), rt.ReqType, statusCode, elapsed.Seconds(), err)

	return resp, err
}
