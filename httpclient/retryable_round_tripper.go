/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
	"github.com/gitboycryptogeek/tassiac-sub000/retry"
	"github.com/gitboycryptogeek/tassiac-sub000/throttlequeue"
)

// Defaults for RetryableRoundTripper options.
const (
	DefaultMaxRetryAttempts                  = 10
	DefaultExponentialBackoffInitialInterval = time.Second
	DefaultExponentialBackoffMultiplier      = 2
)

// UnlimitedRetryAttempts as MaxRetryAttempts means that retries are stopped
// only by the backoff policy.
const UnlimitedRetryAttempts = -1

// RetryAttemptNumberHeader is set on retried requests and carries the attempt number, starting from 1.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// CheckRetryFunc is called after each round trip and reports whether another attempt should be made.
type CheckRetryFunc func(ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int) (bool, error)

// RetryableRoundTripper is an http.RoundTripper that retries failed HTTP requests.
type RetryableRoundTripper struct {
	// Delegate performs the actual HTTP requests.
	Delegate http.RoundTripper

	// Logger is used for logging. LoggerProvider takes priority when both are set.
	Logger log.FieldLogger

	// LoggerProvider is a function that returns a logger for the request context.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// MaxRetryAttempts limits the number of retries.
	// Up to MaxRetryAttempts + 1 requests may be sent in total, the first one is not a retry.
	// UnlimitedRetryAttempts leaves stopping to the BackoffPolicy.
	// DefaultMaxRetryAttempts is used when the value is 0.
	MaxRetryAttempts int

	// CheckRetry decides after each attempt whether the next one is needed.
	// DefaultCheckRetry is used when it's nil.
	CheckRetry CheckRetryFunc

	// IgnoreRetryAfter makes the round tripper disregard the Retry-After HTTP header
	// of the response and the retry-after estimates of local throttling rejections,
	// so that the wait time always comes from BackoffPolicy.
	IgnoreRetryAfter bool

	// BackoffPolicy computes the wait time before the next attempt
	// when no retry-after value is available or IgnoreRetryAfter is set.
	// DefaultBackoffPolicy is used when it's nil.
	BackoffPolicy retry.Policy
}

// RetryableRoundTripperOpts represents options for RetryableRoundTripper.
// The semantics of each field is described in the RetryableRoundTripper docs.
type RetryableRoundTripperOpts struct {
	Logger           log.FieldLogger
	LoggerProvider   func(ctx context.Context) log.FieldLogger
	MaxRetryAttempts int
	CheckRetryFunc   CheckRetryFunc
	IgnoreRetryAfter bool
	BackoffPolicy    retry.Policy
}

// NewRetryableRoundTripper creates a new RetryableRoundTripper with default options.
func NewRetryableRoundTripper(delegate http.RoundTripper) (*RetryableRoundTripper, error) {
	return NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{})
}

// NewRetryableRoundTripperWithOpts creates a new instance of RetryableRoundTripper with specified options.
func NewRetryableRoundTripperWithOpts(
	delegate http.RoundTripper, opts RetryableRoundTripperOpts,
) (*RetryableRoundTripper, error) {
	if opts.MaxRetryAttempts < 0 && opts.MaxRetryAttempts != UnlimitedRetryAttempts {
		return nil, fmt.Errorf("max retry attempts should be >= %d, got %d", UnlimitedRetryAttempts, opts.MaxRetryAttempts)
	}
	if opts.MaxRetryAttempts == 0 {
		opts.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.CheckRetryFunc == nil {
		opts.CheckRetryFunc = DefaultCheckRetry
	}
	if opts.BackoffPolicy == nil {
		opts.BackoffPolicy = DefaultBackoffPolicy
	}
	return &RetryableRoundTripper{
		Delegate:         delegate,
		Logger:           opts.Logger,
		LoggerProvider:   opts.LoggerProvider,
		MaxRetryAttempts: opts.MaxRetryAttempts,
		CheckRetry:       opts.CheckRetryFunc,
		BackoffPolicy:    opts.BackoffPolicy,
		IgnoreRetryAfter: opts.IgnoreRetryAfter,
	}, nil
}

// RoundTrip performs the request with retry logic.
// nolint: gocyclo
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rewindBody := func(r *http.Request) error { return nil }
	if req.Body != nil {
		origBody := req.Body
		defer func() {
			_ = origBody.Close() // RoundTrip must close the body.
		}()

		var err error
		if rewindBody, err = newBodyRewinder(req); err != nil {
			return nil, &RetryableRoundTripperError{Inner: err}
		}
	}

	nextWaitTime := rt.newWaitTimeFunc()
	ctx := req.Context()
	cloned := false

	var resp *http.Response
	var respErr error
	for attempt := 0; ; attempt++ {
		if rewindErr := rewindBody(req); rewindErr != nil {
			if attempt == 0 {
				return nil, &RetryableRoundTripperError{Inner: rewindErr}
			}
			rt.logger(ctx).Error(fmt.Sprintf(
				"failed to rewind request body before the next attempt, %d attempt(s) made", attempt+1),
				log.Error(rewindErr))
			return resp, respErr
		}

		// The body of the previous response has to be read to the end and closed,
		// otherwise the underlying connection cannot be reused.
		if resp != nil && respErr == nil {
			drainResponseBody(resp, rt.logger(ctx))
		}

		if attempt > 0 {
			if !cloned {
				req, cloned = req.Clone(req.Context()), true // The original request must not be modified.
			}
			req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(attempt))
		}

		resp, respErr = rt.Delegate.RoundTrip(req)

		needRetry, checkRetryErr := rt.CheckRetry(ctx, resp, respErr, attempt)
		if checkRetryErr != nil {
			rt.logger(ctx).Error(fmt.Sprintf(
				"failed to check if retry is needed, %d attempt(s) made", attempt+1),
				log.Error(checkRetryErr))
			return resp, respErr
		}
		if !needRetry {
			return resp, respErr
		}

		if rt.MaxRetryAttempts > 0 && attempt >= rt.MaxRetryAttempts {
			rt.logger(ctx).Warnf("max retry attempts (%d) exceeded, %d attempt(s) made",
				rt.MaxRetryAttempts, attempt+1)
			return resp, respErr
		}
		waitTime, stop := nextWaitTime(resp, respErr)
		if stop {
			return resp, respErr
		}

		select {
		case <-ctx.Done():
			rt.logger(ctx).Warnf("context canceled (%v) while waiting for the next attempt, %d attempt(s) made",
				ctx.Err(), attempt+1)
			return resp, respErr
		case <-time.After(waitTime):
		}
	}
}

type waitTimeFunc func(resp *http.Response, roundTripErr error) (waitTime time.Duration, stop bool)

// newWaitTimeFunc builds the per-request wait time provider.
// The Retry-After HTTP header of the response takes priority over the backoff policy,
// and so does the retry-after estimate of a local throttling rejection.
func (rt *RetryableRoundTripper) newWaitTimeFunc() waitTimeFunc {
	bf := rt.BackoffPolicy.NewBackOff()
	return func(resp *http.Response, roundTripErr error) (waitTime time.Duration, stop bool) {
		if !rt.IgnoreRetryAfter {
			if resp != nil {
				if retryAfter, ok := parseRetryAfterFromResponse(resp); ok {
					return retryAfter, false
				}
			}
			var retryAfterProvider retry.RetryAfterProvider
			if errors.As(roundTripErr, &retryAfterProvider) {
				if estimate := retryAfterProvider.RetryAfterEstimate(); estimate > 0 {
					return estimate, false
				}
			}
		}
		waitTime = bf.NextBackOff()
		return waitTime, waitTime == backoff.Stop
	}
}

func (rt *RetryableRoundTripper) logger(ctx context.Context) log.FieldLogger {
	if rt.LoggerProvider != nil {
		return rt.LoggerProvider(ctx)
	}
	return rt.Logger
}

// RetryableRoundTripperError is returned by RetryableRoundTripper.RoundTrip
// when the request body cannot be prepared for retrying.
type RetryableRoundTripperError struct {
	Inner error
}

func (e *RetryableRoundTripperError) Error() string {
	return "retryable round trip: " + e.Inner.Error()
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *RetryableRoundTripperError) Unwrap() error {
	return e.Inner
}

// DefaultCheckRetry represents the default function to determine whether a retry is needed.
// Local throttling rejections are retried unless the throttle queue is already closed,
// temporary network errors are retried, and responses with the 429 status code are retried.
// Responses with 5xx status codes are retried only for idempotent requests:
// either the request method is idempotent by definition (RFC 9110, section 9.2.2),
// or the request context carries the hint (see NewContextWithIdempotentHint).
// The server may have already processed a POST that ended with a 5xx,
// and repeating it without such a hint could duplicate the operation.
func DefaultCheckRetry(
	ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int,
) (needRetry bool, err error) {
	if roundTripErr != nil {
		var throttlingErr *ThrottlingError
		if errors.As(roundTripErr, &throttlingErr) {
			var queueClosedErr *throttlequeue.QueueClosedError
			return !errors.As(throttlingErr.Inner, &queueClosedErr), nil
		}
		return CheckErrorIsTemporary(roundTripErr), nil
	}
	if resp == nil {
		return false, fmt.Errorf("response and round trip error are both nil")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		if resp.Request == nil || isIdempotentMethod(resp.Request.Method) {
			return true, nil
		}
		return GetIdempotentHintFromContext(ctx), nil
	}
	return false, nil
}

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// DefaultBackoffPolicy is the exponential policy applied when Opts.BackoffPolicy is not set.
var DefaultBackoffPolicy retry.Policy = retry.ExponentialBackoffPolicy{
	InitialInterval: DefaultExponentialBackoffInitialInterval,
	Multiplier:      DefaultExponentialBackoffMultiplier,
}

// CheckErrorIsTemporary checks whether the error is temporary.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var terr interface{ Temporary() bool }
	ok := errors.As(err, &terr)
	return ok && terr.Temporary()
}

// parseRetryAfterFromResponse reads the Retry-After header,
// which may hold either a number of seconds or an HTTP-date (RFC 9110, section 10.2.3).
func parseRetryAfterFromResponse(resp *http.Response) (retryAfter time.Duration, ok bool) {
	headerVal := resp.Header.Get("Retry-After")
	if headerVal == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(headerVal); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	date, err := time.Parse(time.RFC1123, headerVal)
	if err != nil {
		return 0, false
	}
	return time.Until(date), true
}
