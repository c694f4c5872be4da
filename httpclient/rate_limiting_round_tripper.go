/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for RateLimitingRoundTripper options.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// RateLimitingRoundTripperAdaptation represents parameters to adapt the rate limit
// in accordance with a value in the response.
// Some servers report the effective request budget in a response header;
// when ResponseHeaderName is set, the limiter follows it (reduced by SlackPercent)
// instead of the static limit.
type RateLimitingRoundTripperAdaptation struct {
	ResponseHeaderName string
	SlackPercent       int
}

// RateLimitingRoundTripperOpts represents options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration
	Adaptation  RateLimitingRoundTripperAdaptation
}

// RateLimitingRoundTripper wraps an object that implements http.RoundTripper interface
// and limits the rate of outgoing requests.
// Unlike ThrottlingRoundTripper it does not queue requests,
// it just makes each request wait for the limiter before being sent.
type RateLimitingRoundTripper struct {
	Delegate http.RoundTripper

	limiter *rate.Limiter

	RateLimit   int
	Burst       int
	WaitTimeout time.Duration
	Adaptation  RateLimitingRoundTripperAdaptation
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper with the specified rate limit.
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a new RateLimitingRoundTripper
// with the specified rate limit and options.
// Zero-valued options fall back to the defaults above.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	switch {
	case rateLimit <= 0:
		return nil, fmt.Errorf("rate limit should be positive, got %d", rateLimit)
	case opts.Burst < 0:
		return nil, fmt.Errorf("burst should be >= 0, got %d", opts.Burst)
	case opts.Adaptation.SlackPercent < 0 || opts.Adaptation.SlackPercent > 100:
		return nil, fmt.Errorf("slack percent should be in range [0..100], got %d", opts.Adaptation.SlackPercent)
	}

	burst := opts.Burst
	if burst == 0 {
		burst = DefaultRateLimitingBurst
	}
	waitTimeout := opts.WaitTimeout
	if waitTimeout == 0 {
		waitTimeout = DefaultRateLimitingWaitTimeout
	}

	return &RateLimitingRoundTripper{
		Delegate:    delegate,
		limiter:     rate.NewLimiter(rate.Limit(rateLimit), burst),
		RateLimit:   rateLimit,
		Burst:       burst,
		WaitTimeout: waitTimeout,
		Adaptation:  opts.Adaptation,
	}, nil
}

// RoundTrip waits for the rate limiter and then executes a single HTTP transaction.
func (rt *RateLimitingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		defer func() {
			_ = req.Body.Close() // RoundTrip must close the body.
		}()
	}

	ctx, cancel := context.WithTimeout(req.Context(), rt.WaitTimeout)
	defer cancel()
	if err := rt.limiter.Wait(ctx); err != nil {
		return nil, &RateLimitingWaitError{Inner: err}
	}

	resp, err := rt.Delegate.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if rt.Adaptation.ResponseHeaderName != "" {
		rt.adaptLimit(resp)
	}
	return resp, nil
}

// adaptLimit follows the request budget reported by the server,
// falling back to the configured limit when the header is absent,
// unparsable, or greater than the configured limit.
func (rt *RateLimitingRoundTripper) adaptLimit(resp *http.Response) {
	respLimit := 0
	if headerVal := resp.Header.Get(rt.Adaptation.ResponseHeaderName); headerVal != "" {
		if parsed, err := strconv.Atoi(headerVal); err == nil && parsed >= 0 {
			respLimit = (parsed * (100 - rt.Adaptation.SlackPercent)) / 100
			if respLimit == 0 {
				respLimit = 1 // Keep sending 1 request per second instead of stopping at all.
			}
		}
	}
	if respLimit == 0 || respLimit > rt.RateLimit {
		respLimit = rt.RateLimit
	}

	if rt.limiter.Limit() != rate.Limit(respLimit) {
		rt.limiter.SetLimit(rate.Limit(respLimit))
	}
}

// RateLimitingWaitError is returned in RoundTrip method of RateLimitingRoundTripper
// when the request cannot pass the limiter within the wait timeout.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return "wait due to client side rate limiting: " + e.Inner.Error()
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
