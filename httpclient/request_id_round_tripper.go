/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"

	"github.com/rs/xid"
)

// RequestIDRoundTripper implements http.RoundTripper interface
// and sets X-Request-ID HTTP header in all outgoing requests.
type RequestIDRoundTripper struct {
	// Delegate is the transport the request is handed to next.
	Delegate http.RoundTripper

	// RequestIDProvider is a function that provides a request ID for the outgoing request.
	// A fresh xid is generated for each request if not set.
	RequestIDProvider func(ctx context.Context) string
}

// RequestIDRoundTripperOpts represents options for RequestIDRoundTripper.
type RequestIDRoundTripperOpts struct {
	// RequestIDProvider is a function that provides a request ID for the outgoing request.
	// A fresh xid is generated for each request if not set.
	RequestIDProvider func(ctx context.Context) string
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{})
}

// NewRequestIDRoundTripperWithOpts creates an HTTP transport with X-Request-ID header support with options.
func NewRequestIDRoundTripperWithOpts(
	delegate http.RoundTripper, opts RequestIDRoundTripperOpts,
) http.RoundTripper {
	return &RequestIDRoundTripper{
		Delegate:          delegate,
		RequestIDProvider: opts.RequestIDProvider,
	}
}

// RoundTrip adds X-Request-ID header to the request. A header already set by the caller is kept.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("X-Request-ID") != "" {
		return rt.Delegate.RoundTrip(r)
	}

	var requestID string
	if rt.RequestIDProvider != nil {
		requestID = rt.RequestIDProvider(r.Context())
	} else {
		requestID = xid.New().String()
	}
	if requestID == "" {
		return rt.Delegate.RoundTrip(r)
	}

	r = r.Clone(r.Context()) // The original request must not be modified.
	r.Header.Set("X-Request-ID", requestID)
	return rt.Delegate.RoundTrip(r)
}
