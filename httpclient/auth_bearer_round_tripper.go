/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
)

// AuthBearerRoundTripperError is returned by AuthBearerRoundTripper.RoundTrip
// when the authorization token cannot be obtained.
type AuthBearerRoundTripperError struct {
	Inner error
}

func (e *AuthBearerRoundTripperError) Error() string {
	return "auth bearer round trip: " + e.Inner.Error()
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *AuthBearerRoundTripperError) Unwrap() error {
	return e.Inner
}

// AuthProvider provides a token used for bearer authorization.
type AuthProvider interface {
	GetToken(ctx context.Context, scope ...string) (string, error)
}

// AuthBearerRoundTripperOpts represents options for AuthBearerRoundTripper.
type AuthBearerRoundTripperOpts struct {
	TokenScope []string
}

// AuthBearerRoundTripper is an http.RoundTripper that attaches a bearer
// token to the Authorization header of every outgoing request.
type AuthBearerRoundTripper struct {
	Delegate     http.RoundTripper
	AuthProvider AuthProvider
	opts         AuthBearerRoundTripperOpts
}

// NewAuthBearerRoundTripper creates a round tripper that authorizes
// outgoing requests with tokens from the given provider.
func NewAuthBearerRoundTripper(delegate http.RoundTripper, authProvider AuthProvider) *AuthBearerRoundTripper {
	return NewAuthBearerRoundTripperWithOpts(delegate, authProvider, AuthBearerRoundTripperOpts{})
}

// NewAuthBearerRoundTripperWithOpts is a version of NewAuthBearerRoundTripper that accepts options.
func NewAuthBearerRoundTripperWithOpts(
	delegate http.RoundTripper, authProvider AuthProvider, opts AuthBearerRoundTripperOpts,
) *AuthBearerRoundTripper {
	return &AuthBearerRoundTripper{Delegate: delegate, AuthProvider: authProvider, opts: opts}
}

// RoundTrip obtains a token from the configured AuthProvider, attaches it
// to a clone of the request and passes the clone on.
// An Authorization header already set by the caller is kept.
func (rt *AuthBearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		defer func() {
			_ = req.Body.Close() // RoundTrip must close the body.
		}()
	}
	if req.Header.Get("Authorization") != "" {
		return rt.Delegate.RoundTrip(req)
	}
	authorized, err := rt.withToken(req)
	if err != nil {
		return nil, &AuthBearerRoundTripperError{Inner: err}
	}
	return rt.Delegate.RoundTrip(authorized)
}

func (rt *AuthBearerRoundTripper) withToken(req *http.Request) (*http.Request, error) {
	token, err := rt.AuthProvider.GetToken(req.Context(), rt.opts.TokenScope...)
	if err != nil {
		return nil, err
	}
	authorized := req.Clone(req.Context()) // The original request must not be modified.
	authorized.Header.Set("Authorization", "Bearer "+token)
	return authorized, nil
}
