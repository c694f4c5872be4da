/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const (
	ctxKeyRequestType ctxKey = iota
	ctxKeyIdempotentHint
)

// NewContextWithRequestType returns a derived context that carries the request type.
// It overrides the request type configured on MetricsRoundTripper for this particular request.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext extracts the request type from the context.
// Returns an empty string when the key is not present.
func GetRequestTypeFromContext(ctx context.Context) string {
	value, ok := ctx.Value(ctxKeyRequestType).(string)
	if !ok {
		return ""
	}
	return value
}

// NewContextWithIdempotentHint returns a derived context that carries an "idempotent request" hint.
// When set to true, the request is considered idempotent even if it's not a GET/HEAD/OPTIONS request.
// The hint is used by the DefaultCheckRetry function to decide whether it's safe to retry
// unsafe methods like POST and PATCH on server errors.
func NewContextWithIdempotentHint(ctx context.Context, isIdempotent bool) context.Context {
	return context.WithValue(ctx, ctxKeyIdempotentHint, isIdempotent)
}

// GetIdempotentHintFromContext extracts the "idempotent request" hint from the context.
// Returns false when the key is not present. See NewContextWithIdempotentHint for details.
func GetIdempotentHintFromContext(ctx context.Context) bool {
	value, ok := ctx.Value(ctxKeyIdempotentHint).(bool)
	return ok && value
}
