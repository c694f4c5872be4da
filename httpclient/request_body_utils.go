/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
)

// newBodyRewinder prepares a request body for potential retries
// and returns a function that rewinds it to the initial state.
//
// The cheapest available way is picked: http.Request.GetBody when the caller
// provided it, then seeking when the body implements io.ReadSeeker.
// The last resort is buffering the whole body in memory, which is not suitable
// for very large uploads; for those, callers should set req.GetBody
// or pass a seekable body.
func newBodyRewinder(req *http.Request) (func(*http.Request) error, error) {
	if req.GetBody != nil {
		// Make the first attempt read from a fresh reader too.
		freshBody, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("get fresh request body for the first attempt: %w", err)
		}
		req.Body = freshBody
		return func(r *http.Request) error {
			fresh, freshErr := r.GetBody()
			if freshErr != nil {
				return fmt.Errorf("get fresh request body for retry: %w", freshErr)
			}
			r.Body = fresh
			return nil
		}, nil
	}

	if seeker, ok := req.Body.(io.ReadSeeker); ok {
		offset, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("remember request body offset: %w", err)
		}
		req.Body = io.NopCloser(req.Body)
		return func(r *http.Request) error {
			if _, seekErr := seeker.Seek(offset, io.SeekStart); seekErr != nil {
				return fmt.Errorf("rewind request body to offset %d: %w", offset, seekErr)
			}
			return nil
		}, nil
	}

	buf, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	return func(r *http.Request) error {
		r.Body = io.NopCloser(bytes.NewReader(buf))
		return nil
	}, nil
}

// drainResponseBody reads the response body to the end and closes it
// so that the underlying connection can be reused for the next attempt.
func drainResponseBody(resp *http.Response, logger log.FieldLogger) {
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close response body before retrying", log.Error(closeErr))
		}
	}()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Error("failed to drain response body before retrying", log.Error(err))
	}
}
