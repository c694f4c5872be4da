/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

const (
	logKeyMethod = "method"
	logKeyURI    = "uri"
	logKeyStatus = "status"
)

// APIError represents the error details returned by API endpoints.
type APIError struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
	Debug   map[string]interface{} `json:"debug,omitempty"`
}

// APIErrorResponse is the JSON error envelope returned by API endpoints: {"error": {...}}.
type APIErrorResponse struct {
	Err *APIError `json:"error"`
}

func (e *APIErrorResponse) Error() string {
	if e.Err == nil {
		return "api error"
	}
	return fmt.Sprintf("api error %s: %s", e.Err.Code, e.Err.Message)
}

// ClientError is returned when a request to an API endpoint fails.
// It carries the request method, URL and response status code along with the cause.
type ClientError struct {
	Message    string
	Method     string
	URL        *url.URL
	StatusCode int
	Err        error
}

func (e *ClientError) wrap(message string, err error) *ClientError {
	e.Message = message
	e.Err = err
	return e
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	str := fmt.Sprintf("method: [%s] url: [%s] status: [%d] message: %s", e.Method, e.URL, e.StatusCode, e.Message)
	if e.Err != nil {
		str += fmt.Sprintf(" error: %s", e.Err.Error())
	}
	return str
}

// Is allows checking the wrapped error with errors.Is.
func (e *ClientError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// DoRequest does an HTTP request and logs its details.
func DoRequest(client *http.Client, req *http.Request, logger log.FieldLogger) (*http.Response, error) {
	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("sending request",
			log.String(logKeyMethod, req.Method),
			log.String(logKeyURI, req.URL.String()),
		)
	})

	resp, err := client.Do(req)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to do http request %s %s", req.Method, req.URL.String()),
			log.String(logKeyMethod, req.Method),
			log.String(logKeyURI, req.URL.String()),
			log.Error(err),
		)
		return nil, fmt.Errorf("do request: %w", err)
	}

	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("got response",
			log.String(logKeyMethod, req.Method),
			log.String(logKeyURI, req.URL.String()),
			log.Int(logKeyStatus, resp.StatusCode),
		)
	})
	return resp, nil
}

// DoRequestAndDecodeJSON does an HTTP request, logs its details and decodes the JSON response body into result.
// Responses with 4xx and 5xx status codes are returned as *ClientError;
// when such a response carries a JSON error envelope, the error wraps the parsed *APIErrorResponse.
// If result is nil, the body of a successful response is ignored.
func DoRequestAndDecodeJSON(
	client *http.Client, req *http.Request, result interface{}, logger log.FieldLogger,
) error {
	resp, err := DoRequest(client, req, logger)
	if err != nil {
		// The error is already logged in DoRequest.
		return err
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close response body after doing http request",
				log.String(logKeyMethod, req.Method),
				log.String(logKeyURI, req.URL.String()),
				log.Error(closeErr),
			)
		}
	}()

	logger = logger.With(
		log.String(logKeyMethod, req.Method),
		log.String(logKeyURI, req.URL.String()),
		log.Int(logKeyStatus, resp.StatusCode),
	)

	clientErr := &ClientError{
		Method:     req.Method,
		URL:        req.URL,
		StatusCode: resp.StatusCode,
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 600 {
		buf, readErr := readResponseBody(resp, logger, clientErr)
		if readErr != nil {
			return readErr
		}

		var apiErr APIErrorResponse
		contentType := resp.Header.Get("Content-Type")
		if !strings.Contains(contentType, ContentTypeAppJSON) {
			maxBodySize := 255
			if len(buf) < maxBodySize {
				maxBodySize = len(buf)
			}
			apiErr.Err = &APIError{
				Code:    resp.Status,
				Message: fmt.Sprintf("%s received with unexpected Content-Type", http.StatusText(resp.StatusCode)),
				Debug: map[string]interface{}{
					"content-type": contentType,
					"body":         string(buf)[:maxBodySize],
				},
			}
		} else if unmarshalErr := json.Unmarshal(buf, &apiErr); unmarshalErr != nil {
			logger.Error("error unmarshaling error response", log.Error(unmarshalErr))
			return clientErr.wrap("unmarshaling error response", unmarshalErr)
		}

		return clientErr.wrap("error response", &apiErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if result != nil {
			buf, readErr := readResponseBody(resp, logger, clientErr)
			if readErr != nil {
				return readErr
			}

			if unmarshalErr := json.Unmarshal(buf, result); unmarshalErr != nil {
				logger.Error("error unmarshaling response", log.Error(unmarshalErr))
				return clientErr.wrap("unmarshaling response", unmarshalErr)
			}
		}
		return nil
	}

	clientErr.Message = "unexpected status code"
	return clientErr
}

func readResponseBody(resp *http.Response, logger log.FieldLogger, clientErr *ClientError) ([]byte, error) {
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("error reading response body", log.Error(err))
		return nil, clientErr.wrap("reading response body", err)
	}
	if len(buf) == 0 {
		logger.Error("empty error response")
		clientErr.Message = "empty response"
		return nil, clientErr
	}
	return buf, nil
}

// NewJSONRequest marshals the passed data to JSON and creates a new http.Request with it as the body.
func NewJSONRequest(method, url string, data interface{}) (*http.Request, error) {
	if data == nil {
		return nil, fmt.Errorf("data cannot be nil")
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, fmt.Errorf("method %s is not allowed for json request", method)
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentTypeAppJSON)
	return req, nil
}
