/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

type errorEnvelope struct {
	Error struct {
		Domain string `json:"domain"`
		Code   string `json:"code"`
	} `json:"error"`
}

// RequireErrorInRecorder asserts that the passed httptest.ResponseRecorder contains
// an error response ({"error": {"domain": ..., "code": ...}}) with the wanted domain and code.
func RequireErrorInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantStatus int, wantDomain, wantCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireError(t, resp.Code, resp.Header(), resp.Body, wantStatus, wantDomain, wantCode)
}

// RequireErrorInResponse asserts that the passed http.Response contains
// an error response ({"error": {"domain": ..., "code": ...}}) with the wanted domain and code.
func RequireErrorInResponse(t require.TestingT, resp *http.Response, wantStatus int, wantDomain, wantCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireError(t, resp.StatusCode, resp.Header, resp.Body, wantStatus, wantDomain, wantCode)
}

func requireError(t require.TestingT, status int, header http.Header, body io.Reader, wantStatus int, wantDomain, wantCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantStatus, status)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var envelope errorEnvelope
	require.NoError(t, json.NewDecoder(body).Decode(&envelope))
	require.Equal(t, wantDomain, envelope.Error.Domain)
	require.Equal(t, wantCode, envelope.Error.Code)
}

// RequireEmptyBodyInRecorder asserts that the passed httptest.ResponseRecorder contains an empty body.
func RequireEmptyBodyInRecorder(t require.TestingT, resp *httptest.ResponseRecorder) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireEmptyBody(t, resp.Body)
}

// RequireEmptyBodyInResponse asserts that the passed http.Response contains an empty body.
func RequireEmptyBodyInResponse(t require.TestingT, resp *http.Response) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireEmptyBody(t, resp.Body)
}

func requireEmptyBody(t require.TestingT, body io.Reader) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	bodyBytes, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Empty(t, bodyBytes)
}

// RequireJSONInRecorder asserts that the passed httptest.ResponseRecorder contains the wanted data in JSON format.
// The dest argument should be a pointer of the same type as want.
func RequireJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireJSON(t, resp.Header(), resp.Body, want, dest)
}

// RequireJSONInResponse asserts that the passed http.Response contains the wanted data in JSON format.
// The dest argument should be a pointer of the same type as want.
func RequireJSONInResponse(t require.TestingT, resp *http.Response, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireJSON(t, resp.Header, resp.Body, want, dest)
}

func requireJSON(t require.TestingT, header http.Header, body io.Reader, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(body).Decode(dest))
	require.Equal(t, want, dest)
}

// RequireStringJSONInRecorder asserts that the passed httptest.ResponseRecorder contains exactly the wanted JSON string.
func RequireStringJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireStringJSON(t, resp.Header(), resp.Body, want)
}

// RequireStringJSONInResponse asserts that the passed http.Response contains exactly the wanted JSON string.
func RequireStringJSONInResponse(t require.TestingT, resp *http.Response, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireStringJSON(t, resp.Header, resp.Body, want)
}

func requireStringJSON(t require.TestingT, header http.Header, body io.Reader, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	bodyBytes, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, want, string(bodyBytes))
}
