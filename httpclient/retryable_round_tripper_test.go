/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
	"github.com/gitboycryptogeek/tassiac-sub000/log/logtest"
	"github.com/gitboycryptogeek/tassiac-sub000/retry"
	"github.com/gitboycryptogeek/tassiac-sub000/throttlequeue"
)

type recordedReq struct {
	method        string
	body          []byte
	attemptHeader string
}

type scriptedServer struct {
	*httptest.Server
	sync.RWMutex
	recorded  []recordedReq
	respCodes []int
}

func (s *scriptedServer) Recorded() []recordedReq {
	s.RLock()
	defer s.RUnlock()
	res := make([]recordedReq, len(s.recorded))
	copy(res, s.recorded)
	return res
}

func (s *scriptedServer) Reset(respCodes []int) {
	s.Lock()
	defer s.Unlock()
	s.recorded = nil
	s.respCodes = respCodes
}

func newScriptedServer() *scriptedServer {
	srv := &scriptedServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var reqBody []byte
		if r.Method != http.MethodGet {
			reqBody, _ = io.ReadAll(r.Body)
		}

		srv.Lock()
		srv.recorded = append(srv.recorded, recordedReq{
			method:        r.Method,
			body:          reqBody,
			attemptHeader: r.Header.Get(RetryAttemptNumberHeader),
		})
		respCode := http.StatusOK
		if len(srv.respCodes) > 0 {
			respCode = srv.respCodes[len(srv.respCodes)-1]
			srv.respCodes = srv.respCodes[:len(srv.respCodes)-1]
		}
		srv.Unlock()

		rw.WriteHeader(respCode)
		_, _ = rw.Write([]byte("accepted"))
	}))
	return srv
}

type countingTransport struct {
	next  http.RoundTripper
	calls int
}

func (rt *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	rt.calls++
	return rt.next.RoundTrip(r)
}

// seekerBody exposes Seek and Close but is none of the reader types
// http.NewRequest recognizes, so the request is built without GetBody
// and the round tripper has to rewind the body through the io.ReadSeeker interface.
type seekerBody struct {
	io.ReadSeeker
}

func (seekerBody) Close() error { return nil }

// plainBody exposes the body as a bare io.Reader, forcing the round tripper
// to buffer it in memory before the first attempt.
type plainBody struct {
	io.Reader
}

func TestRetryableRoundTripperRoundTrip(t *testing.T) {
	testSrv := newScriptedServer()
	defer testSrv.Close()

	reqBodyJSON := []byte(`{"amount":1500,"currency":"KES"}`)

	repeatCode := func(code, n int) []int {
		codes := make([]int, n)
		for i := 0; i < n; i++ {
			codes[i] = code
		}
		return codes
	}

	servedReqs := func(method string, body []byte, n int) []recordedReq {
		served := make([]recordedReq, n)
		for i := 0; i < n; i++ {
			served[i] = recordedReq{method: method, body: body}
			if i > 0 {
				served[i].attemptHeader = strconv.Itoa(i)
			}
		}
		return served
	}

	fastRetries := RetryableRoundTripperOpts{
		MaxRetryAttempts: 5,
		BackoffPolicy:    retry.NewConstantBackoffPolicy(time.Millisecond*10, 0),
	}

	tests := []struct {
		Name           string
		Opts           RetryableRoundTripperOpts
		Method         string
		URL            string
		Body           func() io.Reader
		IdempotentHint bool
		RespCodes      []int
		WantErr        string
		WantAttempts   int
		WantStatus     int
		WantServed     []recordedReq
	}{
		{
			Name:         "GET, retry on server errors",
			Opts:         fastRetries,
			Method:       http.MethodGet,
			URL:          testSrv.URL,
			Body:         func() io.Reader { return nil },
			RespCodes:    repeatCode(http.StatusServiceUnavailable, 3),
			WantAttempts: 4,
			WantServed:   servedReqs(http.MethodGet, nil, 4),
			WantStatus:   http.StatusOK,
		},
		{
			Name:         "PUT with rewindable body, retry on 429",
			Opts:         fastRetries,
			Method:       http.MethodPut,
			URL:          testSrv.URL,
			Body:         func() io.Reader { return bytes.NewReader(reqBodyJSON) },
			RespCodes:    repeatCode(http.StatusTooManyRequests, 3),
			WantAttempts: 4,
			WantServed:   servedReqs(http.MethodPut, reqBodyJSON, 4),
			WantStatus:   http.StatusOK,
		},
		{
			Name:         "PUT with seeker body, retry on server errors",
			Opts:         fastRetries,
			Method:       http.MethodPut,
			URL:          testSrv.URL,
			Body:         func() io.Reader { return seekerBody{bytes.NewReader(reqBodyJSON)} },
			RespCodes:    repeatCode(http.StatusServiceUnavailable, 2),
			WantAttempts: 3,
			WantServed:   servedReqs(http.MethodPut, reqBodyJSON, 3),
			WantStatus:   http.StatusOK,
		},
		{
			Name:           "POST with buffered body and idempotent hint, retry on server errors",
			Opts:           fastRetries,
			Method:         http.MethodPost,
			URL:            testSrv.URL,
			Body:           func() io.Reader { return plainBody{bytes.NewReader(reqBodyJSON)} },
			IdempotentHint: true,
			RespCodes:      repeatCode(http.StatusServiceUnavailable, 2),
			WantAttempts:   3,
			WantServed:     servedReqs(http.MethodPost, reqBodyJSON, 3),
			WantStatus:     http.StatusOK,
		},
		{
			Name:         "POST without idempotent hint is not retried on server errors",
			Opts:         fastRetries,
			Method:       http.MethodPost,
			URL:          testSrv.URL,
			Body:         func() io.Reader { return bytes.NewReader(reqBodyJSON) },
			RespCodes:    repeatCode(http.StatusServiceUnavailable, 1),
			WantAttempts: 1,
			WantServed:   servedReqs(http.MethodPost, reqBodyJSON, 1),
			WantStatus:   http.StatusServiceUnavailable,
		},
		{
			Name:         "POST is retried on 429",
			Opts:         fastRetries,
			Method:       http.MethodPost,
			URL:          testSrv.URL,
			Body:         func() io.Reader { return bytes.NewReader(reqBodyJSON) },
			RespCodes:    repeatCode(http.StatusTooManyRequests, 2),
			WantAttempts: 3,
			WantServed:   servedReqs(http.MethodPost, reqBodyJSON, 3),
			WantStatus:   http.StatusOK,
		},
		{
			Name: "max retry attempts exceeded",
			Opts: RetryableRoundTripperOpts{
				MaxRetryAttempts: 2,
				BackoffPolicy:    retry.NewConstantBackoffPolicy(time.Millisecond*10, 0),
			},
			Method:       http.MethodGet,
			URL:          testSrv.URL,
			Body:         func() io.Reader { return nil },
			RespCodes:    repeatCode(http.StatusServiceUnavailable, 5),
			WantAttempts: 3,
			WantServed:   servedReqs(http.MethodGet, nil, 3),
			WantStatus:   http.StatusServiceUnavailable,
		},
		{
			Name: "stopped by backoff policy",
			Opts: RetryableRoundTripperOpts{
				MaxRetryAttempts: UnlimitedRetryAttempts,
				BackoffPolicy:    retry.NewConstantBackoffPolicy(time.Millisecond*10, 2),
			},
			Method:       http.MethodGet,
			URL:          testSrv.URL,
			Body:         func() io.Reader { return nil },
			RespCodes:    repeatCode(http.StatusServiceUnavailable, 5),
			WantAttempts: 3,
			WantServed:   servedReqs(http.MethodGet, nil, 3),
			WantStatus:   http.StatusServiceUnavailable,
		},
		{
			Name:         "invalid url",
			Opts:         RetryableRoundTripperOpts{},
			Method:       http.MethodGet,
			URL:          "foobar",
			Body:         func() io.Reader { return nil },
			WantAttempts: 1,
			WantServed:   make([]recordedReq, 0),
			WantErr:      "unsupported protocol scheme",
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.Name, func(t *testing.T) {
			testSrv.Reset(tt.RespCodes)

			counter := &countingTransport{next: http.DefaultTransport}
			retryableRT, err := NewRetryableRoundTripperWithOpts(counter, tt.Opts)
			require.NoError(t, err)
			httpClient := &http.Client{Transport: retryableRT, Timeout: 30 * time.Second}

			req, reqErr := http.NewRequest(tt.Method, tt.URL, tt.Body())
			require.NoError(t, reqErr)
			if tt.IdempotentHint {
				req = req.WithContext(NewContextWithIdempotentHint(req.Context(), true))
			}

			resp, respErr := httpClient.Do(req)
			if tt.WantErr == "" {
				require.NoError(t, respErr)
				require.Equal(t, tt.WantStatus, resp.StatusCode)
				require.NoError(t, resp.Body.Close())
			} else {
				require.Error(t, respErr)
				require.Contains(t, respErr.Error(), tt.WantErr)
			}
			require.Equal(t, tt.WantAttempts, counter.calls)
			require.Equal(t, tt.WantServed, testSrv.Recorded())
		})
	}
}

// stubRoundTripper returns canned outcomes one by one and records how many calls it served.
type stubRoundTripper struct {
	outcomes []func(r *http.Request) (*http.Response, error)
	calls    int
}

func (rt *stubRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	idx := rt.calls
	if idx >= len(rt.outcomes) {
		idx = len(rt.outcomes) - 1
	}
	rt.calls++
	return rt.outcomes[idx](r)
}

func okResponse(r *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Request:    r,
	}, nil
}

func TestRetryableRoundTripperThrottlingRejection(t *testing.T) {
	t.Run("rate limit rejection is retried after the estimate", func(t *testing.T) {
		const retryAfterEstimate = 100 * time.Millisecond

		stub := &stubRoundTripper{outcomes: []func(r *http.Request) (*http.Response, error){
			func(r *http.Request) (*http.Response, error) {
				return nil, &ThrottlingError{
					Rule:  "payment-ops",
					Zone:  "payments",
					Inner: &throttlequeue.RateLimitExceededError{EstimatedRetryAfter: retryAfterEstimate},
				}
			},
			okResponse,
		}}
		retryableRT, err := NewRetryableRoundTripperWithOpts(stub, RetryableRoundTripperOpts{
			BackoffPolicy: retry.NewConstantBackoffPolicy(time.Millisecond, 0),
		})
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodGet, "http://bank-api.local/api/payment/status", nil)
		require.NoError(t, err)

		start := time.Now()
		resp, respErr := retryableRT.RoundTrip(req)
		require.NoError(t, respErr)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 2, stub.calls)
		require.GreaterOrEqual(t, time.Since(start), retryAfterEstimate)
	})

	t.Run("closed queue rejection is not retried", func(t *testing.T) {
		throttlingErr := &ThrottlingError{
			Rule:  "payment-ops",
			Zone:  "payments",
			Inner: &throttlequeue.QueueClosedError{},
		}
		stub := &stubRoundTripper{outcomes: []func(r *http.Request) (*http.Response, error){
			func(r *http.Request) (*http.Response, error) { return nil, throttlingErr },
		}}
		retryableRT, err := NewRetryableRoundTripperWithOpts(stub, RetryableRoundTripperOpts{
			BackoffPolicy: retry.NewConstantBackoffPolicy(time.Millisecond, 0),
		})
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodGet, "http://bank-api.local/api/payment/status", nil)
		require.NoError(t, err)

		resp, respErr := retryableRT.RoundTrip(req)
		require.Nil(t, resp)
		require.ErrorIs(t, respErr, throttlingErr)
		require.Equal(t, 1, stub.calls)
	})

	t.Run("estimate is ignored when IgnoreRetryAfter is set", func(t *testing.T) {
		stub := &stubRoundTripper{outcomes: []func(r *http.Request) (*http.Response, error){
			func(r *http.Request) (*http.Response, error) {
				return nil, &ThrottlingError{
					Rule:  "payment-ops",
					Zone:  "payments",
					Inner: &throttlequeue.RateLimitExceededError{EstimatedRetryAfter: 10 * time.Second},
				}
			},
			okResponse,
		}}
		retryableRT, err := NewRetryableRoundTripperWithOpts(stub, RetryableRoundTripperOpts{
			IgnoreRetryAfter: true,
			BackoffPolicy:    retry.NewConstantBackoffPolicy(time.Millisecond, 0),
		})
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodGet, "http://bank-api.local/api/payment/status", nil)
		require.NoError(t, err)

		start := time.Now()
		resp, respErr := retryableRT.RoundTrip(req)
		require.NoError(t, respErr)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 2, stub.calls)
		require.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestDefaultCheckRetry(t *testing.T) {
	makeResp := func(method string, statusCode int) *http.Response {
		req, err := http.NewRequest(method, "http://bank-api.local/api/payment/submit", nil)
		require.NoError(t, err)
		return &http.Response{StatusCode: statusCode, Request: req}
	}

	tests := []struct {
		Name          string
		Ctx           context.Context
		Resp          *http.Response
		RoundTripErr  error
		WantNeedRetry bool
		WantErr       bool
	}{
		{
			Name:          "temporary error",
			RoundTripErr:  io.EOF,
			WantNeedRetry: true,
		},
		{
			Name:          "permanent error",
			RoundTripErr:  errors.New("tls handshake failed"),
			WantNeedRetry: false,
		},
		{
			Name:          "throttling rate limit rejection",
			RoundTripErr:  &ThrottlingError{Zone: "payments", Inner: &throttlequeue.RateLimitExceededError{}},
			WantNeedRetry: true,
		},
		{
			Name:          "throttling queue full rejection",
			RoundTripErr:  &ThrottlingError{Zone: "payments", Inner: &throttlequeue.QueueFullError{PendingLimit: 10}},
			WantNeedRetry: true,
		},
		{
			Name:          "throttling closed queue rejection",
			RoundTripErr:  &ThrottlingError{Zone: "payments", Inner: &throttlequeue.QueueClosedError{}},
			WantNeedRetry: false,
		},
		{
			Name:    "nil response and nil error",
			WantErr: true,
		},
		{
			Name:          "successful response",
			Resp:          makeResp(http.MethodGet, http.StatusOK),
			WantNeedRetry: false,
		},
		{
			Name:          "too many requests",
			Resp:          makeResp(http.MethodPost, http.StatusTooManyRequests),
			WantNeedRetry: true,
		},
		{
			Name:          "server error, idempotent method",
			Resp:          makeResp(http.MethodGet, http.StatusServiceUnavailable),
			WantNeedRetry: true,
		},
		{
			Name:          "server error, PUT is idempotent",
			Resp:          makeResp(http.MethodPut, http.StatusInternalServerError),
			WantNeedRetry: true,
		},
		{
			Name:          "server error, POST is not idempotent",
			Resp:          makeResp(http.MethodPost, http.StatusServiceUnavailable),
			WantNeedRetry: false,
		},
		{
			Name:          "server error, POST with idempotent hint",
			Ctx:           NewContextWithIdempotentHint(context.Background(), true),
			Resp:          makeResp(http.MethodPost, http.StatusServiceUnavailable),
			WantNeedRetry: true,
		},
		{
			Name:          "server error, no request attached",
			Resp:          &http.Response{StatusCode: http.StatusBadGateway},
			WantNeedRetry: true,
		},
		{
			Name:          "client error is not retried",
			Resp:          makeResp(http.MethodGet, http.StatusNotFound),
			WantNeedRetry: false,
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.Name, func(t *testing.T) {
			ctx := tt.Ctx
			if ctx == nil {
				ctx = context.Background()
			}
			needRetry, err := DefaultCheckRetry(ctx, tt.Resp, tt.RoundTripErr, 0)
			if tt.WantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.WantNeedRetry, needRetry)
		})
	}
}

func TestParseRetryAfterFromResponse(t *testing.T) {
	tests := []struct {
		name           string
		header         string
		wantRetryAfter time.Duration
		wantOK         bool
		check          func(t *testing.T, header string, retryAfter time.Duration)
	}{
		{
			name:   "empty value",
			header: "",
			wantOK: false,
		},
		{
			name:           "number of seconds",
			header:         "90",
			wantRetryAfter: 90 * time.Second,
			wantOK:         true,
		},
		{
			name:           "zero seconds",
			header:         "0",
			wantRetryAfter: 0,
			wantOK:         true,
		},
		{
			name:           "negative number of seconds",
			header:         "-30",
			wantRetryAfter: 0,
			wantOK:         false,
		},
		{
			name:           "malformed HTTP date",
			header:         "Wed, 99 Broken Date GMT",
			wantRetryAfter: 0,
			wantOK:         false,
		},
		{
			name:   "HTTP date",
			header: "Wed, 01 Oct 2031 08:30:00 GMT",
			wantOK: true,
			check: func(t *testing.T, header string, retryAfter time.Duration) {
				wantTime, parseErr := time.Parse(time.RFC1123, header)
				require.NoError(t, parseErr)
				require.InDelta(t, time.Until(wantTime), retryAfter, float64(time.Millisecond))
			},
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: http.StatusOK, Header: make(http.Header)}
			resp.Header.Set("Retry-After", tt.header)
			retryAfter, ok := parseRetryAfterFromResponse(resp)
			require.Equal(t, tt.wantOK, ok)
			if tt.check != nil {
				tt.check(t, tt.header, retryAfter)
			} else {
				require.Equal(t, tt.wantRetryAfter, retryAfter)
			}
		})
	}
}

func TestCheckErrorIsTemporary(t *testing.T) {
	require.True(t, CheckErrorIsTemporary(io.EOF))
	require.True(t, CheckErrorIsTemporary(fmt.Errorf("do request: %w", io.EOF)))
	require.True(t, CheckErrorIsTemporary(&net.DNSError{Err: "timeout", IsTemporary: true}))
	require.False(t, CheckErrorIsTemporary(&net.DNSError{Err: "no such host"}))
	require.False(t, CheckErrorIsTemporary(errors.New("tls handshake failed")))
}

func TestRetryableRoundTripperRoundTripLogging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(wr http.ResponseWriter, req *http.Request) {
		wr.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	type ctxKey string
	const ctxKeyLogger ctxKey = "logger"

	checkErr := errors.New("status cross-check failed")

	doAndCheckLog := func(t *testing.T, client *http.Client, req *http.Request, logRecorder *logtest.Recorder) {
		resp, err := client.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.NoError(t, resp.Body.Close())

		require.Len(t, logRecorder.Entries(), 1)
		require.Equal(t, "failed to check if retry is needed, 1 attempt(s) made", logRecorder.Entries()[0].Text)
		logField, found := logRecorder.Entries()[0].FindField("error")
		require.True(t, found)
		require.Equal(t, checkErr, logField.Any)
	}

	t.Run("logger from options", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()

		base := http.DefaultTransport.(*http.Transport).Clone()
		rt, err := NewRetryableRoundTripperWithOpts(base, RetryableRoundTripperOpts{
			Logger: logRecorder,
			CheckRetryFunc: func(ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int) (bool, error) {
				return false, checkErr
			},
		})
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
		require.NoError(t, err)

		doAndCheckLog(t, &http.Client{Transport: rt}, req, logRecorder)
	})

	t.Run("logger from context", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()

		base := http.DefaultTransport.(*http.Transport).Clone()
		rt, err := NewRetryableRoundTripperWithOpts(base, RetryableRoundTripperOpts{
			LoggerProvider: func(ctx context.Context) log.FieldLogger {
				return ctx.Value(ctxKeyLogger).(log.FieldLogger)
			},
			CheckRetryFunc: func(ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int) (bool, error) {
				return false, checkErr
			},
		})
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		req = req.WithContext(context.WithValue(req.Context(), ctxKeyLogger, logRecorder))

		doAndCheckLog(t, &http.Client{Transport: rt}, req, logRecorder)
	})
}
