/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type timedResponse struct {
	resp  *http.Response
	err   error
	start time.Time
	end   time.Time
}

func timedGet(c *http.Client, url string) timedResponse {
	start := time.Now()
	resp, err := c.Get(url)
	end := time.Now()
	if err == nil {
		_ = resp.Body.Close()
	}
	return timedResponse{resp: resp, err: err, start: start, end: end}
}

// newRateLimitTestServer echoes the rateLimit query parameter back in the given header,
// imitating a bank API that reports the effective request budget.
func newRateLimitTestServer(rateLimitHeader string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if rateLimitHeader != "" {
			if v := r.URL.Query().Get("rateLimit"); v != "" {
				rw.Header().Set(rateLimitHeader, v)
			}
		}
		_, _ = rw.Write([]byte(`{"status":"ok"}`))
	}))
}

func TestNewRateLimitingRoundTripperValidation(t *testing.T) {
	tests := []struct {
		name       string
		rateLimit  int
		opts       RateLimitingRoundTripperOpts
		wantErrMsg string
	}{
		{
			name:       "negative rate limit",
			rateLimit:  -3,
			wantErrMsg: "rate limit should be positive, got -3",
		},
		{
			name:       "zero rate limit",
			rateLimit:  0,
			wantErrMsg: "rate limit should be positive, got 0",
		},
		{
			name:       "negative burst",
			rateLimit:  1,
			opts:       RateLimitingRoundTripperOpts{Burst: -1},
			wantErrMsg: "burst should be >= 0, got -1",
		},
		{
			name:       "slack percent below range",
			rateLimit:  1,
			opts:       RateLimitingRoundTripperOpts{Adaptation: RateLimitingRoundTripperAdaptation{SlackPercent: -5}},
			wantErrMsg: "slack percent should be in range [0..100], got -5",
		},
		{
			name:       "slack percent above range",
			rateLimit:  1,
			opts:       RateLimitingRoundTripperOpts{Adaptation: RateLimitingRoundTripperAdaptation{SlackPercent: 146}},
			wantErrMsg: "slack percent should be in range [0..100], got 146",
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, tt.rateLimit, tt.opts)
			require.EqualError(t, err, tt.wantErrMsg)
		})
	}
}

func TestRateLimitingRoundTripperRoundTrip(t *testing.T) {
	const tolerance = time.Millisecond * 100

	server := newRateLimitTestServer("")
	defer server.Close()

	newLimitedClient := func(limit int, waitTimeout time.Duration) *http.Client {
		rt, err := NewRateLimitingRoundTripperWithOpts(
			http.DefaultTransport, limit, RateLimitingRoundTripperOpts{WaitTimeout: waitTimeout})
		require.NoError(t, err)
		return &http.Client{Transport: rt}
	}

	t.Run("2nd request is delayed by the limiter", func(t *testing.T) {
		client := newLimitedClient(1, time.Second*3)

		got := timedGet(client, server.URL)
		require.NoError(t, got.err)
		require.Equal(t, http.StatusOK, got.resp.StatusCode)
		require.WithinDuration(t, got.start, got.end, tolerance,
			"the 1st request should not wait")

		got = timedGet(client, server.URL)
		require.NoError(t, got.err)
		require.Equal(t, http.StatusOK, got.resp.StatusCode)
		require.WithinDuration(t, got.start.Add(time.Second), got.end, tolerance,
			"the 2nd request should wait for the limiter")
	})

	t.Run("2nd request fails when wait timeout is not enough", func(t *testing.T) {
		client := newLimitedClient(1, time.Millisecond*300)

		got := timedGet(client, server.URL)
		require.NoError(t, got.err, "the 1st request should pass without waiting")
		require.Equal(t, http.StatusOK, got.resp.StatusCode)

		got = timedGet(client, server.URL)
		var rlErr *RateLimitingWaitError
		require.ErrorAs(t, got.err, &rlErr,
			"the 2nd request cannot pass the limiter within the wait timeout")
		require.WithinDuration(t, got.start, got.end, tolerance,
			"the error should be returned immediately, the limiter knows the wait would exceed the timeout")
	})

	t.Run("one of concurrent requests fails when wait timeout is not enough", func(t *testing.T) {
		const limit = 5
		const total = limit + 1

		client := newLimitedClient(limit, time.Second-time.Second/limit+tolerance)
		errCh := make(chan error, total)

		var wg sync.WaitGroup
		wg.Add(total)
		for i := 0; i < total; i++ {
			go func() {
				defer wg.Done()
				errCh <- timedGet(client, server.URL).err
			}()
		}
		wg.Wait()
		close(errCh)

		okCount := 0
		var failed []error
		for err := range errCh {
			if err != nil {
				failed = append(failed, err)
				continue
			}
			okCount++
		}
		require.Equal(t, limit, okCount)
		require.Len(t, failed, 1, "one request should fail")
		var rlErr *RateLimitingWaitError
		require.ErrorAs(t, failed[0], &rlErr)
	})

	t.Run("concurrent requests are spread over the window", func(t *testing.T) {
		const limit = 5

		client := newLimitedClient(limit, time.Second*3)
		results := make(chan timedResponse, limit)

		batchStart := time.Now()
		var wg sync.WaitGroup
		wg.Add(limit)
		for i := 0; i < limit; i++ {
			go func() {
				defer wg.Done()
				results <- timedGet(client, server.URL)
			}()
		}
		wg.Wait()
		batchEnd := time.Now()
		close(results)

		require.WithinDuration(t, batchStart.Add(time.Second-time.Second/limit), batchEnd,
			tolerance)
		for got := range results {
			require.NoError(t, got.err)
			require.Equal(t, http.StatusOK, got.resp.StatusCode)
		}
	})
}

func TestRateLimitingRoundTripperAdaptation(t *testing.T) {
	const tolerance = time.Millisecond * 100
	const rateLimitHeader = "X-RateLimit-Limit"

	server := newRateLimitTestServer(rateLimitHeader)
	defer server.Close()

	newAdaptiveClient := func(limit int, slackPercent int) (*http.Client, *RateLimitingRoundTripper) {
		rt, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, limit, RateLimitingRoundTripperOpts{
			Adaptation: RateLimitingRoundTripperAdaptation{
				ResponseHeaderName: rateLimitHeader,
				SlackPercent:       slackPercent,
			},
		})
		require.NoError(t, err)
		return &http.Client{Transport: rt}, rt
	}

	t.Run("limit from response header is applied", func(t *testing.T) {
		client, rt := newAdaptiveClient(6, 0)

		got := timedGet(client, server.URL+"?rateLimit=1")
		require.NoError(t, got.err)
		require.Equal(t, http.StatusOK, got.resp.StatusCode)
		require.Equal(t, rate.Limit(1), rt.limiter.Limit())
		require.Equal(t, 6, rt.RateLimit, "the configured limit should be kept for restoring")

		got = timedGet(client, server.URL)
		require.NoError(t, got.err)
		require.WithinDuration(t, got.start.Add(time.Second), got.end, tolerance,
			"the next request should follow the reported limit")
	})

	t.Run("limit from response header cannot exceed the configured one", func(t *testing.T) {
		client, rt := newAdaptiveClient(10, 0)
		got := timedGet(client, server.URL+"?rateLimit=25")
		require.NoError(t, got.err)
		require.Equal(t, http.StatusOK, got.resp.StatusCode)
		require.Equal(t, rate.Limit(10), rt.limiter.Limit())
		require.Equal(t, 10, rt.RateLimit)
	})

	t.Run("slack percent reduces the reported limit", func(t *testing.T) {
		client, rt := newAdaptiveClient(10, 30)
		got := timedGet(client, server.URL+"?rateLimit=10")
		require.NoError(t, got.err)
		require.Equal(t, http.StatusOK, got.resp.StatusCode)
		require.Equal(t, rate.Limit(7), rt.limiter.Limit())
		require.Equal(t, 10, rt.RateLimit)
	})

	t.Run("invalid header values are ignored", func(t *testing.T) {
		client, rt := newAdaptiveClient(50, 0)
		for _, rl := range []string{"unlimited", "-1", "2.5"} {
			got := timedGet(client, server.URL+"?rateLimit="+rl)
			require.NoError(t, got.err)
			require.Equal(t, http.StatusOK, got.resp.StatusCode)
			require.Equal(t, rate.Limit(50), rt.limiter.Limit())
			require.Equal(t, 50, rt.RateLimit)
		}
	})

	t.Run("zero reported limit degrades to 1 rps instead of stopping", func(t *testing.T) {
		client, rt := newAdaptiveClient(10, 0)
		got := timedGet(client, server.URL+"?rateLimit=0")
		require.NoError(t, got.err)
		require.Equal(t, http.StatusOK, got.resp.StatusCode)
		require.Equal(t, rate.Limit(1), rt.limiter.Limit())
		require.Equal(t, 10, rt.RateLimit)
	})

	t.Run("limit is restored when the header is gone", func(t *testing.T) {
		client, rt := newAdaptiveClient(8, 0)

		got := timedGet(client, server.URL+"?rateLimit=4")
		require.NoError(t, got.err)
		require.Equal(t, rate.Limit(4), rt.limiter.Limit())

		got = timedGet(client, server.URL)
		require.NoError(t, got.err)
		require.Equal(t, http.StatusOK, got.resp.StatusCode)
		require.Equal(t, rate.Limit(8), rt.limiter.Limit())
		require.Equal(t, 8, rt.RateLimit)
	})
}
