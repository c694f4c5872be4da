/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultRequestType is used as a request type label when the caller did not specify one.
const DefaultRequestType = "unknown"

// ClassifyRequest does request classification, producing a non-parameterized summary for the given request.
// It may be set by the importing application to override the default "METHOD reqType" summary.
var ClassifyRequest func(r *http.Request, requestType string) string

// MetricsCollector is an interface for collecting metrics of outgoing requests.
type MetricsCollector interface {
	// RequestDuration records how long a request took together with its resulting status.
	RequestDuration(requestType, remoteAddress, summary, status string, startTime time.Time)
}

// PrometheusMetricsCollector is a Prometheus metrics collector for outgoing requests.
type PrometheusMetricsCollector struct {
	// Durations is a histogram of the request durations.
	Durations *prometheus.HistogramVec
}

// NewPrometheusMetricsCollector builds a collector backed by a Prometheus histogram.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_client_request_duration_seconds",
			Help:      "A histogram of the http client request durations.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"type", "remote_address", "summary", "status"}),
	}
}

// MustRegister registers the Prometheus metrics in the default registry and panics if any error occurs.
func (p *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(p.Durations)
}

// Unregister removes the Prometheus metrics from the default registry.
func (p *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(p.Durations)
}

// RequestDuration observes the time elapsed since start under the passed labels.
func (p *PrometheusMetricsCollector) RequestDuration(requestType, remoteAddress, summary, status string, start time.Time) {
	p.Durations.WithLabelValues(requestType, remoteAddress, summary, status).Observe(time.Since(start).Seconds())
}

// MetricsRoundTripper is an HTTP transport that measures outgoing requests.
type MetricsRoundTripper struct {
	// Delegate is the transport the request is handed to next.
	Delegate http.RoundTripper

	// RequestType is a type of request, e.g. a target service ("bank-api") or an action ("payment-status").
	RequestType string

	// Collector receives the measured durations.
	Collector MetricsCollector
}

// MetricsRoundTripperOpts represents options for MetricsRoundTripper.
type MetricsRoundTripperOpts struct {
	// RequestType is a type of request, e.g. a target service ("bank-api") or an action ("payment-status").
	RequestType string

	// Collector receives the measured durations.
	Collector MetricsCollector
}

// NewMetricsRoundTripper creates an HTTP transport that measures outgoing requests.
func NewMetricsRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{})
}

// NewMetricsRoundTripperWithOpts creates an HTTP transport that measures outgoing requests with options.
func NewMetricsRoundTripperWithOpts(delegate http.RoundTripper, opts MetricsRoundTripperOpts) http.RoundTripper {
	requestType := opts.RequestType
	if requestType == "" {
		requestType = DefaultRequestType
	}
	return &MetricsRoundTripper{
		Delegate:    delegate,
		RequestType: requestType,
		Collector:   opts.Collector,
	}
}

// RoundTrip executes a single HTTP transaction and measures its duration.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Collector == nil {
		return rt.Delegate.RoundTrip(r)
	}

	requestType := rt.RequestType
	if ctxRequestType := GetRequestTypeFromContext(r.Context()); ctxRequestType != "" {
		requestType = ctxRequestType
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)

	code := "0"
	if err == nil && resp != nil {
		code = strconv.Itoa(resp.StatusCode)
	}

	rt.Collector.RequestDuration(requestType, r.Host, summarizeRequest(r, requestType), code, start)
	return resp, err
}

func summarizeRequest(r *http.Request, requestType string) string {
	if ClassifyRequest != nil {
		return ClassifyRequest(r, requestType)
	}
	return r.Method + " " + requestType
}
