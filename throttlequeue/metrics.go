/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Enqueue outcomes reported to the metrics collector.
const (
	EnqueueResultAccepted          = "accepted"
	EnqueueResultRejectedRateLimit = "rejected_rate_limit"
	EnqueueResultRejectedQueueFull = "rejected_queue_full"
	EnqueueResultRejectedClosed    = "rejected_closed"
)

// Request function outcomes reported to the metrics collector.
const (
	RequestStatusOK    = "ok"
	RequestStatusError = "error"
	RequestStatusPanic = "panic"
)

// MetricsCollector represents a collector of queue metrics.
type MetricsCollector interface {
	// IncEnqueuedTotal increments the counter of Enqueue calls with their outcome.
	IncEnqueuedTotal(result string)

	// SetPendingAmount sets the current number of admitted requests waiting for dispatch.
	SetPendingAmount(amount int)

	// SetInFlightAmount sets the current number of running request functions.
	SetInFlightAmount(amount int)

	// ObserveWaitDuration observes the time a request spent waiting for dispatch.
	ObserveWaitDuration(d time.Duration)

	// ObserveRequestDuration observes the execution time of a request function with its outcome.
	ObserveRequestDuration(status string, d time.Duration)
}

// Metric label names.
const (
	metricsLabelResult = "result"
	metricsLabelStatus = "status"
)

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets for the duration histograms.
	// prometheus.DefBuckets is used if not set.
	DurationBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// See PrometheusMetrics.MustCurryWith method for more details.
	// Keep in mind that if this list is not empty,
	// PrometheusMetrics.MustCurryWith method must be called further with the same labels.
	// Otherwise, the collector will panic.
	CurriedLabelNames []string
}

// PrometheusMetrics represents Prometheus metrics for the queue.
type PrometheusMetrics struct {
	EnqueuedTotal    *prometheus.CounterVec
	PendingRequests  *prometheus.GaugeVec
	InFlightRequests *prometheus.GaugeVec
	WaitDuration     *prometheus.HistogramVec
	RequestDuration  *prometheus.HistogramVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	durationBuckets := opts.DurationBuckets
	if durationBuckets == nil {
		durationBuckets = prometheus.DefBuckets
	}

	enqueuedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_queue_enqueued_total",
			Help:        "Number of Enqueue calls by outcome.",
			ConstLabels: opts.ConstLabels,
		},
		append(opts.CurriedLabelNames, metricsLabelResult),
	)

	pendingRequests := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_queue_pending_requests",
			Help:        "Number of admitted requests waiting for dispatch.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	inFlightRequests := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_queue_in_flight_requests",
			Help:        "Number of running request functions.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	waitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_queue_wait_duration_seconds",
			Help:        "Time requests spend waiting for dispatch.",
			Buckets:     durationBuckets,
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_queue_request_duration_seconds",
			Help:        "Execution time of request functions by outcome.",
			Buckets:     durationBuckets,
			ConstLabels: opts.ConstLabels,
		},
		append(opts.CurriedLabelNames, metricsLabelStatus),
	)

	return &PrometheusMetrics{
		EnqueuedTotal:    enqueuedTotal,
		PendingRequests:  pendingRequests,
		InFlightRequests: inFlightRequests,
		WaitDuration:     waitDuration,
		RequestDuration:  requestDuration,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		EnqueuedTotal:    pm.EnqueuedTotal.MustCurryWith(labels),
		PendingRequests:  pm.PendingRequests.MustCurryWith(labels),
		InFlightRequests: pm.InFlightRequests.MustCurryWith(labels),
		WaitDuration:     pm.WaitDuration.MustCurryWith(labels).(*prometheus.HistogramVec),
		RequestDuration:  pm.RequestDuration.MustCurryWith(labels).(*prometheus.HistogramVec),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.EnqueuedTotal,
		pm.PendingRequests,
		pm.InFlightRequests,
		pm.WaitDuration,
		pm.RequestDuration,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.EnqueuedTotal)
	prometheus.Unregister(pm.PendingRequests)
	prometheus.Unregister(pm.InFlightRequests)
	prometheus.Unregister(pm.WaitDuration)
	prometheus.Unregister(pm.RequestDuration)
}

// IncEnqueuedTotal increments the counter of Enqueue calls with their outcome.
func (pm *PrometheusMetrics) IncEnqueuedTotal(result string) {
	pm.EnqueuedTotal.With(prometheus.Labels{metricsLabelResult: result}).Inc()
}

// SetPendingAmount sets the current number of admitted requests waiting for dispatch.
func (pm *PrometheusMetrics) SetPendingAmount(amount int) {
	pm.PendingRequests.With(nil).Set(float64(amount))
}

// SetInFlightAmount sets the current number of running request functions.
func (pm *PrometheusMetrics) SetInFlightAmount(amount int) {
	pm.InFlightRequests.With(nil).Set(float64(amount))
}

// ObserveWaitDuration observes the time a request spent waiting for dispatch.
func (pm *PrometheusMetrics) ObserveWaitDuration(d time.Duration) {
	pm.WaitDuration.With(nil).Observe(d.Seconds())
}

// ObserveRequestDuration observes the execution time of a request function with its outcome.
func (pm *PrometheusMetrics) ObserveRequestDuration(status string, d time.Duration) {
	pm.RequestDuration.With(prometheus.Labels{metricsLabelStatus: status}).Observe(d.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) IncEnqueuedTotal(string)                      {}
func (disabledMetrics) SetPendingAmount(int)                         {}
func (disabledMetrics) SetInFlightAmount(int)                        {}
func (disabledMetrics) ObserveWaitDuration(time.Duration)            {}
func (disabledMetrics) ObserveRequestDuration(string, time.Duration) {}
