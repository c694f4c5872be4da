/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import "github.com/prometheus/client_golang/prometheus"

// Metric names exposed by PrometheusMetrics.
const (
	metricNameEntriesAmount  = "cache_entries_amount"
	metricNameHitsTotal      = "cache_hits_total"
	metricNameMissesTotal    = "cache_misses_total"
	metricNameEvictionsTotal = "cache_evictions_total"
)

// MetricsCollector receives cache usage events.
// Implementations should be fast and must not call back into the cache.
type MetricsCollector interface {
	// SetAmount records the current number of entries in the cache.
	SetAmount(int)

	// IncHits counts a lookup that found its key.
	IncHits()

	// IncMisses counts a lookup that did not find its key.
	IncMisses()

	// AddEvictions counts n evicted entries.
	AddEvictions(int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is prepended to all metric names.
	Namespace string

	// ConstLabels are applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames declares label names that MustCurryWith fills in later.
	// When the list is not empty, the collector panics on use
	// until MustCurryWith is called with values for all of them.
	CurriedLabelNames []string
}

// PrometheusMetrics implements MetricsCollector on top of Prometheus collectors.
type PrometheusMetrics struct {
	EntriesAmount  *prometheus.GaugeVec
	HitsTotal      *prometheus.CounterVec
	MissesTotal    *prometheus.CounterVec
	EvictionsTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a collector with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts is a version of NewPrometheusMetrics that accepts options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	newCounterVec := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   opts.Namespace,
				Name:        name,
				Help:        help,
				ConstLabels: opts.ConstLabels,
			},
			opts.CurriedLabelNames,
		)
	}
	return &PrometheusMetrics{
		EntriesAmount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   opts.Namespace,
				Name:        metricNameEntriesAmount,
				Help:        "Total number of entries in the cache.",
				ConstLabels: opts.ConstLabels,
			},
			opts.CurriedLabelNames,
		),
		HitsTotal:      newCounterVec(metricNameHitsTotal, "Number of successfully found keys in the cache."),
		MissesTotal:    newCounterVec(metricNameMissesTotal, "Number of not found keys in the cache."),
		EvictionsTotal: newCounterVec(metricNameEvictionsTotal, "Number of evicted entries."),
	}
}

// MustCurryWith fills in values for the label names declared in CurriedLabelNames.
// The returned collector shares the underlying metric vectors with the receiver.
func (m *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		EntriesAmount:  m.EntriesAmount.MustCurryWith(labels),
		HitsTotal:      m.HitsTotal.MustCurryWith(labels),
		MissesTotal:    m.MissesTotal.MustCurryWith(labels),
		EvictionsTotal: m.EvictionsTotal.MustCurryWith(labels),
	}
}

// MustRegister registers all cache metrics in Prometheus and panics if any error occurs.
func (m *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		m.EntriesAmount,
		m.HitsTotal,
		m.MissesTotal,
		m.EvictionsTotal,
	)
}

// Unregister removes all cache metrics from Prometheus.
func (m *PrometheusMetrics) Unregister() {
	prometheus.Unregister(m.EntriesAmount)
	prometheus.Unregister(m.HitsTotal)
	prometheus.Unregister(m.MissesTotal)
	prometheus.Unregister(m.EvictionsTotal)
}

// SetAmount records the current number of entries in the cache.
func (m *PrometheusMetrics) SetAmount(amount int) {
	m.EntriesAmount.With(nil).Set(float64(amount))
}

// IncHits counts a lookup that found its key.
func (m *PrometheusMetrics) IncHits() {
	m.HitsTotal.With(nil).Inc()
}

// IncMisses counts a lookup that did not find its key.
func (m *PrometheusMetrics) IncMisses() {
	m.MissesTotal.With(nil).Inc()
}

// AddEvictions counts n evicted entries.
func (m *PrometheusMetrics) AddEvictions(n int) {
	m.EvictionsTotal.With(nil).Add(float64(n))
}

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)    {}
func (disabledMetrics) IncHits()         {}
func (disabledMetrics) IncMisses()       {}
func (disabledMetrics) AddEvictions(int) {}
