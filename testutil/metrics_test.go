/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRequireSamplesCountInCounter(t *testing.T) {
	dispatchedCounter := prometheus.NewCounter(prometheus.CounterOpts{Name: "payments_dispatched_total"})
	dispatchedCounter.Add(42)

	mockT := &MockT{}
	RequireSamplesCountInCounter(mockT, dispatchedCounter, 41)
	require.True(t, mockT.Failed)

	mockT = &MockT{}
	RequireSamplesCountInCounter(mockT, dispatchedCounter, 42)
	require.False(t, mockT.Failed)
}

func TestRequireSamplesCountInHistogram(t *testing.T) {
	durationHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_request_duration_seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10},
	})
	durationHistogram.Observe(0.3)

	mockT := &MockT{}
	RequireSamplesCountInHistogram(mockT, durationHistogram, 0)
	require.True(t, mockT.Failed)

	mockT = &MockT{}
	RequireSamplesCountInHistogram(mockT, durationHistogram, 1)
	require.False(t, mockT.Failed)
}
