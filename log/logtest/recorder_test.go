/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
)

func TestRecorder(t *testing.T) {
	logRecorder := NewRecorder()
	logRecorder.Warn("payment delayed", log.Int("attempt", 3), log.String("payment_id", "pay-7"))
	logRecorder.Info("payment dispatched")

	require.Equal(t, 2, len(logRecorder.Entries()))

	_, found := logRecorder.FindEntry("refund issued")
	require.False(t, found)

	logEntry, found := logRecorder.FindEntry("payment delayed")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, logEntry.Level)
	require.Equal(t, "payment delayed", logEntry.Text)

	logFieldAttempt, found := logEntry.FindField("attempt")
	require.True(t, found)
	require.Equal(t, 3, int(logFieldAttempt.Int))

	logFieldPaymentID, found := logEntry.FindField("payment_id")
	require.True(t, found)
	require.Equal(t, "pay-7", string(logFieldPaymentID.Bytes))

	_, found = logEntry.FindField("currency")
	require.False(t, found)
}

func TestRecorderWith(t *testing.T) {
	logRecorder := NewRecorder()
	zoneLogger := logRecorder.With(log.String("zone", "payments"))
	zoneLogger.Info("queue drained")

	// Entries logged through the derived logger land in the same recorder.
	logEntry, found := logRecorder.FindEntry("queue drained")
	require.True(t, found)
	logFieldZone, found := logEntry.FindField("zone")
	require.True(t, found)
	require.Equal(t, "payments", string(logFieldZone.Bytes))
}

func TestRecorderFindAllEntriesByFilter(t *testing.T) {
	logRecorder := NewRecorder()
	logRecorder.Info("payment dispatched")
	logRecorder.Error("payment failed")
	logRecorder.Error("refund failed")

	failedEntries := logRecorder.FindAllEntriesByFilter(func(entry RecordedEntry) bool {
		return entry.Level == log.LevelError
	})
	require.Equal(t, 2, len(failedEntries))

	logRecorder.Reset()
	require.Empty(t, logRecorder.Entries())
}
