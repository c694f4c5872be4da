package log_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/ssgreg/logf"
	"github.com/stretchr/testify/require"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
	"github.com/gitboycryptogeek/tassiac-sub000/log/logtest"
)

func TestMaskingLogger(t *testing.T) {
	recorder := logtest.NewRecorder()
	ml := log.NewMaskingLogger(recorder, log.NewMasker(log.DefaultMasks))

	requireEntryAndReset := func(wantText string, wantLevel log.Level, wantFields ...log.Field) {
		entries := recorder.Entries()
		require.Len(t, entries, 1)
		require.Equal(t, wantText, entries[0].Text)
		require.Equal(t, wantLevel, entries[0].Level)
		require.ElementsMatch(t, wantFields, entries[0].Fields)
		recorder.Reset()
	}

	ml.Error("api_key=sk-live-82jd", log.String("value", "api_key=sk-live-94xc"),
		log.Error(errors.New("api_key=sk-test-113a")))
	requireEntryAndReset("api_key=***", log.LevelError, log.String("value", "api_key=***"),
		log.Error(errors.New("api_key=***")))

	ml.Info("access_token=tok-5f21", log.String("value", "access_token=tok-5f22"),
		log.Error(errors.New("access_token=tok-5f23")))
	requireEntryAndReset("access_token=***", log.LevelInfo, log.String("value", "access_token=***"),
		log.Error(errors.New("access_token=***")))

	ml.Warn("refresh_token=rt-8842", log.String("value", "refresh_token=rt-8843"),
		log.Error(errors.New("refresh_token=rt-8844")))
	requireEntryAndReset("refresh_token=***", log.LevelWarn, log.String("value", "refresh_token=***"),
		log.Error(errors.New("refresh_token=***")))

	ml.Debug("pin=4431", log.String("value", "pin=4432"), log.Error(errors.New("pin=4433")))
	requireEntryAndReset("pin=***", log.LevelDebug, log.String("value", "pin=***"),
		log.Error(errors.New("pin=***")))

	ml.Errorf("client_secret=%d", 9423)
	requireEntryAndReset("client_secret=***", log.LevelError)

	ml.Infof("client_secret=%d", 9424)
	requireEntryAndReset("client_secret=***", log.LevelInfo)

	ml.Warnf("client_secret=%d", 9425)
	requireEntryAndReset("client_secret=***", log.LevelWarn)

	ml.Debugf("client_secret=%d", 9426)
	requireEntryAndReset("client_secret=***", log.LevelDebug)

	ml.With(log.String("value", "password=hunter2"),
		log.NamedError("error_field", errors.New("password=hunter3"))).Info("password=hunter4")
	requireEntryAndReset("password=***", log.LevelInfo, log.String("value", "password=***"),
		log.NamedError("error_field", errors.New("password=***")))

	ml.AtLevel(log.LevelInfo, func(l log.LogFunc) {
		l("api_key=sk-live-82jd", log.String("value", "api_key=sk-live-82jd"))
	})
	requireEntryAndReset("api_key=***", log.LevelInfo, log.String("value", "api_key=***"))

	ml.WithLevel(log.LevelInfo).Info("access_token=tok-5f21", log.String("value", "access_token=***"))
	requireEntryAndReset("access_token=***", log.LevelInfo, log.String("value", "access_token=***"))

	ml.Error("charge failed", log.Error(verboseErr{errors.New("pin=4431")}))
	got := fmt.Sprint(recorder.Entries()[0].Fields[0].Any)
	require.Contains(t, got, "pin=***")
	require.Contains(t, got, "password=***")
	recorder.Reset()

	ml.Info("api_key=sk-live-82jd", log.Strings("value", []string{"api_key=sk-live-94xc"}))
	requireEntryAndReset("api_key=***", log.LevelInfo, log.Strings("value", []string{"api_key=***"}))

	ml.Info("api_key=sk-live-82jd", log.Bytes("value", []byte("api_key=sk-live-94xc")))
	requireEntryAndReset("api_key=***", log.LevelInfo, logf.ConstBytes("value", []byte("api_key=***")))
}

func TestMaskingLoggerLeavesCleanFieldsUntouched(t *testing.T) {
	recorder := logtest.NewRecorder()
	ml := log.NewMaskingLogger(recorder, log.NewMasker(log.DefaultMasks))

	ml.Info("payment completed", log.String("reference", "TXN-2023-0042"), log.Int("amount", 1500))

	entries := recorder.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "payment completed", entries[0].Text)
	require.ElementsMatch(t, []log.Field{log.String("reference", "TXN-2023-0042"), log.Int("amount", 1500)}, entries[0].Fields)
}

type verboseErr struct {
	err error
}

func (e verboseErr) Error() string {
	return e.err.Error()
}

func (e verboseErr) Format(f fmt.State, verb rune) {
	_, _ = io.WriteString(f, e.Error()+" password=0042")
}
