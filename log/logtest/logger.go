/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ssgreg/logf"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
)

type lockedEntryWriter struct {
	sync.Mutex
	enc logf.Encoder
	out io.Writer
}

//nolint:gocritic
func (w *lockedEntryWriter) WriteEntry(e logf.Entry) {
	w.Lock()
	defer w.Unlock()

	var buf logf.Buffer
	if err := w.enc.Encode(&buf, e); err != nil {
		_, _ = fmt.Fprint(w.out, err)
		return
	}
	_, _ = w.out.Write(buf.Data)
}

// LoggerOpts allows setting custom options for the test logger, such as the output target.
type LoggerOpts struct {
	Output io.Writer
}

// NewLogger returns a simple preconfigured logger (output: stderr, format: json, level: debug).
// It's handy in tests and should never be used in production due to slow performance.
func NewLogger() log.FieldLogger {
	return NewLoggerWithOpts(LoggerOpts{Output: os.Stderr})
}

// NewLoggerWithOpts returns a logger instance configured according to the provided options.
// If opts.Output is nil, os.Stderr is used.
func NewLoggerWithOpts(opts LoggerOpts) log.FieldLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	w := &lockedEntryWriter{
		enc: logf.NewJSONEncoder(logf.JSONEncoderConfig{
			EncodeTime:   logf.RFC3339NanoTimeEncoder,
			FieldKeyTime: "time",
		}),
		out: out,
	}
	return &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}
}
