/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides a log.FieldLogger implementation for inspecting logged entries in tests.
package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
)

// RecordedEntry is a single captured log entry.
type RecordedEntry struct {
	LoggerName string
	Fields     []log.Field
	Level      log.Level
	Time       time.Time
	Text       string
}

// FindField tries to find a field in the logged entry by key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

type captureWriter struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (w *captureWriter) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)
	entry := RecordedEntry{
		LoggerName: e.LoggerName,
		Fields:     fields,
		Level:      levelFromLogf(e.Level),
		Time:       e.Time,
		Text:       e.Text,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry)
}

// Recorder is a log.FieldLogger that captures all logged entries
// so that tests can inspect them.
type Recorder struct {
	*log.LogfAdapter
	writer *captureWriter
}

// NewRecorder creates a Recorder that captures entries at debug level and above.
func NewRecorder() *Recorder {
	w := &captureWriter{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}, w}
}

// With returns a derived Recorder that attaches the extra fields to every entry.
// Entries logged through the derived logger land in the same Recorder.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.writer}
}

// WithLevel returns a new Recorder with an additional level check.
// Entries below both the given level and the previously set one are dropped,
// so the effective level can only be raised.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), r.writer}
}

// Entries returns a copy of all captured entries.
func (r *Recorder) Entries() []RecordedEntry {
	r.writer.mu.RLock()
	defer r.writer.mu.RUnlock()
	return append([]RecordedEntry{}, r.writer.entries...)
}

// FindEntry tries to find a captured entry by message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(e RecordedEntry) bool {
		return e.Text == msg
	})
}

// FindEntryByFilter tries to find a captured entry matching the filter (callback).
func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	r.writer.mu.RLock()
	defer r.writer.mu.RUnlock()
	for _, e := range r.writer.entries {
		if filter(e) {
			return e, true
		}
	}
	return RecordedEntry{}, false
}

// FindAllEntriesByFilter finds all captured entries matching the filter (callback).
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	r.writer.mu.RLock()
	defer r.writer.mu.RUnlock()
	var found []RecordedEntry
	for _, e := range r.writer.entries {
		if filter(e) {
			found = append(found, e)
		}
	}
	return found
}

// Reset drops all captured entries.
func (r *Recorder) Reset() {
	r.writer.mu.Lock()
	defer r.writer.mu.Unlock()
	r.writer.entries = nil
}

func levelFromLogf(lv logf.Level) log.Level {
	switch lv {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelInfo:
		return log.LevelInfo
	case logf.LevelDebug:
		return log.LevelDebug
	}
	return log.LevelInfo
}
