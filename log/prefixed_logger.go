/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import "fmt"

// PrefixedLogger decorates another FieldLogger and prepends a fixed text
// to every logged message.
type PrefixedLogger struct {
	base   FieldLogger
	prefix string
}

// NewPrefixedLogger makes a logger that writes all messages through base
// with the given prefix prepended.
func NewPrefixedLogger(base FieldLogger, prefix string) FieldLogger {
	return &PrefixedLogger{base: base, prefix: prefix}
}

// With returns a logger that adds the given fields to every entry.
func (l *PrefixedLogger) With(fs ...Field) FieldLogger {
	return &PrefixedLogger{base: l.base.With(fs...), prefix: l.prefix}
}

// Debug logs a message at "debug" level.
func (l *PrefixedLogger) Debug(text string, fs ...Field) {
	l.base.Debug(l.prefix+text, fs...)
}

// Info logs a message at "info" level.
func (l *PrefixedLogger) Info(text string, fs ...Field) {
	l.base.Info(l.prefix+text, fs...)
}

// Warn logs a message at "warn" level.
func (l *PrefixedLogger) Warn(text string, fs ...Field) {
	l.base.Warn(l.prefix+text, fs...)
}

// Error logs a message at "error" level.
func (l *PrefixedLogger) Error(text string, fs ...Field) {
	l.base.Error(l.prefix+text, fs...)
}

// Debugf formats and logs a message at "debug" level.
func (l *PrefixedLogger) Debugf(format string, args ...interface{}) {
	l.base.Debug(l.prefix + fmt.Sprintf(format, args...))
}

// Infof formats and logs a message at "info" level.
func (l *PrefixedLogger) Infof(format string, args ...interface{}) {
	l.base.Info(l.prefix + fmt.Sprintf(format, args...))
}

// Warnf formats and logs a message at "warn" level.
func (l *PrefixedLogger) Warnf(format string, args ...interface{}) {
	l.base.Warn(l.prefix + fmt.Sprintf(format, args...))
}

// Errorf formats and logs a message at "error" level.
func (l *PrefixedLogger) Errorf(format string, args ...interface{}) {
	l.base.Error(l.prefix + fmt.Sprintf(format, args...))
}

// AtLevel invokes fn only when the given level is enabled,
// passing a LogFunc bound to that level.
func (l *PrefixedLogger) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.base.AtLevel(level, func(logFunc LogFunc) {
		fn(l.prefixedLogFunc(logFunc))
	})
}

// WithLevel returns a new logger with an additional level check.
// Messages below both the given level and the previously set one are dropped,
// so the effective level can only be raised.
func (l *PrefixedLogger) WithLevel(level Level) FieldLogger {
	return &PrefixedLogger{base: l.base.WithLevel(level), prefix: l.prefix}
}

func (l *PrefixedLogger) prefixedLogFunc(logFunc LogFunc) LogFunc {
	return func(msg string, fs ...Field) {
		logFunc(l.prefix+msg, fs...)
	}
}
