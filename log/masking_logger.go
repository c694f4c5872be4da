package log

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"unsafe"

	"github.com/ssgreg/logf"
)

// MaskingLogger masks secrets in messages and fields before they reach
// the underlying logger. It keeps credentials and card data out of the logs
// when HTTP traffic is dumped in debug mode, and covers the case of a secret
// passed via URL (like &api_key=<secret>) surfacing in a connectivity error.
type MaskingLogger struct {
	log    FieldLogger
	masker StringMasker
}

// StringMasker masks secrets in a string.
type StringMasker interface {
	Mask(s string) string
}

func NewMaskingLogger(l FieldLogger, m StringMasker) FieldLogger {
	return MaskingLogger{log: l, masker: m}
}

// With returns a logger that adds the given fields to every entry.
func (l MaskingLogger) With(fs ...Field) FieldLogger {
	return MaskingLogger{log: l.log.With(l.maskFields(fs)...), masker: l.masker}
}

// Debug logs a message at "debug" level.
func (l MaskingLogger) Debug(text string, fs ...Field) {
	l.log.Debug(l.masker.Mask(text), l.maskFields(fs)...)
}

// Info logs a message at "info" level.
func (l MaskingLogger) Info(text string, fs ...Field) {
	l.log.Info(l.masker.Mask(text), l.maskFields(fs)...)
}

// Warn logs a message at "warn" level.
func (l MaskingLogger) Warn(text string, fs ...Field) {
	l.log.Warn(l.masker.Mask(text), l.maskFields(fs)...)
}

// Error logs a message at "error" level.
func (l MaskingLogger) Error(text string, fs ...Field) {
	l.log.Error(l.masker.Mask(text), l.maskFields(fs)...)
}

// Debugf logs a formatted message at "debug" level.
func (l MaskingLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at "info" level.
func (l MaskingLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at "warn" level.
func (l MaskingLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at "error" level.
func (l MaskingLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// AtLevel invokes fn only when the given level is enabled,
// passing a LogFunc bound to that level.
func (l MaskingLogger) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.log.AtLevel(level, func(logFunc LogFunc) {
		fn(func(msg string, fs ...Field) {
			logFunc(l.masker.Mask(msg), l.maskFields(fs)...)
		})
	})
}

// WithLevel returns a new logger with an additional level check.
// Messages below both the given level and the previously set one are dropped,
// so the effective level can only be raised.
func (l MaskingLogger) WithLevel(level Level) FieldLogger {
	return MaskingLogger{log: l.log.WithLevel(level), masker: l.masker}
}

// maskFields masks secrets in log fields.
// The passed slice is never modified, a copy is returned when anything had to be masked.
func (l MaskingLogger) maskFields(fields []Field) []Field {
	var masked []Field // allocated on the first replacement
	for i := range fields {
		newField, changed := l.maskOneField(&fields[i])
		if !changed {
			continue
		}
		if masked == nil {
			masked = make([]Field, len(fields))
			copy(masked, fields)
		}
		masked[i] = newField
	}
	if masked == nil {
		return fields
	}
	return masked
}

var stringSliceType = reflect.TypeOf([]string{})

func (l MaskingLogger) maskOneField(f *Field) (Field, bool) {
	switch f.Type {
	case logf.FieldTypeBytesToString:
		s := *(*string)(unsafe.Pointer(&f.Bytes)) // nolint: gosec
		if masked := l.masker.Mask(s); masked != s {
			return String(f.Key, masked), true
		}

	case logf.FieldTypeError:
		if f.Any == nil {
			break
		}
		err := f.Any.(error)
		s := err.Error()
		if masked := l.masker.Mask(s); masked != s {
			return NamedError(f.Key, newMaskedError(err, l.masker, masked)), true
		}

	case logf.FieldTypeBytes, logf.FieldTypeRawBytes:
		if f.Bytes == nil {
			break
		}
		if masked := l.masker.Mask(string(f.Bytes)); masked != string(f.Bytes) {
			return logf.ConstBytes(f.Key, []byte(masked)), true
		}

	case logf.FieldTypeArray:
		if f.Any == nil {
			break
		}
		value := reflect.ValueOf(f.Any)
		if !value.CanConvert(stringSliceType) {
			break
		}
		items := value.Convert(stringSliceType).Interface().([]string)
		var changed bool
		masked := make([]string, len(items))
		for i, s := range items {
			masked[i] = l.masker.Mask(s)
			if masked[i] != s {
				changed = true
			}
		}
		if changed {
			return Strings(f.Key, masked), true
		}

	case logf.FieldTypeAny:
		// NOTE: Not masked
	}
	return Field{}, false
}

func newMaskedError(err error, m StringMasker, masked string) error {
	if _, ok := err.(fmt.Formatter); ok {
		return maskedError{
			s:        masked,
			verboseS: m.Mask(fmt.Sprintf("%+v", err)),
		}
	}
	return errors.New(masked)
}

// maskedError is needed to support the logf "error_verbose" field.
type maskedError struct {
	s        string
	verboseS string
}

func (e maskedError) Error() string {
	return e.s
}

func (e maskedError) Format(f fmt.State, verb rune) {
	_, _ = io.WriteString(f, e.verboseS)
}
