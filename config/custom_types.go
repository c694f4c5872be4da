/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize represents a size in bytes for using in configuration structures.
// Both bare integers and human-readable strings (e.g. "42GB", "256Mi") can be parsed
// from JSON, YAML, and text (the latter is used by mapstructure.TextUnmarshallerHookFunc).
type ByteSize uint64

// UnmarshalJSON implements the json.Unmarshaler interface.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		size, perr := parseByteSizeFromString(s)
		if perr != nil {
			return perr
		}
		*b = size
		return nil
	}
	if n < 0 {
		return fmt.Errorf("value should be >= 0, got %d", n)
	}
	*b = ByteSize(n)
	return nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n uint64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err == nil {
		size, perr := parseByteSizeFromString(s)
		if perr != nil {
			return perr
		}
		*b = size
		return nil
	}
	return fmt.Errorf("parse byte size from yaml node: %v", value)
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (b *ByteSize) UnmarshalText(text []byte) error {
	return b.UnmarshalJSON(text)
}

// String implements the fmt.Stringer interface.
func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// MarshalJSON implements the json.Marshaler interface, encoding as a human-readable string.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalYAML implements the yaml.Marshaler interface, encoding as a human-readable string.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// MarshalText implements the encoding.TextMarshaler interface, encoding as a human-readable string.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func parseByteSizeFromString(s string) (ByteSize, error) {
	v := strings.TrimSpace(s)

	// Handle k8s power-of-two suffixes ("Ki", "Mi", ...), bytefmt understands only the single-letter form.
	for _, k8sSuffix := range [...]string{"Ki", "Mi", "Gi", "Ti", "Pi", "Ei"} {
		if strings.HasSuffix(v, k8sSuffix) {
			v = v[:len(v)-1]
			break
		}
	}

	num, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("parse byte size %q: %w", s, err)
	}
	return ByteSize(num), nil
}

// TimeDuration represents a duration for using in configuration structures.
// Both bare integers (nanoseconds) and human-readable strings (e.g. "1h30m") can be parsed
// from JSON, YAML, and text (the latter is used by mapstructure.TextUnmarshallerHookFunc).
type TimeDuration time.Duration

// UnmarshalJSON implements the json.Unmarshaler interface.
func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		parsed, perr := parseTimeDurationFromString(s)
		if perr != nil {
			return perr
		}
		*d = parsed
		return nil
	}
	if n < 0 {
		return fmt.Errorf("value should be >= 0, got %d", n)
	}
	*d = TimeDuration(n)
	return nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		if n < 0 {
			return fmt.Errorf("value should be >= 0, got %d", n)
		}
		*d = TimeDuration(n)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, perr := parseTimeDurationFromString(raw)
		if perr != nil {
			return perr
		}
		*d = parsed
		return nil
	}
	return fmt.Errorf("parse time duration from yaml node: %v", value)
}

func parseTimeDurationFromString(s string) (TimeDuration, error) {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse time duration %q: %w", s, err)
	}
	return TimeDuration(parsed), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	return d.UnmarshalJSON(text)
}

// String implements the fmt.Stringer interface.
func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements the json.Marshaler interface, encoding as a human-readable string.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalYAML implements the yaml.Marshaler interface, encoding as a human-readable string.
func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// MarshalText implements the encoding.TextMarshaler interface, encoding as a human-readable string.
func (d TimeDuration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
