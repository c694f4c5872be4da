/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is a DataProvider implementation that uses the viper library under the hood.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter returns a ViperAdapter backed by a fresh viper instance.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper: viper.New()}
}

// UseEnvVars enables reading configuration parameters from environment variables.
// Only variables starting with the upper-cased prefix and "_" are considered,
// e.g. for the "myapp" prefix, the key "server.address" maps to "MYAPP_SERVER_ADDRESS".
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.AutomaticEnv()
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.SetEnvPrefix(prefix)
}

// Set forces the value for the key. It takes priority over values
// coming from files and environment variables.
func (va *ViperAdapter) Set(key string, value interface{}) {
	va.viper.Set(key, value)
}

// SetDefault registers the fallback value for the key.
// Default is only used when no value is provided by the user via config or ENV.
func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.viper.SetDefault(key, value)
}

// SetFromFile specifies that configuration data will be discovered and loaded from a file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	va.viper.SetConfigFile(path)
	return va.viper.ReadInConfig()
}

// SetFromReader specifies that configuration data will be discovered and loaded from a reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// IsSet reports whether the key has a value in any of the data locations.
// Key matching is case-insensitive.
func (va *ViperAdapter) IsSet(key string) bool {
	return va.viper.IsSet(key)
}

// Get returns the raw value stored under the key, or nil if the key is unset.
func (va *ViperAdapter) Get(key string) interface{} {
	return va.viper.Get(key)
}

// GetBool reads the value for the key and converts it to a bool.
func (va *ViperAdapter) GetBool(key string) (bool, error) {
	return castValue(va, key, cast.ToBoolE)
}

// GetInt reads the value for the key and converts it to an int.
func (va *ViperAdapter) GetInt(key string) (int, error) {
	return castValue(va, key, cast.ToIntE)
}

// GetFloat64 reads the value for the key and converts it to a float64.
func (va *ViperAdapter) GetFloat64(key string) (float64, error) {
	return castValue(va, key, cast.ToFloat64E)
}

// GetString reads the value for the key and converts it to a string.
func (va *ViperAdapter) GetString(key string) (string, error) {
	return castValue(va, key, cast.ToStringE)
}

// GetStringFromSet reads the value for the key as a string and checks it
// against the allowed set.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	got, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, allowed := range set {
		if (ignoreCase && strings.EqualFold(got, allowed)) || got == allowed {
			return got, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", got, set))
}

// GetDuration reads the value for the key and converts it to a time.Duration.
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	raw := va.Get(key)
	if raw == nil {
		return 0, nil
	}
	res, err := cast.ToDurationE(raw)
	return res, WrapKeyErrIfNeeded(key, err)
}

// GetByteSize reads the value for the key as a size in bytes.
// Both bare integers and human-readable strings (e.g. "256M", "1Gi") are accepted.
func (va *ViperAdapter) GetByteSize(key string) (ByteSize, error) {
	raw := va.Get(key)
	if raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case string:
		bs, err := parseByteSizeFromString(v)
		if err != nil {
			return 0, WrapKeyErr(key, err)
		}
		return bs, nil

	case int, int8, int16, int32, int64:
		n := cast.ToInt64(raw)
		if n < 0 {
			return 0, WrapKeyErr(key, fmt.Errorf("value should be >= 0, got %d", n))
		}
		return ByteSize(n), nil

	case uint, uint8, uint16, uint32, uint64:
		return ByteSize(cast.ToUint64(raw)), nil

	case float32, float64:
		return ByteSize(uint64(cast.ToFloat64(raw))), nil

	case ByteSize:
		return v, nil

	default:
		return 0, WrapKeyErr(key, fmt.Errorf("unsupported type for byte size: %T", raw))
	}
}

// Unmarshal unmarshals the whole config into a struct.
func (va *ViperAdapter) Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error {
	return va.viper.Unmarshal(rawVal, toViperDecoderOpts(opts)...)
}

// UnmarshalKey takes a single key and unmarshals it into a struct.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return WrapKeyErrIfNeeded(key, va.viper.UnmarshalKey(key, rawVal, toViperDecoderOpts(opts)...))
}

// WrapKeyErr annotates err with the key it relates to.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}

// castValue reads the raw value for the key and converts it with one of the cast.To*E functions.
func castValue[T any](va *ViperAdapter, key string, convert func(interface{}) (T, error)) (T, error) {
	res, err := convert(va.Get(key))
	return res, WrapKeyErrIfNeeded(key, err)
}

func toViperDecoderOpts(opts []DecoderConfigOption) []viper.DecoderConfigOption {
	vopts := make([]viper.DecoderConfigOption, len(opts))
	for i, opt := range opts {
		vopts[i] = viper.DecoderConfigOption(opt)
	}
	return vopts
}
