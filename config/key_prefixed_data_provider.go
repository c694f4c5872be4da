/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
	"strings"
	"time"
)

// KeyPrefixedDataProvider is a DataProvider implementation that resolves all keys
// under the specified prefix of the delegated provider.
type KeyPrefixedDataProvider struct {
	delegate  DataProvider
	keyPrefix string
}

var _ DataProvider = (*KeyPrefixedDataProvider)(nil)

// NewKeyPrefixedDataProvider creates a new KeyPrefixedDataProvider.
func NewKeyPrefixedDataProvider(delegate DataProvider, keyPrefix string) *KeyPrefixedDataProvider {
	return &KeyPrefixedDataProvider{delegate: delegate, keyPrefix: keyPrefix}
}

func (p *KeyPrefixedDataProvider) prefixedKey(key string) string {
	return strings.Trim(p.keyPrefix+"."+key, ".")
}

// UseEnvVars enables reading configuration parameters from environment variables.
func (p *KeyPrefixedDataProvider) UseEnvVars(prefix string) {
	p.delegate.UseEnvVars(prefix)
}

// Set forces the value for the prefixed key.
func (p *KeyPrefixedDataProvider) Set(key string, value interface{}) {
	p.delegate.Set(p.prefixedKey(key), value)
}

// SetDefault registers the fallback value for the prefixed key.
func (p *KeyPrefixedDataProvider) SetDefault(key string, value interface{}) {
	p.delegate.SetDefault(p.prefixedKey(key), value)
}

// SetFromFile specifies that configuration data will be discovered and loaded from a file.
func (p *KeyPrefixedDataProvider) SetFromFile(path string, dataType DataType) error {
	return p.delegate.SetFromFile(path, dataType)
}

// SetFromReader specifies that configuration data will be discovered and loaded from a reader.
func (p *KeyPrefixedDataProvider) SetFromReader(reader io.Reader, dataType DataType) error {
	return p.delegate.SetFromReader(reader, dataType)
}

// IsSet reports whether the prefixed key has a value in any of the data locations.
func (p *KeyPrefixedDataProvider) IsSet(key string) bool {
	return p.delegate.IsSet(p.prefixedKey(key))
}

// Get returns the raw value stored under the prefixed key, or nil if it is unset.
func (p *KeyPrefixedDataProvider) Get(key string) interface{} {
	return p.delegate.Get(p.prefixedKey(key))
}

// GetBool reads the value for the prefixed key and converts it to a bool.
func (p *KeyPrefixedDataProvider) GetBool(key string) (bool, error) {
	return p.delegate.GetBool(p.prefixedKey(key))
}

// GetInt reads the value for the prefixed key and converts it to an int.
func (p *KeyPrefixedDataProvider) GetInt(key string) (int, error) {
	return p.delegate.GetInt(p.prefixedKey(key))
}

// GetFloat64 reads the value for the prefixed key and converts it to a float64.
func (p *KeyPrefixedDataProvider) GetFloat64(key string) (float64, error) {
	return p.delegate.GetFloat64(p.prefixedKey(key))
}

// GetString reads the value for the prefixed key and converts it to a string.
func (p *KeyPrefixedDataProvider) GetString(key string) (string, error) {
	return p.delegate.GetString(p.prefixedKey(key))
}

// GetStringFromSet reads the value for the prefixed key as a string and checks it
// against the allowed set.
func (p *KeyPrefixedDataProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	return p.delegate.GetStringFromSet(p.prefixedKey(key), set, ignoreCase)
}

// GetDuration reads the value for the prefixed key and converts it to a time.Duration.
func (p *KeyPrefixedDataProvider) GetDuration(key string) (time.Duration, error) {
	return p.delegate.GetDuration(p.prefixedKey(key))
}

// GetByteSize reads the value for the prefixed key as a size in bytes.
func (p *KeyPrefixedDataProvider) GetByteSize(key string) (ByteSize, error) {
	return p.delegate.GetByteSize(p.prefixedKey(key))
}

// Unmarshal unmarshals the config under the prefix into a struct.
func (p *KeyPrefixedDataProvider) Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.delegate.UnmarshalKey(p.prefixedKey(""), rawVal, opts...)
}

// UnmarshalKey takes a single prefixed key and unmarshals it into a struct.
func (p *KeyPrefixedDataProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.delegate.UnmarshalKey(p.prefixedKey(key), rawVal, opts...)
}

// WrapKeyErr annotates err with the full prefixed key.
func (p *KeyPrefixedDataProvider) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(p.prefixedKey(key), err)
}
