/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
)

// Loader populates configuration objects from a data provider.
// Defaults are initialized in all objects first, then values are set.
type Loader struct {
	DataProvider DataProvider
}

// NewLoader creates a new configuration loader.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{dp}
}

// NewDefaultLoader creates a new configuration loader with an ability
// to read values from environment variables with the given prefix.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// LoadFromFile loads configuration values from a file and sets them in configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.load(cfg, cfgs)
}

// LoadFromReader loads configuration values from a reader and sets them in configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.load(cfg, cfgs)
}

func (l *Loader) load(cfg Config, restCfgs []Config) error {
	all := append([]Config{cfg}, restCfgs...)

	providers := make([]DataProvider, len(all))
	for i := range all {
		providers[i] = l.DataProvider
		if kpp, ok := all[i].(KeyPrefixProvider); ok && kpp.KeyPrefix() != "" {
			providers[i] = NewKeyPrefixedDataProvider(l.DataProvider, kpp.KeyPrefix())
		}
	}

	// Defaults of every object are in place before any values are set.
	for i := range all {
		all[i].SetProviderDefaults(providers[i])
	}
	for i := range all {
		if err := all[i].Set(providers[i]); err != nil {
			return err
		}
	}
	return nil
}
