/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"fmt"
	"strings"
	"time"

	"github.com/gitboycryptogeek/tassiac-sub000/config"
)

const cfgDefaultKeyPrefix = "throttleQueue"

const (
	cfgKeyRateLimit           = "rateLimit"
	cfgKeyRateWindow          = "rateWindow"
	cfgKeyMaxConcurrent       = "maxConcurrent"
	cfgKeyDispatchBaseDelay   = "dispatchBaseDelay"
	cfgKeyDispatchMaxJitter   = "dispatchMaxJitter"
	cfgKeyWindowResetInterval = "windowResetInterval"
	cfgKeyMaxPending          = "maxPending"
	cfgKeyAdmission           = "admission"
)

// Default values of configuration parameters.
const (
	DefaultRateLimit           = 60
	DefaultRateWindow          = time.Minute
	DefaultMaxConcurrent       = 2
	DefaultDispatchBaseDelay   = 350 * time.Millisecond
	DefaultDispatchMaxJitter   = 50 * time.Millisecond
	DefaultWindowResetInterval = 10 * time.Second
)

// Config represents a set of configuration parameters for Queue.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// RateLimit is the maximum number of requests admitted per rate window.
	// If 0, DefaultRateLimit is used.
	RateLimit int `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`

	// RateWindow is the length of the rate window. If 0, DefaultRateWindow is used.
	RateWindow config.TimeDuration `mapstructure:"rateWindow" yaml:"rateWindow" json:"rateWindow"`

	// MaxConcurrent is the maximum number of request functions running at the same time.
	// If 0, DefaultMaxConcurrent is used.
	MaxConcurrent int `mapstructure:"maxConcurrent" yaml:"maxConcurrent" json:"maxConcurrent"`

	// DispatchBaseDelay is the pause between a request settlement and the next dispatch.
	// Zero means dispatch without a pause.
	DispatchBaseDelay config.TimeDuration `mapstructure:"dispatchBaseDelay" yaml:"dispatchBaseDelay" json:"dispatchBaseDelay"`

	// DispatchMaxJitter is the upper bound of the uniformly random addition to DispatchBaseDelay.
	// Zero disables the jitter.
	DispatchMaxJitter config.TimeDuration `mapstructure:"dispatchMaxJitter" yaml:"dispatchMaxJitter" json:"dispatchMaxJitter"`

	// WindowResetInterval is how often the background goroutine checks
	// whether the fixed rate window should be reset.
	// If 0, DefaultWindowResetInterval is used.
	WindowResetInterval config.TimeDuration `mapstructure:"windowResetInterval" yaml:"windowResetInterval" json:"windowResetInterval"`

	// MaxPending bounds the number of admitted requests waiting for dispatch.
	// 0 means no bound.
	MaxPending int `mapstructure:"maxPending" yaml:"maxPending" json:"maxPending"`

	// Admission selects the admission accounting algorithm:
	// "fixed_window" (default), "sliding_window", or "leaky_bucket".
	Admission string `mapstructure:"admission" yaml:"admission" json:"admission"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix:           opts.keyPrefix,
		RateLimit:           DefaultRateLimit,
		RateWindow:          config.TimeDuration(DefaultRateWindow),
		MaxConcurrent:       DefaultMaxConcurrent,
		DispatchBaseDelay:   config.TimeDuration(DefaultDispatchBaseDelay),
		DispatchMaxJitter:   config.TimeDuration(DefaultDispatchMaxJitter),
		WindowResetInterval: config.TimeDuration(DefaultWindowResetInterval),
		Admission:           AdmissionAlgFixedWindow,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRateLimit, DefaultRateLimit)
	dp.SetDefault(cfgKeyRateWindow, DefaultRateWindow.String())
	dp.SetDefault(cfgKeyMaxConcurrent, DefaultMaxConcurrent)
	dp.SetDefault(cfgKeyDispatchBaseDelay, DefaultDispatchBaseDelay.String())
	dp.SetDefault(cfgKeyDispatchMaxJitter, DefaultDispatchMaxJitter.String())
	dp.SetDefault(cfgKeyWindowResetInterval, DefaultWindowResetInterval.String())
	dp.SetDefault(cfgKeyAdmission, AdmissionAlgFixedWindow)
}

var availableAdmissionAlgs = []string{AdmissionAlgFixedWindow, AdmissionAlgSlidingWindow, AdmissionAlgLeakyBucket}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.RateLimit, err = dp.GetInt(cfgKeyRateLimit); err != nil {
		return err
	}
	if c.RateLimit < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimit, fmt.Errorf("should be >= 0, got %d", c.RateLimit))
	}

	var d time.Duration
	if d, err = dp.GetDuration(cfgKeyRateWindow); err != nil {
		return err
	}
	if d < 0 {
		return dp.WrapKeyErr(cfgKeyRateWindow, fmt.Errorf("should be >= 0, got %s", d))
	}
	c.RateWindow = config.TimeDuration(d)

	if c.MaxConcurrent, err = dp.GetInt(cfgKeyMaxConcurrent); err != nil {
		return err
	}
	if c.MaxConcurrent < 0 {
		return dp.WrapKeyErr(cfgKeyMaxConcurrent, fmt.Errorf("should be >= 0, got %d", c.MaxConcurrent))
	}

	if d, err = dp.GetDuration(cfgKeyDispatchBaseDelay); err != nil {
		return err
	}
	if d < 0 {
		return dp.WrapKeyErr(cfgKeyDispatchBaseDelay, fmt.Errorf("should be >= 0, got %s", d))
	}
	c.DispatchBaseDelay = config.TimeDuration(d)

	if d, err = dp.GetDuration(cfgKeyDispatchMaxJitter); err != nil {
		return err
	}
	if d < 0 {
		return dp.WrapKeyErr(cfgKeyDispatchMaxJitter, fmt.Errorf("should be >= 0, got %s", d))
	}
	c.DispatchMaxJitter = config.TimeDuration(d)

	if d, err = dp.GetDuration(cfgKeyWindowResetInterval); err != nil {
		return err
	}
	if d < 0 {
		return dp.WrapKeyErr(cfgKeyWindowResetInterval, fmt.Errorf("should be >= 0, got %s", d))
	}
	c.WindowResetInterval = config.TimeDuration(d)

	if c.MaxPending, err = dp.GetInt(cfgKeyMaxPending); err != nil {
		return err
	}
	if c.MaxPending < 0 {
		return dp.WrapKeyErr(cfgKeyMaxPending, fmt.Errorf("should be >= 0, got %d", c.MaxPending))
	}

	var admissionStr string
	if admissionStr, err = dp.GetStringFromSet(cfgKeyAdmission, availableAdmissionAlgs, true); err != nil {
		return err
	}
	c.Admission = strings.ToLower(admissionStr)

	return nil
}

// Validate checks that configuration values are consistent.
// Zero values are valid and mean "use the default".
func (c *Config) Validate() error {
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit should be >= 0, got %d", c.RateLimit)
	}
	if c.RateWindow < 0 {
		return fmt.Errorf("rate window should be >= 0, got %s", time.Duration(c.RateWindow))
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max concurrent should be >= 0, got %d", c.MaxConcurrent)
	}
	if c.DispatchBaseDelay < 0 {
		return fmt.Errorf("dispatch base delay should be >= 0, got %s", time.Duration(c.DispatchBaseDelay))
	}
	if c.DispatchMaxJitter < 0 {
		return fmt.Errorf("dispatch max jitter should be >= 0, got %s", time.Duration(c.DispatchMaxJitter))
	}
	if c.WindowResetInterval < 0 {
		return fmt.Errorf("window reset interval should be >= 0, got %s", time.Duration(c.WindowResetInterval))
	}
	if c.MaxPending < 0 {
		return fmt.Errorf("max pending should be >= 0, got %d", c.MaxPending)
	}
	switch c.Admission {
	case "", AdmissionAlgFixedWindow, AdmissionAlgSlidingWindow, AdmissionAlgLeakyBucket:
	default:
		return fmt.Errorf("unknown admission algorithm %q, should be one of %v", c.Admission, availableAdmissionAlgs)
	}
	return nil
}
