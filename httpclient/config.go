/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/gitboycryptogeek/tassiac-sub000/config"
	"github.com/gitboycryptogeek/tassiac-sub000/retry"
	"github.com/gitboycryptogeek/tassiac-sub000/throttlequeue"
)

const cfgDefaultKeyPrefix = "httpClient"

const (
	cfgKeyRetriesEnabled                          = "retries.enabled"
	cfgKeyRetriesMaxAttempts                      = "retries.maxAttempts"
	cfgKeyRetriesPolicyStrategy                   = "retries.policy.strategy"
	cfgKeyRetriesPolicyExponentialInitialInterval = "retries.policy.exponentialBackoffInitialInterval"
	cfgKeyRetriesPolicyExponentialMultiplier      = "retries.policy.exponentialBackoffMultiplier"
	cfgKeyRetriesPolicyConstantInterval           = "retries.policy.constantBackoffInterval"
	cfgKeyRateLimitsEnabled                       = "rateLimits.enabled"
	cfgKeyRateLimitsLimit                         = "rateLimits.limit"
	cfgKeyRateLimitsBurst                         = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout                   = "rateLimits.waitTimeout"
	cfgKeyThrottling                              = "throttling"
	cfgKeyLoggerEnabled                           = "logger.enabled"
	cfgKeyLoggerMode                              = "logger.mode"
	cfgKeyLoggerSlowRequestThreshold              = "logger.slowRequestThreshold"
	cfgKeyMetricsEnabled                          = "metrics.enabled"
	cfgKeyTimeout                                 = "timeout"
)

// Default configuration values.
const (
	// DefaultClientWaitTimeout is a default timeout for the whole request round trip.
	DefaultClientWaitTimeout = 10 * time.Second

	// DefaultConstantBackoffInterval is a default interval between retry attempts for the constant policy.
	DefaultConstantBackoffInterval = 1 * time.Second
)

// Retry policy strategies.
const (
	RetryPolicyExponential = "exponential"
	RetryPolicyConstant    = "constant"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// Config represents a set of configuration parameters for building an HTTP client.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Retries is a configuration for retrying failed requests.
	Retries RetriesConfig `mapstructure:"retries" yaml:"retries" json:"retries"`

	// RateLimits is a configuration for limiting the rate of outgoing requests.
	RateLimits RateLimitConfig `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`

	// Throttling is a configuration for queueing outgoing requests through named throttle zones.
	Throttling ThrottlingConfig `mapstructure:"throttling" yaml:"throttling" json:"throttling"`

	// Logger is a configuration for logging outgoing requests.
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger" json:"logger"`

	// Metrics is a configuration for collecting metrics of outgoing requests.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Timeout is the limit for the whole request round trip, including all retry attempts.
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	keyPrefix string
}

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
// Sections guarded by the enabled flag are left zeroed, their defaults are
// applied when the corresponding round tripper is built.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix: opts.keyPrefix,
		Timeout:   config.TimeDuration(DefaultClientWaitTimeout),
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
	dp.SetDefault(cfgKeyRetriesPolicyStrategy, RetryPolicyExponential)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialInitialInterval, DefaultExponentialBackoffInitialInterval.String())
	dp.SetDefault(cfgKeyRetriesPolicyExponentialMultiplier, DefaultExponentialBackoffMultiplier)
	dp.SetDefault(cfgKeyRetriesPolicyConstantInterval, DefaultConstantBackoffInterval.String())
	dp.SetDefault(cfgKeyRateLimitsBurst, DefaultRateLimitingBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitingWaitTimeout.String())
	dp.SetDefault(cfgKeyLoggerMode, string(DefaultLoggingMode))
	dp.SetDefault(cfgKeyTimeout, DefaultClientWaitTimeout.String())
}

// Set sets client configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	var timeout time.Duration
	if timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("should be >= 0, got %s", timeout))
	}
	c.Timeout = config.TimeDuration(timeout)

	if err = c.Retries.Set(dp); err != nil {
		return err
	}
	if err = c.RateLimits.Set(dp); err != nil {
		return err
	}
	if err = c.Throttling.Set(dp); err != nil {
		return err
	}
	if err = c.Logger.Set(dp); err != nil {
		return err
	}
	return c.Metrics.Set(dp)
}

// Validate checks that configuration values are consistent.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout should be >= 0, got %s", time.Duration(c.Timeout))
	}
	if err := c.Retries.Validate(); err != nil {
		return err
	}
	if err := c.RateLimits.Validate(); err != nil {
		return err
	}
	if err := c.Throttling.Validate(); err != nil {
		return err
	}
	return c.Logger.Validate()
}

var availableRetryPolicies = []string{RetryPolicyExponential, RetryPolicyConstant}

// PolicyConfig represents configuration options for the retry backoff policy.
type PolicyConfig struct {
	// Strategy selects the backoff policy: "exponential" (default) or "constant".
	Strategy string `mapstructure:"strategy" yaml:"strategy" json:"strategy"`

	// ExponentialBackoffInitialInterval is the initial interval for the exponential policy.
	ExponentialBackoffInitialInterval config.TimeDuration `mapstructure:"exponentialBackoffInitialInterval" yaml:"exponentialBackoffInitialInterval" json:"exponentialBackoffInitialInterval"` // nolint: lll

	// ExponentialBackoffMultiplier is the interval multiplier for the exponential policy.
	ExponentialBackoffMultiplier float64 `mapstructure:"exponentialBackoffMultiplier" yaml:"exponentialBackoffMultiplier" json:"exponentialBackoffMultiplier"` // nolint: lll

	// ConstantBackoffInterval is the interval between attempts for the constant policy.
	ConstantBackoffInterval config.TimeDuration `mapstructure:"constantBackoffInterval" yaml:"constantBackoffInterval" json:"constantBackoffInterval"` // nolint: lll
}

// Set sets retry policy configuration values from config.DataProvider.
func (c *PolicyConfig) Set(dp config.DataProvider) error {
	var err error

	var strategy string
	if strategy, err = dp.GetStringFromSet(cfgKeyRetriesPolicyStrategy, availableRetryPolicies, true); err != nil {
		return err
	}
	c.Strategy = strings.ToLower(strategy)

	var interval time.Duration
	if interval, err = dp.GetDuration(cfgKeyRetriesPolicyExponentialInitialInterval); err != nil {
		return err
	}
	if interval < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialInitialInterval, fmt.Errorf("should be >= 0, got %s", interval))
	}
	c.ExponentialBackoffInitialInterval = config.TimeDuration(interval)

	var multiplier float64
	if multiplier, err = dp.GetFloat64(cfgKeyRetriesPolicyExponentialMultiplier); err != nil {
		return err
	}
	if multiplier <= 1 {
		return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialMultiplier, fmt.Errorf("should be > 1, got %v", multiplier))
	}
	c.ExponentialBackoffMultiplier = multiplier

	if interval, err = dp.GetDuration(cfgKeyRetriesPolicyConstantInterval); err != nil {
		return err
	}
	if interval < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesPolicyConstantInterval, fmt.Errorf("should be >= 0, got %s", interval))
	}
	c.ConstantBackoffInterval = config.TimeDuration(interval)

	return nil
}

// Validate checks that retry policy configuration values are consistent.
func (c *PolicyConfig) Validate() error {
	switch c.Strategy {
	case "", RetryPolicyExponential, RetryPolicyConstant:
	default:
		return fmt.Errorf("unknown retry policy %q, should be one of %v", c.Strategy, availableRetryPolicies)
	}
	if c.ExponentialBackoffInitialInterval < 0 {
		return fmt.Errorf("exponential backoff initial interval should be >= 0, got %s",
			time.Duration(c.ExponentialBackoffInitialInterval))
	}
	if c.ConstantBackoffInterval < 0 {
		return fmt.Errorf("constant backoff interval should be >= 0, got %s", time.Duration(c.ConstantBackoffInterval))
	}
	return nil
}

// RetriesConfig represents configuration options for retrying failed requests.
type RetriesConfig struct {
	// Enabled is a flag that enables retries.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// MaxAttempts is the maximum number of retry attempts. If 0, DefaultMaxRetryAttempts is used.
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`

	// Policy is the backoff policy applied between retry attempts.
	Policy PolicyConfig `mapstructure:"policy" yaml:"policy" json:"policy"`
}

// GetPolicy returns the backoff policy built from the configured strategy, or nil if no strategy is set.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	switch c.Policy.Strategy {
	case RetryPolicyExponential:
		return retry.ExponentialBackoffPolicy{
			InitialInterval: time.Duration(c.Policy.ExponentialBackoffInitialInterval),
			Multiplier:      c.Policy.ExponentialBackoffMultiplier,
		}
	case RetryPolicyConstant:
		return retry.ConstantBackoffPolicy{
			Interval: time.Duration(c.Policy.ConstantBackoffInterval),
		}
	}
	return nil
}

// Set sets retries configuration values from config.DataProvider.
func (c *RetriesConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyRetriesEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if !c.Enabled {
		return nil
	}

	maxAttempts, err := dp.GetInt(cfgKeyRetriesMaxAttempts)
	if err != nil {
		return err
	}
	if maxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, fmt.Errorf("should be >= 0, got %d", maxAttempts))
	}
	c.MaxAttempts = maxAttempts

	return c.Policy.Set(dp)
}

// Validate checks that retries configuration values are consistent.
func (c *RetriesConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max retry attempts should be >= 0, got %d", c.MaxAttempts)
	}
	return c.Policy.Validate()
}

// TransportOpts returns options for RetryableRoundTripper based on the configuration.
func (c *RetriesConfig) TransportOpts() RetryableRoundTripperOpts {
	return RetryableRoundTripperOpts{MaxRetryAttempts: c.MaxAttempts}
}

// RateLimitConfig represents configuration options for limiting the rate of outgoing requests.
type RateLimitConfig struct {
	// Enabled is a flag that enables rate limiting.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Limit is the maximum number of requests per second.
	Limit int `mapstructure:"limit" yaml:"limit" json:"limit"`

	// Burst allows temporary spikes in the request rate. If 0, DefaultRateLimitingBurst is used.
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`

	// WaitTimeout is the maximum time to wait for the limiter before giving up.
	// If 0, DefaultRateLimitingWaitTimeout is used.
	WaitTimeout config.TimeDuration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
}

// Set sets rate limiting configuration values from config.DataProvider.
func (c *RateLimitConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyRateLimitsEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if !c.Enabled {
		return nil
	}

	limit, err := dp.GetInt(cfgKeyRateLimitsLimit)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, fmt.Errorf("should be > 0, got %d", limit))
	}
	c.Limit = limit

	burst, err := dp.GetInt(cfgKeyRateLimitsBurst)
	if err != nil {
		return err
	}
	if burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("should be >= 0, got %d", burst))
	}
	c.Burst = burst

	waitTimeout, err := dp.GetDuration(cfgKeyRateLimitsWaitTimeout)
	if err != nil {
		return err
	}
	if waitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("should be >= 0, got %s", waitTimeout))
	}
	c.WaitTimeout = config.TimeDuration(waitTimeout)

	return nil
}

// Validate checks that rate limiting configuration values are consistent.
func (c *RateLimitConfig) Validate() error {
	if c.Enabled && c.Limit <= 0 {
		return fmt.Errorf("rate limit should be > 0, got %d", c.Limit)
	}
	if c.Burst < 0 {
		return fmt.Errorf("rate limit burst should be >= 0, got %d", c.Burst)
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf("rate limit wait timeout should be >= 0, got %s", time.Duration(c.WaitTimeout))
	}
	return nil
}

// TransportOpts returns options for RateLimitingRoundTripper based on the configuration.
func (c *RateLimitConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{
		Burst:       c.Burst,
		WaitTimeout: time.Duration(c.WaitTimeout),
	}
}

// ThrottlingConfig represents configuration options for queueing outgoing requests
// through named throttle zones. Each zone is backed by its own request queue,
// and rules bind request routes to zones.
type ThrottlingConfig struct {
	// Enabled is a flag that enables throttling.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Zones is a map of zone name to the queue configuration of that zone.
	Zones map[string]*throttlequeue.Config `mapstructure:"zones" yaml:"zones" json:"zones"`

	// Rules binds request routes to zones. Rules are evaluated in order, the first match wins.
	Rules []ThrottlingRuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`
}

// Set sets throttling configuration values from config.DataProvider.
func (c *ThrottlingConfig) Set(dp config.DataProvider) error {
	if err := dp.UnmarshalKey(cfgKeyThrottling, c, func(decoderConfig *mapstructure.DecoderConfig) {
		decoderConfig.DecodeHook = throttlingDecodeHook()
	}); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return dp.WrapKeyErr(cfgKeyThrottling, err)
	}
	return nil
}

// Validate checks that throttling configuration values are consistent.
func (c *ThrottlingConfig) Validate() error {
	for zoneName, zoneCfg := range c.Zones {
		if zoneCfg == nil {
			return fmt.Errorf("validate zone %q: missing configuration", zoneName)
		}
		if err := zoneCfg.Validate(); err != nil {
			return fmt.Errorf("validate zone %q: %w", zoneName, err)
		}
	}
	for i := range c.Rules {
		if err := c.Rules[i].Validate(c.Zones); err != nil {
			return fmt.Errorf("validate rule %q: %w", c.Rules[i].Name(), err)
		}
	}
	return nil
}

// ThrottlingRuleConfig represents a single throttling rule:
// a set of routes and methods whose requests go through the referenced zone's queue.
type ThrottlingRuleConfig struct {
	// Alias is an alternative name for the rule. It will be used in errors and metrics.
	Alias string `mapstructure:"alias" yaml:"alias" json:"alias"`

	// Routes contains URL path glob patterns (e.g. "/api/payment/*") the rule applies to.
	Routes []string `mapstructure:"routes" yaml:"routes" json:"routes"`

	// Methods contains HTTP methods the rule applies to. Empty list matches all methods.
	Methods []string `mapstructure:"methods" yaml:"methods" json:"methods"`

	// Zone is the name of the throttle zone the matched requests go through.
	Zone string `mapstructure:"zone" yaml:"zone" json:"zone"`
}

// Name returns the throttling rule name.
func (c *ThrottlingRuleConfig) Name() string {
	if c.Alias != "" {
		return c.Alias
	}
	return strings.Join(c.Routes, "; ")
}

// Validate checks that the rule references a defined zone and has at least one route.
func (c *ThrottlingRuleConfig) Validate(zones map[string]*throttlequeue.Config) error {
	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one route should be specified")
	}
	if c.Zone == "" {
		return fmt.Errorf("zone should be specified")
	}
	if _, ok := zones[c.Zone]; !ok {
		return fmt.Errorf("unknown zone %q", c.Zone)
	}
	return nil
}

func throttlingDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// LoggerConfig represents configuration options for logging outgoing requests.
type LoggerConfig struct {
	// Enabled is a flag that enables logging.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// SlowRequestThreshold is the minimum request duration to be logged. Zero logs every request.
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"` // nolint: lll

	// Mode of logging: none, all, failed.
	Mode LoggingMode `mapstructure:"mode" yaml:"mode" json:"mode"`
}

// Set sets logging configuration values from config.DataProvider.
func (c *LoggerConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyLoggerEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if !c.Enabled {
		return nil
	}

	slowRequestThreshold, err := dp.GetDuration(cfgKeyLoggerSlowRequestThreshold)
	if err != nil {
		return err
	}
	if slowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLoggerSlowRequestThreshold, fmt.Errorf("should be >= 0, got %s", slowRequestThreshold))
	}
	c.SlowRequestThreshold = config.TimeDuration(slowRequestThreshold)

	mode, err := dp.GetStringFromSet(cfgKeyLoggerMode, availableLoggingModes, true)
	if err != nil {
		return err
	}
	c.Mode = LoggingMode(strings.ToLower(mode))

	return nil
}

// Validate checks that logging configuration values are consistent.
func (c *LoggerConfig) Validate() error {
	if c.SlowRequestThreshold < 0 {
		return fmt.Errorf("slow request threshold should be >= 0, got %s", time.Duration(c.SlowRequestThreshold))
	}
	if c.Mode != "" && !c.Mode.IsValid() {
		return fmt.Errorf("unknown logging mode %q, should be one of %v", c.Mode, availableLoggingModes)
	}
	return nil
}

// TransportOpts returns options for LoggingRoundTripper based on the configuration.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{
		Mode:                 c.Mode,
		SlowRequestThreshold: time.Duration(c.SlowRequestThreshold),
	}
}

// MetricsConfig represents configuration options for collecting metrics of outgoing requests.
type MetricsConfig struct {
	// Enabled is a flag that enables metrics collection.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// Set sets metrics configuration values from config.DataProvider.
func (c *MetricsConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyMetricsEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	return nil
}
