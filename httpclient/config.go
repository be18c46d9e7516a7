/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"github.com/storescrape/scrapekit/config"
	"github.com/storescrape/scrapekit/throttle"
)

const (
	// DefaultClientWaitTimeout is a default timeout for a whole request, including the time spent in the throttle queue.
	DefaultClientWaitTimeout = time.Minute

	cfgKeyTimeout                    = "timeout"
	cfgKeyUserAgent                  = "userAgent"
	cfgKeyThrottle                   = "throttle"
	cfgKeyThrottleEnabled            = "throttle.enabled"
	cfgKeyThrottlePerHost            = "throttle.perHost"
	cfgKeyThrottleMaxHosts           = "throttle.maxHosts"
	cfgKeyThrottleHosts              = "throttle.hosts"
	cfgKeyLoggerEnabled              = "logger.enabled"
	cfgKeyLoggerMode                 = "logger.mode"
	cfgKeyLoggerSlowRequestThreshold = "logger.slowRequestThreshold"
	cfgKeyMetricsEnabled             = "metrics.enabled"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ThrottleConfig represents configuration options for throttling of outgoing requests.
//
//	throttle:
//	  enabled: true
//	  rate: 1/500ms
//	  perHost: true
//	  hosts:
//	    play.example.com: 10/s
type ThrottleConfig struct {
	// Enabled is a flag that enables throttling.
	Enabled bool

	// Throttle is the configuration of the throttle (or of every per-host throttle).
	Throttle throttle.Config

	// PerHost enables an independent throttle for every request host.
	PerHost bool

	// MaxHosts is the number of per-host throttles kept in memory.
	MaxHosts int

	// Hosts overrides the rate for particular hosts or host patterns ("*.example.com").
	// The algorithm and the queue depth are taken from Throttle.
	Hosts map[string]throttle.Rate
}

// Set is part of config interface implementation.
func (c *ThrottleConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyThrottleEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	throttleCfg := throttle.NewConfig(cfgKeyThrottle)
	if err = config.NewLoader(dp).Load(throttleCfg); err != nil {
		return err
	}
	c.Throttle = *throttleCfg

	if c.PerHost, err = dp.GetBool(cfgKeyThrottlePerHost); err != nil {
		return err
	}
	if c.MaxHosts, err = dp.GetInt(cfgKeyThrottleMaxHosts); err != nil {
		return err
	}
	if c.MaxHosts < 0 {
		return dp.WrapKeyErr(cfgKeyThrottleMaxHosts, fmt.Errorf("should be >= 0"))
	}

	c.Hosts = nil
	if dp.IsSet(cfgKeyThrottleHosts) {
		if err = dp.UnmarshalKey(cfgKeyThrottleHosts, &c.Hosts, config.WithDecodeHook(throttle.MapstructureDecodeHook())); err != nil {
			return err
		}
		for host := range c.Hosts {
			hostCfg := c.hostConfig(host)
			if err = hostCfg.Validate(); err != nil {
				return dp.WrapKeyErr(cfgKeyThrottleHosts+"."+host, err)
			}
		}
	}
	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *ThrottleConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyThrottleEnabled, false)
	dp.SetDefault(cfgKeyThrottlePerHost, false)
	dp.SetDefault(cfgKeyThrottleMaxHosts, throttle.DefaultMaxKeys)
}

// TransportOpts returns transport options.
func (c *ThrottleConfig) TransportOpts() ThrottlingRoundTripperOpts {
	opts := ThrottlingRoundTripperOpts{PerHost: c.PerHost, MaxHosts: c.MaxHosts}
	if len(c.Hosts) != 0 {
		opts.HostConfigs = make(map[string]throttle.Config, len(c.Hosts))
		for host := range c.Hosts {
			opts.HostConfigs[host] = c.hostConfig(host)
		}
	}
	return opts
}

func (c *ThrottleConfig) hostConfig(host string) throttle.Config {
	hostCfg := throttle.ConfigFromRate(c.Hosts[host])
	hostCfg.Algorithm = c.Throttle.Algorithm
	hostCfg.MaxQueueDepth = c.Throttle.MaxQueueDepth
	return hostCfg
}

// LoggerConfig represents configuration options for HTTP client logs.
type LoggerConfig struct {
	// Enabled is a flag that enables logging.
	Enabled bool

	// SlowRequestThreshold is a threshold for slow requests.
	SlowRequestThreshold time.Duration

	// Mode of logging.
	Mode LoggingMode
}

// Set is part of config interface implementation.
func (c *LoggerConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyLoggerEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLoggerSlowRequestThreshold); err != nil {
		return err
	}
	if c.SlowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLoggerSlowRequestThreshold, fmt.Errorf("can not be negative"))
	}

	mode, err := dp.GetStringFromSet(cfgKeyLoggerMode,
		[]string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}, false)
	if err != nil {
		return err
	}
	c.Mode = LoggingMode(mode)
	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *LoggerConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLoggerEnabled, false)
	dp.SetDefault(cfgKeyLoggerMode, string(LoggingModeAll))
}

// TransportOpts returns transport options.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{Mode: c.Mode, SlowRequestThreshold: c.SlowRequestThreshold}
}

// MetricsConfig represents configuration options for HTTP client metrics.
type MetricsConfig struct {
	// Enabled is a flag that enables metrics.
	Enabled bool
}

// Set is part of config interface implementation.
func (c *MetricsConfig) Set(dp config.DataProvider) (err error) {
	c.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}

// SetProviderDefaults is part of config interface implementation.
func (c *MetricsConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMetricsEnabled, false)
}

// Config represents options for HTTP client configuration.
type Config struct {
	// Throttle is a configuration for throttling of outgoing requests.
	Throttle ThrottleConfig

	// Logger is a configuration for HTTP client logs.
	Logger LoggerConfig

	// Metrics is a configuration for HTTP client metrics.
	Metrics MetricsConfig

	// Timeout is the maximum time to wait for a request to be done, including the time spent in the throttle queue.
	Timeout time.Duration

	// UserAgent is sent with every request that has no User-Agent. DefaultUserAgent() is used if empty.
	UserAgent string

	// keyPrefix is a prefix for configuration parameters.
	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix("")
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("can not be negative"))
	}
	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}
	if err = c.Throttle.Set(dp); err != nil {
		return err
	}
	if err = c.Logger.Set(dp); err != nil {
		return err
	}
	return c.Metrics.Set(dp)
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultClientWaitTimeout)
	c.Throttle.SetProviderDefaults(dp)
	c.Logger.SetProviderDefaults(dp)
	c.Metrics.SetProviderDefaults(dp)
}
