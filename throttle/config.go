/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/storescrape/scrapekit/config"
)

// Admission algorithms.
const (
	AlgorithmFixedWindow   = "fixed_window"
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmLeakyBucket   = "leaky_bucket"
	AlgorithmTokenBucket   = "token_bucket"
)

const cfgDefaultKeyPrefix = "throttle"

const (
	cfgKeyLimit         = "limit"
	cfgKeyInterval      = "interval"
	cfgKeyRate          = "rate"
	cfgKeyAlgorithm     = "algorithm"
	cfgKeyMaxQueueDepth = "maxQueueDepth"
)

var availableAlgorithms = []string{
	AlgorithmFixedWindow, AlgorithmSlidingWindow, AlgorithmLeakyBucket, AlgorithmTokenBucket,
}

// Config describes how many calls may start within an interval.
//
// Limit and Interval must both be positive. With the default fixed_window algorithm
// no more than Limit jobs are admitted in any window of length Interval.
// MaxQueueDepth bounds the backlog of waiting jobs, 0 means unbounded.
type Config struct {
	Limit         int           `mapstructure:"limit" yaml:"limit" json:"limit"`
	Interval      time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	Algorithm     string        `mapstructure:"algorithm" yaml:"algorithm" json:"algorithm"`
	MaxQueueDepth int           `mapstructure:"maxQueueDepth" yaml:"maxQueueDepth" json:"maxQueueDepth"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a Config that is read from the given key prefix ("throttle" if empty).
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// ConfigFromRate creates a Config with the default algorithm and an unbounded queue.
func ConfigFromRate(r Rate) Config {
	return Config{Limit: r.Count, Interval: r.Duration}
}

// Rate returns Limit and Interval as a Rate.
func (c *Config) Rate() Rate {
	return Rate{Count: c.Limit, Duration: c.Interval}
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
	dp.SetDefault(cfgKeyAlgorithm, AlgorithmFixedWindow)
	dp.SetDefault(cfgKeyMaxQueueDepth, 0)
}

// Set sets throttle configuration values from config.DataProvider.
// Either "rate" ("1/500ms") or the "limit" + "interval" pair may be used.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	rateStr, err := dp.GetString(cfgKeyRate)
	if err != nil {
		return err
	}
	if rateStr != "" {
		if dp.IsSet(cfgKeyLimit) || dp.IsSet(cfgKeyInterval) {
			return dp.WrapKeyErr(cfgKeyRate, fmt.Errorf("cannot be used together with %q and %q", cfgKeyLimit, cfgKeyInterval))
		}
		var r Rate
		if err = r.unmarshal(rateStr); err != nil {
			return dp.WrapKeyErr(cfgKeyRate, err)
		}
		c.Limit, c.Interval = r.Count, r.Duration
	} else {
		if c.Limit, err = dp.GetInt(cfgKeyLimit); err != nil {
			return err
		}
		if c.Interval, err = getInterval(dp); err != nil {
			return err
		}
	}

	if c.Algorithm, err = dp.GetStringFromSet(cfgKeyAlgorithm, availableAlgorithms, true); err != nil {
		return err
	}
	c.Algorithm = strings.ToLower(c.Algorithm)

	if c.MaxQueueDepth, err = dp.GetInt(cfgKeyMaxQueueDepth); err != nil {
		return err
	}

	return c.Validate()
}

// getInterval reads the interval. Bare numbers (5000, "5000") are milliseconds,
// anything else is parsed as a Go duration ("5s", "500ms").
func getInterval(dp config.DataProvider) (time.Duration, error) {
	switch v := dp.Get(cfgKeyInterval).(type) {
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		ms, err := cast.ToInt64E(v)
		if err != nil {
			return 0, dp.WrapKeyErr(cfgKeyInterval, err)
		}
		return time.Duration(ms) * time.Millisecond, nil
	case string:
		if ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
	}
	return dp.GetDuration(cfgKeyInterval)
}

// Validate checks that the configuration describes a usable throttle.
// All returned errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Limit <= 0 {
		return configErrorf("limit must be positive, got %d", c.Limit)
	}
	if c.Interval <= 0 {
		return configErrorf("interval must be positive, got %s", c.Interval)
	}
	if c.MaxQueueDepth < 0 {
		return configErrorf("max queue depth must not be negative, got %d", c.MaxQueueDepth)
	}
	switch c.Algorithm {
	case "", AlgorithmFixedWindow, AlgorithmSlidingWindow, AlgorithmLeakyBucket, AlgorithmTokenBucket:
	default:
		return configErrorf("unknown algorithm %q", c.Algorithm)
	}
	return nil
}

func (c *Config) algorithm() string {
	if c.Algorithm == "" {
		return AlgorithmFixedWindow
	}
	return c.Algorithm
}

// Rate is a number of admissions per duration. Its text form is "<count>/<unit>",
// where unit is "s", "m", "h" or any Go duration: "10/s", "100/m", "1/500ms".
type Rate struct {
	Count    int
	Duration time.Duration
}

// String returns a string representation of the rate.
// Implements fmt.Stringer interface.
func (r Rate) String() string {
	if r.Duration == 0 && r.Count == 0 {
		return ""
	}
	var d string
	switch r.Duration {
	case time.Second:
		d = "s"
	case time.Minute:
		d = "m"
	case time.Hour:
		d = "h"
	default:
		d = r.Duration.String()
	}
	return fmt.Sprintf("%d/%s", r.Count, d)
}

// ParseRate parses the text form of a rate.
func ParseRate(s string) (Rate, error) {
	var r Rate
	err := r.unmarshal(s)
	return r, err
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (r *Rate) UnmarshalText(text []byte) error {
	return r.unmarshal(string(text))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (r *Rate) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	return r.unmarshal(text)
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (r *Rate) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return err
	}
	return r.unmarshal(text)
}

func (r *Rate) unmarshal(rate string) error {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		*r = Rate{}
		return nil
	}
	incorrectFormatErr := fmt.Errorf(
		"incorrect format for rate %q, should be N/(s|m|h|<duration>), for example 10/s, 100/m, 1/500ms", rate)
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		return incorrectFormatErr
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return incorrectFormatErr
	}
	var dur time.Duration
	switch unit := strings.TrimSpace(parts[1]); strings.ToLower(unit) {
	case "s":
		dur = time.Second
	case "m":
		dur = time.Minute
	case "h":
		dur = time.Hour
	default:
		if dur, err = time.ParseDuration(unit); err != nil {
			return incorrectFormatErr
		}
	}
	*r = Rate{Count: count, Duration: dur}
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// MarshalJSON implements the json.Marshaler interface.
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// MarshalYAML implements the yaml.Marshaler interface.
func (r Rate) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

// MapstructureDecodeHook returns a DecodeHookFunc for mapstructure that decodes Rate values from strings.
func MapstructureDecodeHook() mapstructure.DecodeHookFunc {
	rateType := reflect.TypeOf(Rate{})
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != rateType {
			return data, nil
		}
		return ParseRate(reflect.ValueOf(data).String())
	}
}
