/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DataType is a format of configuration data.
type DataType string

// Supported data formats.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// DataTypeFromPath returns the data format of a configuration file by its extension.
func DataTypeFromPath(path string) (DataType, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return DataTypeYAML, nil
	case ".json":
		return DataTypeJSON, nil
	default:
		return "", fmt.Errorf("unsupported configuration file extension %q, should be one of .yaml, .yml, .json", ext)
	}
}

// DataSource is the part of DataProvider that fills it with raw data.
type DataSource interface {
	UseEnvVars(prefix string)
	SetFromFile(path string, dataType DataType) error
	SetFromReader(reader io.Reader, dataType DataType) error
}

// ValueReader is the part of DataProvider that reads typed values by key.
// Getters return an error if the value can not be converted to the requested type.
type ValueReader interface {
	IsSet(key string) bool
	Get(key string) interface{}
	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetString(key string) (string, error)
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetStringSlice(key string) ([]string, error)
	GetDuration(key string) (time.Duration, error)
	GetSizeInBytes(key string) (uint64, error)
	UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error
}

// DataProvider holds configuration data and serves it to configuration sections.
type DataProvider interface {
	DataSource
	ValueReader

	Set(key string, value interface{})
	SetDefault(key string, value interface{})

	// WrapKeyErr prefixes err with the full key, so errors of nested sections point to the exact place.
	WrapKeyErr(key string, err error) error
}

// DecoderConfigOption tunes the mapstructure decoder used by UnmarshalKey.
type DecoderConfigOption func(*mapstructure.DecoderConfig)

// WithDecodeHook runs hook before the default string-to-duration and comma-separated string-to-slice conversions.
func WithDecodeHook(hook mapstructure.DecodeHookFunc) DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			hook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// WrapKeyErrIfNeeded is WrapKeyErr that keeps nil as nil.
func WrapKeyErrIfNeeded(key string, err error) error {
	if err == nil {
		return nil
	}
	return WrapKeyErr(key, err)
}

// WrapKeyErr prefixes err with the key.
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}
