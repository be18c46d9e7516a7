/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/require"
)

const testStoreConfigYAML = `
store:
  name: play
  enabled: true
  workers: 4
  timeout: 15s
  cacheSize: 64M
  categories: [games, books]
  country: DE
`

const testStoreConfigJSON = `
{
  "store": {
    "name": "play",
    "enabled": true,
    "workers": 4,
    "timeout": "15s",
    "cacheSize": "64M",
    "categories": ["games", "books"],
    "country": "DE"
  }
}
`

func TestViperAdapter_SetFromReader(t *testing.T) {
	tests := []struct {
		dataType DataType
		cfgData  string
	}{
		{DataTypeYAML, testStoreConfigYAML},
		{DataTypeJSON, testStoreConfigJSON},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.dataType), func(t *testing.T) {
			va := NewViperAdapter()
			require.NoError(t, va.SetFromReader(bytes.NewBufferString(tt.cfgData), tt.dataType))

			name, err := va.GetString("store.name")
			require.NoError(t, err)
			require.Equal(t, "play", name)

			enabled, err := va.GetBool("store.enabled")
			require.NoError(t, err)
			require.True(t, enabled)

			workers, err := va.GetInt("store.workers")
			require.NoError(t, err)
			require.Equal(t, 4, workers)

			timeout, err := va.GetDuration("store.timeout")
			require.NoError(t, err)
			require.Equal(t, 15*time.Second, timeout)

			cacheSize, err := va.GetSizeInBytes("store.cacheSize")
			require.NoError(t, err)
			require.Equal(t, uint64(64<<20), cacheSize)

			categories, err := va.GetStringSlice("store.categories")
			require.NoError(t, err)
			require.Equal(t, []string{"games", "books"}, categories)

			require.True(t, va.IsSet("store.country"))
			require.False(t, va.IsSet("store.language"))
		})
	}
}

func TestViperAdapter_SetFromFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testStoreConfigYAML), 0o600))

	va := NewViperAdapter()
	require.NoError(t, va.SetFromFile(cfgPath, DataTypeYAML))
	name, err := va.GetString("store.name")
	require.NoError(t, err)
	require.Equal(t, "play", name)

	require.Error(t, NewViperAdapter().SetFromFile(filepath.Join(t.TempDir(), "missing.yml"), DataTypeYAML))
}

func TestViperAdapter_UseEnvVars(t *testing.T) {
	t.Setenv("SCRAPEKITTEST_STORE_NAME", "appstore")
	t.Setenv("SCRAPEKITTEST_STORE_CATEGORIES", "games, music ,")

	va := NewViperAdapter()
	va.UseEnvVars("scrapekittest")
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testStoreConfigYAML), DataTypeYAML))

	name, err := va.GetString("store.name")
	require.NoError(t, err)
	require.Equal(t, "appstore", name)

	categories, err := va.GetStringSlice("store.categories")
	require.NoError(t, err)
	require.Equal(t, []string{"games", "music"}, categories)

	country, err := va.GetString("store.country")
	require.NoError(t, err)
	require.Equal(t, "DE", country)
}

func TestViperAdapter_Defaults(t *testing.T) {
	va := NewViperAdapter()
	va.SetDefault("store.workers", 2)
	workers, err := va.GetInt("store.workers")
	require.NoError(t, err)
	require.Equal(t, 2, workers)

	va.Set("store.workers", 8)
	workers, err = va.GetInt("store.workers")
	require.NoError(t, err)
	require.Equal(t, 8, workers)

	slice, err := va.GetStringSlice("store.missing")
	require.NoError(t, err)
	require.Nil(t, slice)

	d, err := va.GetDuration("store.missing")
	require.NoError(t, err)
	require.Zero(t, d)
}

func TestViperAdapter_GetSizeInBytes(t *testing.T) {
	tests := []struct {
		val       interface{}
		want      uint64
		wantError bool
	}{
		{val: "", want: 0},
		{val: 1024, want: 1024},
		{val: "2048", want: 2048},
		{val: "1K", want: 1 << 10},
		{val: "250M", want: 250 << 20},
		{val: "1Gi", want: 1 << 30},
		{val: "3MiB", want: 3 << 20},
		{val: "plenty", wantError: true},
	}
	for _, tt := range tests {
		va := NewViperAdapter()
		va.Set("size", tt.val)
		got, err := va.GetSizeInBytes("size")
		if tt.wantError {
			require.Error(t, err, "%v", tt.val)
			require.True(t, strings.HasPrefix(err.Error(), "size: "))
			continue
		}
		require.NoError(t, err, "%v", tt.val)
		require.Equal(t, tt.want, got, "%v", tt.val)
	}
}

func TestViperAdapter_GetStringFromSet(t *testing.T) {
	va := NewViperAdapter()
	va.Set("mode", "Failed")

	_, err := va.GetStringFromSet("mode", []string{"all", "failed"}, false)
	require.EqualError(t, err, `mode: unknown value "Failed", should be one of [all failed]`)

	got, err := va.GetStringFromSet("mode", []string{"all", "failed"}, true)
	require.NoError(t, err)
	require.Equal(t, "Failed", got)
}

func TestViperAdapter_TypeErrors(t *testing.T) {
	va := NewViperAdapter()
	va.Set("workers", "many")
	va.Set("enabled", "maybe")
	va.Set("timeout", "forever")

	_, err := va.GetInt("workers")
	require.ErrorContains(t, err, "workers: ")
	_, err = va.GetBool("enabled")
	require.ErrorContains(t, err, "enabled: ")
	_, err = va.GetDuration("timeout")
	require.ErrorContains(t, err, "timeout: ")
}

type testCountry string

func TestViperAdapter_UnmarshalKey(t *testing.T) {
	type store struct {
		Name       string
		Timeout    time.Duration
		Categories []string
		Country    testCountry
	}

	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testStoreConfigYAML), DataTypeYAML))

	lowerCountry := func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(testCountry("")) || f.Kind() != reflect.String {
			return data, nil
		}
		return testCountry(strings.ToLower(data.(string))), nil
	}

	var s store
	require.NoError(t, va.UnmarshalKey("store", &s, WithDecodeHook(mapstructure.DecodeHookFuncType(lowerCountry))))
	require.Equal(t, store{
		Name:       "play",
		Timeout:    15 * time.Second,
		Categories: []string{"games", "books"},
		Country:    "de",
	}, s)

	var wrong struct{ Workers []int }
	va.Set("broken.workers", "many")
	require.ErrorContains(t, va.UnmarshalKey("broken", &wrong), "broken: ")
}
