/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

// Package config loads configuration sections (throttles, logging, HTTP clients)
// from YAML/JSON files, readers and environment variables.
//
// Every section implements Config: defaults are registered in the DataProvider first,
// then values are read back and validated. A section may also implement KeyPrefixProvider,
// in which case it only sees the keys under its prefix.
package config

// Config is a common interface for configuration sections that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing key prefix that will be used for configuration parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}
