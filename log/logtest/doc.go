/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

// Package logtest provides a log.FieldLogger that records entries for inspection in tests.
package logtest
