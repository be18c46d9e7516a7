/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

// Package testutil contains assertions shared by tests of throttled components:
// Prometheus metric values and spacing of admission timestamps.
package testutil
