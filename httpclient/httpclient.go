/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

// Package httpclient provides an HTTP client for scrapers: outgoing requests are throttled
// per client or per host, optionally logged and measured, and carry a User-Agent.
package httpclient

import (
	"fmt"
	"net/http"

	"github.com/storescrape/scrapekit/log"
	"github.com/storescrape/scrapekit/throttle"
)

// New creates an HTTP client configured by cfg and returns an error if any occurs.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// Must creates an HTTP client configured by cfg and panics if any error occurs.
func Must(cfg *Config) *http.Client {
	client, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	// Delegate is the transport that actually sends requests. A clone of http.DefaultTransport is used if nil.
	Delegate http.RoundTripper

	// Logger is used for request logs and throttle diagnostics. Logging is disabled if nil.
	Logger log.FieldLogger

	// Collector collects request metrics if metrics are enabled in the configuration.
	Collector MetricsCollector

	// ThrottleMetrics collects throttle metrics if throttling is enabled in the configuration.
	ThrottleMetrics throttle.MetricsCollector
}

// NewWithOpts creates an HTTP client configured by cfg with options.
// The transport chain is: user agent -> throttling -> metrics -> logging -> delegate,
// so metrics and logs describe the requests as they are sent, without the time spent in the throttle queue.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	if cfg.Logger.Enabled {
		delegate = NewLoggingRoundTripperWithOpts(delegate, logger, cfg.Logger.TransportOpts())
	}

	if cfg.Metrics.Enabled && opts.Collector != nil {
		delegate = NewMetricsRoundTripper(delegate, opts.Collector)
	}

	if cfg.Throttle.Enabled {
		throttleOpts := cfg.Throttle.TransportOpts()
		throttleOpts.Logger = logger
		throttleOpts.Metrics = opts.ThrottleMetrics
		var err error
		if delegate, err = NewThrottlingRoundTripperWithOpts(delegate, cfg.Throttle.Throttle, throttleOpts); err != nil {
			return nil, fmt.Errorf("create throttling round tripper: %w", err)
		}
	}

	delegate = NewUserAgentRoundTripper(delegate, cfg.UserAgent)

	return &http.Client{Transport: delegate, Timeout: cfg.Timeout}, nil
}

// MustWithOpts creates an HTTP client configured by cfg with options and panics if any error occurs.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
