/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import (
	"github.com/storescrape/scrapekit/log"
)

// Option configures a Throttle.
type Option func(*options)

type options struct {
	name     string
	logger   log.FieldLogger
	metrics  MetricsCollector
	admitter Admitter
}

func makeOptions(opts []Option) options {
	o := options{
		logger:  log.NewDisabledLogger(),
		metrics: disabledMetricsCollector,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithName sets a name that is added to every log entry of the throttle.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets a logger for scheduler diagnostics. Only debug-level entries are written,
// failures of the wrapped operation are never logged.
func WithLogger(logger log.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metrics = mc
		}
	}
}

// WithAdmitter replaces the admission algorithm selected by Config.Algorithm.
// The admitter must not be shared with another throttle.
func WithAdmitter(a Admitter) Option {
	return func(o *options) {
		o.admitter = a
	}
}
