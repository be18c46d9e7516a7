/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"time"

	"github.com/storescrape/scrapekit/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logger mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper implements http.RoundTripper for logging requests.
type LoggingRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// Logger is used to log requests.
	Logger log.FieldLogger

	// Opts are the options for the logging round tripper.
	Opts LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// Mode of logging: none, all, failed. LoggingModeAll is used if empty.
	Mode LoggingMode

	// SlowRequestThreshold is a threshold for slow requests. Faster requests are not logged.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that logs requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, logger log.FieldLogger) *LoggingRoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, logger, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that logs requests with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, logger log.FieldLogger, opts LoggingRoundTripperOpts,
) *LoggingRoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	return &LoggingRoundTripper{Delegate: delegate, Logger: logger, Opts: opts}
}

// RoundTrip adds logging capabilities to the HTTP transport.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone || rt.Logger == nil {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)
	if elapsed < rt.Opts.SlowRequestThreshold {
		return resp, err
	}

	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	if rt.Opts.Mode == LoggingModeFailed && !failed {
		return resp, err
	}

	fields := []log.Field{
		log.String("method", r.Method),
		log.String("url", r.URL.String()),
		log.DurationIn(elapsed, time.Millisecond),
	}
	if resp != nil {
		fields = append(fields, log.Int("status", resp.StatusCode))
	}
	if err != nil {
		rt.Logger.Error("client http request failed", append(fields, log.Error(err))...)
		return resp, err
	}
	rt.Logger.Info("client http request done", fields...)
	return resp, err
}
