/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/storescrape/scrapekit/log"
	"github.com/storescrape/scrapekit/throttle"
)

// ThrottlingRoundTripperOpts represents an options for ThrottlingRoundTripper.
type ThrottlingRoundTripperOpts struct {
	// PerHost enables an independent throttle for every request host.
	PerHost bool

	// HostConfigs overrides the throttle configuration for particular hosts. Used only if PerHost is true.
	// Keys may be glob patterns like "*.googleusercontent.com"; an exact host wins over patterns.
	HostConfigs map[string]throttle.Config

	// MaxHosts is the number of per-host throttles kept in memory. throttle.DefaultMaxKeys is used if 0.
	MaxHosts int

	// Logger is used for throttle diagnostics.
	Logger log.FieldLogger

	// Metrics collects throttle metrics. With PerHost, it is shared by all hosts.
	Metrics throttle.MetricsCollector
}

type requestSubmitter interface {
	Submit(ctx context.Context, req *http.Request) (*throttle.Future[*http.Response], error)
}

// ThrottlingRoundTripper wraps implementing http.RoundTripper interface object
// and starts outgoing requests no faster than the throttle configuration allows.
// Requests above the limit wait in a FIFO queue; they are never rejected unless
// the queue has a maximum depth.
type ThrottlingRoundTripper struct {
	Delegate http.RoundTripper

	submitter requestSubmitter
	logger    log.FieldLogger
}

// NewThrottlingRoundTripper creates a new ThrottlingRoundTripper with a single throttle for all requests.
func NewThrottlingRoundTripper(delegate http.RoundTripper, cfg throttle.Config) (*ThrottlingRoundTripper, error) {
	return NewThrottlingRoundTripperWithOpts(delegate, cfg, ThrottlingRoundTripperOpts{})
}

// NewThrottlingRoundTripperWithOpts creates a new ThrottlingRoundTripper with specified options.
func NewThrottlingRoundTripperWithOpts(
	delegate http.RoundTripper, cfg throttle.Config, opts ThrottlingRoundTripperOpts,
) (*ThrottlingRoundTripper, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	rt := &ThrottlingRoundTripper{Delegate: delegate, logger: logger}

	throttleOpts := []throttle.Option{throttle.WithLogger(logger), throttle.WithMetrics(opts.Metrics)}
	var err error
	if opts.PerHost {
		rt.submitter, err = throttle.NewKeyedWithOpts(rt.send, cfg, requestHost, throttle.KeyedOpts{
			MaxKeys:    opts.MaxHosts,
			KeyConfigs: normalizeHostConfigs(opts.HostConfigs),
			Options:    throttleOpts,
			Logger:     logger,
		})
	} else {
		rt.submitter, err = throttle.New(rt.send, cfg, throttleOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("create request throttle: %w", err)
	}
	return rt, nil
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
// It blocks until the request is admitted and sent, or until the request context is done.
func (rt *ThrottlingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	f, err := rt.submitter.Submit(ctx, req)
	if err != nil {
		closeRequestBody(req)
		return nil, &ThrottlingError{Inner: err}
	}

	select {
	case <-f.Done():
		return f.Result()
	case <-ctx.Done():
	}

	select {
	case <-f.Done():
		return f.Result()
	default:
	}
	// The queued request is still admitted later, but it is not sent since its context is done.
	go rt.discardResponse(f)
	return nil, &ThrottlingError{Inner: ctx.Err()}
}

func (rt *ThrottlingRoundTripper) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		closeRequestBody(req)
		return nil, err
	}
	return rt.Delegate.RoundTrip(req)
}

func (rt *ThrottlingRoundTripper) discardResponse(f *throttle.Future[*http.Response]) {
	resp, err := f.Result()
	if err != nil || resp == nil {
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			rt.logger.Error("failed to close abandoned response body", log.Error(closeErr))
		}
	}()
	if _, err = io.Copy(io.Discard, resp.Body); err != nil {
		rt.logger.Error("failed to discard abandoned response body", log.Error(err))
	}
}

func requestHost(req *http.Request) string {
	return strings.ToLower(req.URL.Host)
}

func normalizeHostConfigs(hostConfigs map[string]throttle.Config) map[string]throttle.Config {
	if len(hostConfigs) == 0 {
		return nil
	}
	res := make(map[string]throttle.Config, len(hostConfigs))
	for host, cfg := range hostConfigs {
		res[strings.ToLower(host)] = cfg
	}
	return res
}

func closeRequestBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close() // Per RoundTripper contract.
	}
}

// ThrottlingError is returned by ThrottlingRoundTripper when a request could not be sent
// because of the throttle itself: its queue was full, or the request context ended while it was waiting.
type ThrottlingError struct {
	Inner error
}

func (e *ThrottlingError) Error() string {
	return fmt.Sprintf("wait due to client side throttling: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *ThrottlingError) Unwrap() error {
	return e.Inner
}
