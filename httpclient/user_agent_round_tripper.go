/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package httpclient

import (
	"net/http"

	"github.com/storescrape/scrapekit/internal/libinfo"
)

// UserAgentUpdateStrategy represents a strategy for updating User-Agent HTTP header.
type UserAgentUpdateStrategy int

// User-Agent update strategies.
const (
	UserAgentUpdateStrategySetIfEmpty UserAgentUpdateStrategy = iota
	UserAgentUpdateStrategyAppend
	UserAgentUpdateStrategyPrepend
)

// DefaultUserAgent returns the User-Agent sent when none is configured ("scrapekit/<version>").
func DefaultUserAgent() string {
	return libinfo.UserAgent()
}

// UserAgentRoundTripper implements http.RoundTripper interface
// and sets User-Agent HTTP header in all outgoing requests.
// Storefronts often answer differently to the Go default agent, so scrapers should always send their own.
type UserAgentRoundTripper struct {
	Delegate       http.RoundTripper
	UserAgent      string
	UpdateStrategy UserAgentUpdateStrategy
}

// NewUserAgentRoundTripper creates a new UserAgentRoundTripper that sets the header if the request has none.
func NewUserAgentRoundTripper(delegate http.RoundTripper, userAgent string) *UserAgentRoundTripper {
	return NewUserAgentRoundTripperWithStrategy(delegate, userAgent, UserAgentUpdateStrategySetIfEmpty)
}

// NewUserAgentRoundTripperWithStrategy creates a new UserAgentRoundTripper with the specified update strategy.
// DefaultUserAgent is used if userAgent is empty.
func NewUserAgentRoundTripperWithStrategy(
	delegate http.RoundTripper, userAgent string, strategy UserAgentUpdateStrategy,
) *UserAgentRoundTripper {
	if userAgent == "" {
		userAgent = DefaultUserAgent()
	}
	return &UserAgentRoundTripper{Delegate: delegate, UserAgent: userAgent, UpdateStrategy: strategy}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *UserAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	current := req.Header.Get("User-Agent")
	updated := rt.updatedUserAgent(current)
	if updated == current {
		return rt.Delegate.RoundTrip(req)
	}
	req = req.Clone(req.Context()) // Per RoundTripper contract.
	req.Header.Set("User-Agent", updated)
	return rt.Delegate.RoundTrip(req)
}

func (rt *UserAgentRoundTripper) updatedUserAgent(current string) string {
	if current == "" {
		return rt.UserAgent
	}
	switch rt.UpdateStrategy {
	case UserAgentUpdateStrategyAppend:
		return current + " " + rt.UserAgent
	case UserAgentUpdateStrategyPrepend:
		return rt.UserAgent + " " + current
	default:
		return current
	}
}
