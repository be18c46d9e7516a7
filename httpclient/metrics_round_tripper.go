/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/storescrape/scrapekit/internal/libinfo"
)

const (
	metricsLabelHost   = "host"
	metricsLabelMethod = "method"
	metricsLabelStatus = "status"
)

// DefaultRequestDurationBuckets is the default set of buckets for the request duration histogram.
var DefaultRequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// MetricsCollector is an interface for collecting metrics for client requests.
type MetricsCollector interface {
	// ObserveRequest observes the duration of the request and its status code ("0" if there is no response).
	ObserveRequest(host, method, status string, duration time.Duration)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string
	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
	// DurationBuckets are histogram buckets (in seconds) for the request duration.
	DurationBuckets []float64
}

// PrometheusMetrics represents Prometheus metrics for outgoing HTTP requests.
type PrometheusMetrics struct {
	RequestDuration *prometheus.HistogramVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultRequestDurationBuckets
	}
	return &PrometheusMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_client_request_duration_seconds",
			Help:        "A histogram of the http client requests durations.",
			Buckets:     buckets,
			ConstLabels: libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels),
		}, []string{metricsLabelHost, metricsLabelMethod, metricsLabelStatus}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.RequestDuration)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.RequestDuration)
}

// ObserveRequest observes the duration of the request and its status code.
func (pm *PrometheusMetrics) ObserveRequest(host, method, status string, duration time.Duration) {
	pm.RequestDuration.WithLabelValues(host, method, status).Observe(duration.Seconds())
}

// MetricsRoundTripper is an HTTP transport that measures requests done.
type MetricsRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// Collector is a metrics collector.
	Collector MetricsCollector
}

// NewMetricsRoundTripper creates an HTTP transport that measures requests done.
func NewMetricsRoundTripper(delegate http.RoundTripper, collector MetricsCollector) *MetricsRoundTripper {
	return &MetricsRoundTripper{Delegate: delegate, Collector: collector}
}

// RoundTrip measures external requests done.
// Placed below ThrottlingRoundTripper in the chain, it does not count the time spent in the throttle queue.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Collector == nil {
		return rt.Delegate.RoundTrip(r)
	}

	status := "0"
	start := time.Now()

	resp, err := rt.Delegate.RoundTrip(r)
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	rt.Collector.ObserveRequest(strings.ToLower(r.URL.Host), r.Method, status, time.Since(start))
	return resp, err
}
