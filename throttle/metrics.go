/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/storescrape/scrapekit/internal/libinfo"
)

const metricsLabelOutcome = "outcome"

const (
	metricsValSuccess = "success"
	metricsValFailure = "failure"
)

// MetricsCollector represents a collector of metrics describing how a throttle delays and admits calls.
type MetricsCollector interface {
	// IncEnqueued increments the total number of accepted calls.
	IncEnqueued()

	// IncRejected increments the total number of calls rejected because the queue was full.
	IncRejected()

	// ObserveAdmission records how long an admitted call waited in the queue.
	ObserveAdmission(wait time.Duration)

	// IncSettled increments the total number of settled calls.
	IncSettled(failed bool)

	// IncQueueDepth increments the number of calls waiting for admission.
	IncQueueDepth()

	// DecQueueDepth decrements the number of calls waiting for admission.
	DecQueueDepth()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// If it is not empty, PrometheusMetrics.MustCurryWith must be called with the same labels
	// before the collector is used. Otherwise, the collector will panic.
	CurriedLabelNames []string

	// AdmissionWaitBuckets are histogram buckets (in seconds) for the queue wait time.
	AdmissionWaitBuckets []float64
}

// DefaultAdmissionWaitBuckets is the default set of buckets for the queue wait histogram.
var DefaultAdmissionWaitBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// PrometheusMetrics represents Prometheus metrics for a throttle.
type PrometheusMetrics struct {
	EnqueuedTotal         *prometheus.CounterVec
	RejectedTotal         *prometheus.CounterVec
	AdmissionWaitDuration *prometheus.HistogramVec
	SettledTotal          *prometheus.CounterVec
	QueueDepth            *prometheus.GaugeVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.AdmissionWaitBuckets
	if buckets == nil {
		buckets = DefaultAdmissionWaitBuckets
	}
	opts.ConstLabels = libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels)

	enqueuedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_enqueued_total",
			Help:        "Number of calls accepted by the throttle.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_rejected_total",
			Help:        "Number of calls rejected because the throttle queue was full.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	admissionWait := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_admission_wait_seconds",
			Help:        "Time calls spent in the throttle queue before admission.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	settledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_settled_total",
			Help:        "Number of throttled calls that finished, by outcome.",
			ConstLabels: opts.ConstLabels,
		},
		append(append([]string{}, opts.CurriedLabelNames...), metricsLabelOutcome),
	)

	queueDepth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_queue_depth",
			Help:        "Number of calls waiting for admission.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	return &PrometheusMetrics{
		EnqueuedTotal:         enqueuedTotal,
		RejectedTotal:         rejectedTotal,
		AdmissionWaitDuration: admissionWait,
		SettledTotal:          settledTotal,
		QueueDepth:            queueDepth,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		EnqueuedTotal:         pm.EnqueuedTotal.MustCurryWith(labels),
		RejectedTotal:         pm.RejectedTotal.MustCurryWith(labels),
		AdmissionWaitDuration: pm.AdmissionWaitDuration.MustCurryWith(labels).(*prometheus.HistogramVec),
		SettledTotal:          pm.SettledTotal.MustCurryWith(labels),
		QueueDepth:            pm.QueueDepth.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.EnqueuedTotal,
		pm.RejectedTotal,
		pm.AdmissionWaitDuration,
		pm.SettledTotal,
		pm.QueueDepth,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.EnqueuedTotal)
	prometheus.Unregister(pm.RejectedTotal)
	prometheus.Unregister(pm.AdmissionWaitDuration)
	prometheus.Unregister(pm.SettledTotal)
	prometheus.Unregister(pm.QueueDepth)
}

// IncEnqueued increments the total number of accepted calls.
func (pm *PrometheusMetrics) IncEnqueued() {
	pm.EnqueuedTotal.With(nil).Inc()
}

// IncRejected increments the total number of rejected calls.
func (pm *PrometheusMetrics) IncRejected() {
	pm.RejectedTotal.With(nil).Inc()
}

// ObserveAdmission records the queue wait time of an admitted call.
func (pm *PrometheusMetrics) ObserveAdmission(wait time.Duration) {
	pm.AdmissionWaitDuration.With(nil).Observe(wait.Seconds())
}

// IncSettled increments the total number of settled calls.
func (pm *PrometheusMetrics) IncSettled(failed bool) {
	outcome := metricsValSuccess
	if failed {
		outcome = metricsValFailure
	}
	pm.SettledTotal.With(prometheus.Labels{metricsLabelOutcome: outcome}).Inc()
}

// IncQueueDepth increments the number of calls waiting for admission.
// Throttles sharing a collector add up, so the gauge is never overwritten by one of them.
func (pm *PrometheusMetrics) IncQueueDepth() {
	pm.QueueDepth.With(nil).Inc()
}

// DecQueueDepth decrements the number of calls waiting for admission.
func (pm *PrometheusMetrics) DecQueueDepth() {
	pm.QueueDepth.With(nil).Dec()
}

type disabledMetrics struct{}

func (disabledMetrics) IncEnqueued()                   {}
func (disabledMetrics) IncRejected()                   {}
func (disabledMetrics) ObserveAdmission(time.Duration) {}
func (disabledMetrics) IncSettled(bool)                {}
func (disabledMetrics) IncQueueDepth()                 {}
func (disabledMetrics) DecQueueDepth()                 {}

var disabledMetricsCollector = disabledMetrics{}
