package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricComposesTotal  = "feed_compose_total"
	MetricStreamFailures = "feed_stream_failures_total"
	MetricFeedDuration   = "feed_compose_duration_seconds"
)

// Metrics contains Prometheus metrics for feed composition.
// All operations are thread-safe.
type Metrics struct {
	composesTotal  *prometheus.CounterVec
	streamFailures *prometheus.CounterVec
	feedDuration   prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		composesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricComposesTotal,
			Help: "Total number of feed composition requests by outcome",
		}, []string{"outcome"}),
		streamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricStreamFailures,
			Help: "Total number of failed feed stream fetches",
		}, []string{"stream"}),
		feedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFeedDuration,
			Help:    "Histogram of feed composition duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.composesTotal,
		m.streamFailures,
		m.feedDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordCompose increments the composition counter for an outcome
// ("ok", "partial", "validation_error", "unavailable").
func (m *Metrics) RecordCompose(outcome string) {
	m.composesTotal.WithLabelValues(outcome).Inc()
}

// RecordStreamFailure increments the failed-stream counter.
func (m *Metrics) RecordStreamFailure(stream string) {
	m.streamFailures.WithLabelValues(stream).Inc()
}

// ObserveDuration records one composition duration in seconds.
func (m *Metrics) ObserveDuration(seconds float64) {
	m.feedDuration.Observe(seconds)
}
