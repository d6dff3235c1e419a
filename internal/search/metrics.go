package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSearchesTotal       = "search_requests_total"
	MetricBranchFailures      = "search_branch_failures_total"
	MetricCacheLookups        = "search_cache_lookups_total"
	MetricSearchDuration      = "search_duration_seconds"
	MetricAnalyticsFailures   = "search_analytics_failures_total"
	MetricValidationRejects   = "search_validation_rejections_total"
)

// Metrics contains Prometheus metrics for the search pipeline.
// All operations are thread-safe.
type Metrics struct {
	searchesTotal      *prometheus.CounterVec
	branchFailures     *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	searchDuration     prometheus.Histogram
	analyticsFailures  prometheus.Counter
	validationRejects  prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		searchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSearchesTotal,
			Help: "Total number of search requests by outcome",
		}, []string{"outcome"}),
		branchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBranchFailures,
			Help: "Total number of failed entity-type fetch branches",
		}, []string{"entity"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCacheLookups,
			Help: "Total number of result cache lookups by outcome",
		}, []string{"outcome"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricSearchDuration,
			Help:    "Histogram of search request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		analyticsFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricAnalyticsFailures,
			Help: "Total number of swallowed analytics sink failures",
		}),
		validationRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricValidationRejects,
			Help: "Total number of search requests rejected by validation",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.searchesTotal,
		m.branchFailures,
		m.cacheLookups,
		m.searchDuration,
		m.analyticsFailures,
		m.validationRejects,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordSearch increments the request counter for an outcome
// ("ok", "partial", "validation_error", "unavailable").
func (m *Metrics) RecordSearch(outcome string) {
	m.searchesTotal.WithLabelValues(outcome).Inc()
}

// RecordBranchFailure increments the failed-branch counter for an entity type.
func (m *Metrics) RecordBranchFailure(entity string) {
	m.branchFailures.WithLabelValues(entity).Inc()
}

// RecordCacheLookup increments the cache lookup counter for an outcome
// ("hit", "miss", "error").
func (m *Metrics) RecordCacheLookup(outcome string) {
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// ObserveDuration records one search request duration in seconds.
func (m *Metrics) ObserveDuration(seconds float64) {
	m.searchDuration.Observe(seconds)
}

// RecordAnalyticsFailure increments the swallowed analytics failure counter.
func (m *Metrics) RecordAnalyticsFailure() {
	m.analyticsFailures.Inc()
}

// RecordValidationReject increments the validation rejection counter.
func (m *Metrics) RecordValidationReject() {
	m.validationRejects.Inc()
}
