// Package middleware provides the HTTP request pipeline: request IDs,
// structured logging, Prometheus metrics, rate limiting, CORS, and
// OpenTelemetry tracing.
package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricsNamespace prefixes every middleware metric so Eventide series
// are distinguishable on shared Prometheus backends.
const metricsNamespace = "eventide"

// Fully qualified metric names, for lookups in gathered families.
const (
	MetricHTTPRequestsTotal     = metricsNamespace + "_http_requests_total"
	MetricHTTPRequestDuration   = metricsNamespace + "_http_request_duration_seconds"
	MetricHTTPRequestSizeBytes  = metricsNamespace + "_http_request_size_bytes"
	MetricHTTPResponseSizeBytes = metricsNamespace + "_http_response_size_bytes"
	MetricRateLimitRequests     = metricsNamespace + "_rate_limit_requests_total"
	MetricRateLimitBlocked      = metricsNamespace + "_rate_limit_blocked_total"
	MetricRateLimitRedisErrors  = metricsNamespace + "_rate_limit_redis_errors_total"
)

// httpLabels dimension every HTTP series. The path label carries the
// normalized route pattern ("/events/{id}"), never the raw URL.
var httpLabels = []string{"method", "path", "status"}

// Metrics holds the pipeline's Prometheus collectors. Safe for
// concurrent use; create once and share across middleware.
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestSize      *prometheus.HistogramVec
	httpResponseSize     *prometheus.HistogramVec
	rateLimitRequests    *prometheus.CounterVec
	rateLimitBlocked     *prometheus.CounterVec
	rateLimitRedisErrors prometheus.Counter
}

// NewMetrics builds the collector set. Nothing is registered until
// Register is called with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, normalized path, and status.",
		}, httpLabels),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1.0, 2.0},
		}, httpLabels),
		httpRequestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request body size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, httpLabels),
		httpResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, httpLabels),
		rateLimitRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limit_requests_total",
			Help:      "Rate limit checks, by endpoint and key type (user or ip).",
		}, []string{"endpoint", "key_type"}),
		rateLimitBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limit_blocked_total",
			Help:      "Requests rejected by the rate limiter, by endpoint and key type.",
		}, []string{"endpoint", "key_type"}),
		rateLimitRedisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limit_redis_errors_total",
			Help:      "Redis failures during rate limiting; each one is a fail-open.",
		}),
	}
}

// Collectors returns every collector the middleware pipeline owns.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestSize,
		m.httpResponseSize,
		m.rateLimitRequests,
		m.rateLimitBlocked,
		m.rateLimitRedisErrors,
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveHTTPRequest records one served request across the four HTTP
// series. Duration is in seconds, sizes in bytes.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration float64, requestSize, responseSize int64) {
	labels := prometheus.Labels{"method": method, "path": path, "status": status}
	m.httpRequestsTotal.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration)
	m.httpRequestSize.With(labels).Observe(float64(requestSize))
	m.httpResponseSize.With(labels).Observe(float64(responseSize))
}

// IncRateLimitRequests counts one rate limit check.
func (m *Metrics) IncRateLimitRequests(endpoint, keyType string) {
	m.rateLimitRequests.WithLabelValues(endpoint, keyType).Inc()
}

// IncRateLimitBlocked counts one rejected request.
func (m *Metrics) IncRateLimitBlocked(endpoint, keyType string) {
	m.rateLimitBlocked.WithLabelValues(endpoint, keyType).Inc()
}

// IncRateLimitRedisErrors counts one fail-open caused by Redis.
func (m *Metrics) IncRateLimitRedisErrors() {
	m.rateLimitRedisErrors.Inc()
}
