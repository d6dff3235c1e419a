package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func benchHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"results":{}}`))
	})
}

func benchMetrics(b *testing.B) *Metrics {
	b.Helper()
	m := NewMetrics()
	if err := m.Register(prometheus.NewRegistry()); err != nil {
		b.Fatalf("Register: %v", err)
	}
	return m
}

func BenchmarkHTTPMetrics_Overhead(b *testing.B) {
	inner := benchHandler()
	req := httptest.NewRequest(http.MethodGet, "/search?q=rave", nil)

	b.Run("baseline", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			inner.ServeHTTP(httptest.NewRecorder(), req)
		}
	})

	b.Run("instrumented", func(b *testing.B) {
		wrapped := HTTPMetrics(benchMetrics(b))(inner)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			wrapped.ServeHTTP(httptest.NewRecorder(), req)
		}
	})
}

func BenchmarkHTTPMetrics_ProbeExclusion(b *testing.B) {
	wrapped := HTTPMetrics(benchMetrics(b))(benchHandler())
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func BenchmarkHTTPMetrics_RouteMix(b *testing.B) {
	wrapped := HTTPMetrics(benchMetrics(b))(benchHandler())
	paths := []string{"/search", "/discover", "/events/evt-1", "/organizations/org-9/events"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, paths[i%len(paths)], nil)
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
	}
}
