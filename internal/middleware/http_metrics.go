package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticRoutes are served as-is in metric labels.
var staticRoutes = map[string]struct{}{
	"/":                   {},
	"/search":             {},
	"/search/suggestions": {},
	"/search/trending":    {},
	"/discover":           {},
	"/events":             {},
	"/organizations":      {},
	"/venues":             {},
	"/posts":              {},
	"/health":             {},
	"/health/ready":       {},
	"/ready":              {},
	"/metrics":            {},
}

// entityRoutes maps an entity prefix to its known id-scoped sub-routes.
// A bare id collapses to "<prefix>/{id}"; a recognized tail yields
// "<prefix>/{id}/<tail>".
var entityRoutes = map[string][]string{
	"/events":        {"similar"},
	"/organizations": {"events"},
	"/venues":        nil,
	"/posts":         nil,
}

// normalizePath collapses dynamic id segments into route patterns so the
// path label stays low-cardinality: /events/7f3a becomes /events/{id}.
// Unrecognized paths pass through untouched.
func normalizePath(path string) string {
	if _, ok := staticRoutes[path]; ok {
		return path
	}

	for prefix, tails := range entityRoutes {
		rest, ok := strings.CutPrefix(path, prefix+"/")
		if !ok || rest == "" {
			continue
		}
		segments := strings.Split(rest, "/")
		if len(segments) == 1 {
			return prefix + "/{id}"
		}
		if len(segments) == 2 {
			for _, tail := range tails {
				if segments[1] == tail {
					return prefix + "/{id}/" + tail
				}
			}
		}
	}

	return path
}

// metricsResponseWriter captures the status code and body size flowing
// through the wrapped writer.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader records the first status code; later calls are ignored the
// way net/http ignores them.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// HTTPMetrics records request count, duration, and body sizes per
// method/path/status. Probe endpoints are skipped; kubelet traffic would
// drown the real series.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/health", "/health/ready", "/ready":
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			var requestSize int64
			if cl := r.Header.Get("Content-Length"); cl != "" {
				if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
					requestSize = n
				}
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
