package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// untracedPaths are probe and scrape endpoints whose spans would only
// be noise on the trace backend.
var untracedPaths = map[string]struct{}{
	"/health":       {},
	"/health/ready": {},
	"/metrics":      {},
}

// Tracing wraps the handler in otelhttp instrumentation: one server span
// per request, named "METHOD path" ("GET /search"), with W3C trace
// context propagated from inbound traceparent/tracestate headers. Probe
// and scrape endpoints are not traced. Place after RequestID so the
// request id is in context when the span starts.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				_, skip := untracedPaths[r.URL.Path]
				return !skip
			}),
		)
	}
}

// GetTraceID returns the active trace id for the request, or "".
func GetTraceID(r *http.Request) string {
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// GetSpanID returns the active span id for the request, or "".
func GetSpanID(r *http.Request) string {
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}
