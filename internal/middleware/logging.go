package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// userIDKey is the context key for user ID.
type userIDKey struct{}

// errorCodeKey is the context key for error code.
type errorCodeKey struct{}

// errorCodeHolderKey is the context key for the request-scoped error code holder.
type errorCodeHolderKey struct{}

// errorCodeHolder carries the error code across handler-derived contexts so the
// logging middleware can observe codes set deeper in the chain. Handlers derive
// new contexts with SetErrorCode; those derived contexts never flow back up to
// the middleware, so the holder provides a mutable channel that does.
type errorCodeHolder struct {
	mu   sync.Mutex
	code string
}

func (h *errorCodeHolder) set(code string) {
	h.mu.Lock()
	h.code = code
	h.mu.Unlock()
}

func (h *errorCodeHolder) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code
}

// SetUserID stores the user ID in the context.
// This should be called by authentication middleware after validating the token.
func SetUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// GetUserID retrieves the user ID from context. Returns empty string if not present.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// SetErrorCode stores an error code in the context.
// This should be called by handlers when returning error responses.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode retrieves the error code from context. Returns empty string if not present.
func GetErrorCode(ctx context.Context) string {
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	if h, ok := ctx.Value(errorCodeHolderKey{}).(*errorCodeHolder); ok {
		return h.get()
	}
	return ""
}

// UpdateResponseContext propagates the error code from a handler-derived
// context back to the request-scoped holder installed by the Logging
// middleware. Handlers that call SetErrorCode should pass the derived context
// here (WriteError does this) so the code appears in the request log entry.
// The response writer parameter is accepted for call-site convenience.
func UpdateResponseContext(_ http.ResponseWriter, ctx context.Context) {
	code, ok := ctx.Value(errorCodeKey{}).(string)
	if !ok || code == "" {
		return
	}
	if h, ok := ctx.Value(errorCodeHolderKey{}).(*errorCodeHolder); ok {
		h.set(code)
	}
}

// responseWriter captures the status code and body size for the log
// entry. Only the first WriteHeader sticks, matching net/http.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// NewLogger returns a JSON logger at info level in production and a
// text logger at debug level everywhere else.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

// Logging writes one structured entry per request: method, path,
// status, latency, sizes, request id, and the error code for 4xx/5xx
// responses. A panicking handler skips the entry; recovery middleware,
// when used, belongs outside this one.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			// Handlers report error codes through this holder.
			r = r.WithContext(context.WithValue(r.Context(), errorCodeHolderKey{}, &errorCodeHolder{}))

			next.ServeHTTP(rw, r)

			latency := time.Since(start).Milliseconds()
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", latency),
				slog.Int("size", rw.size),
			}

			if requestID := GetRequestID(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}

			if userID := GetUserID(r.Context()); userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			if rw.statusCode >= 400 {
				if errorCode := GetErrorCode(r.Context()); errorCode != "" {
					attrs = append(attrs, slog.String("error_code", errorCode))
				}
			}

			switch {
			case rw.statusCode >= 500:
				logger.LogAttrs(r.Context(), slog.LevelError, "request completed", attrs...)
			case rw.statusCode >= 400:
				logger.LogAttrs(r.Context(), slog.LevelWarn, "request completed", attrs...)
			default:
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
			}
		})
	}
}
