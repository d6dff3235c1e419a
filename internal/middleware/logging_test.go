package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"log/slog"
)

// logEntry mirrors the JSON shape Logging emits.
type logEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ErrorCode string `json:"error_code"`
}

// loggedRequest runs one request through Logging and parses the entry.
func loggedRequest(t *testing.T, inner http.HandlerFunc, mutate func(*http.Request)) logEntry {
	t.Helper()

	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := Logging(logger)(inner)
	req := httptest.NewRequest(http.MethodGet, "/search?q=festival", nil)
	if mutate != nil {
		mutate(req)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_SuccessEntry(t *testing.T) {
	body := []byte(`{"results":{"events":[]}}`)
	entry := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}, nil)

	if entry.Method != "GET" || entry.Path != "/search" {
		t.Errorf("entry = %+v, want GET /search", entry)
	}
	if entry.Status != 200 || entry.Level != "INFO" {
		t.Errorf("status/level = %d/%s, want 200/INFO", entry.Status, entry.Level)
	}
	if entry.Size != len(body) {
		t.Errorf("size = %d, want %d", entry.Size, len(body))
	}
	if entry.LatencyMS < 0 {
		t.Errorf("latency_ms = %d, want >= 0", entry.LatencyMS)
	}
	if entry.ErrorCode != "" {
		t.Errorf("error_code = %q, want empty for 2xx", entry.ErrorCode)
	}
}

func TestLogging_RequestIDFromChain(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))

	handler := RequestID(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	req := httptest.NewRequest(http.MethodGet, "/discover", nil)
	req.Header.Set(RequestIDHeader, "user-7f3a9c12")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	if entry.RequestID != "user-7f3a9c12" {
		t.Errorf("request_id = %q, want the chained id", entry.RequestID)
	}
}

func TestLogging_UserIDWhenPresent(t *testing.T) {
	entry := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, func(req *http.Request) {
		*req = *req.WithContext(SetUserID(req.Context(), "user-42"))
	})

	if entry.UserID != "user-42" {
		t.Errorf("user_id = %q, want user-42", entry.UserID)
	}
}

func TestLogging_ClientErrorGetsWarnAndCode(t *testing.T) {
	entry := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "validation_error"))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"validation_error"}}`))
	}, nil)

	if entry.Level != "WARN" {
		t.Errorf("level = %s, want WARN for 4xx", entry.Level)
	}
	if entry.ErrorCode != "validation_error" {
		t.Errorf("error_code = %q, want validation_error", entry.ErrorCode)
	}
}

func TestLogging_ServerErrorGetsErrorLevel(t *testing.T) {
	entry := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "service_unavailable"))
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	if entry.Level != "ERROR" {
		t.Errorf("level = %s, want ERROR for 5xx", entry.Level)
	}
	if entry.ErrorCode != "service_unavailable" {
		t.Errorf("error_code = %q, want service_unavailable", entry.ErrorCode)
	}
}

func TestLogging_ImplicitOKStatus(t *testing.T) {
	entry := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}, nil)

	if entry.Status != 200 {
		t.Errorf("status = %d, want implicit 200", entry.Status)
	}
}

func TestNewLogger_HandlerPerEnvironment(t *testing.T) {
	if NewLogger("production") == nil {
		t.Error("production logger is nil")
	}
	if NewLogger("development") == nil {
		t.Error("development logger is nil")
	}
}

func TestUserIDContextRoundTrip(t *testing.T) {
	ctx := SetUserID(context.Background(), "user-abcd1234")
	if got := GetUserID(ctx); got != "user-abcd1234" {
		t.Errorf("GetUserID = %q", got)
	}
	if got := GetUserID(context.Background()); got != "" {
		t.Errorf("GetUserID on empty ctx = %q, want empty", got)
	}
}

func TestErrorCodeContextRoundTrip(t *testing.T) {
	ctx := SetErrorCode(context.Background(), "not_found")
	if got := GetErrorCode(ctx); got != "not_found" {
		t.Errorf("GetErrorCode = %q", got)
	}
	if got := GetErrorCode(context.Background()); got != "" {
		t.Errorf("GetErrorCode on empty ctx = %q, want empty", got)
	}
}

func TestErrorCodeHolder_VisibleAcrossDerivedContexts(t *testing.T) {
	holder := &errorCodeHolder{}
	base := context.WithValue(context.Background(), errorCodeHolderKey{}, holder)

	// A handler derives its own context; the middleware never sees it.
	derived := SetErrorCode(base, "rate_limit_exceeded")
	UpdateResponseContext(nil, derived)

	if got := GetErrorCode(base); got != "rate_limit_exceeded" {
		t.Errorf("GetErrorCode via holder = %q, want rate_limit_exceeded", got)
	}
}

func TestResponseWriter_FirstHeaderWins(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, want the first WriteHeader", rw.statusCode)
	}
}

func TestResponseWriter_SizeAccumulates(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	_, _ = rw.Write([]byte(`{"results":`))
	_, _ = rw.Write([]byte(`[]}`))

	if rw.size != 14 {
		t.Errorf("size = %d, want 14", rw.size)
	}
}
