package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func perMinute(n int) RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: n, WindowDuration: time.Minute}
}

func limitedSearchHandler(store RateLimitStore, config RateLimitConfig, m *Metrics) http.Handler {
	return RateLimiter(RateLimiterOptions{
		Store:   store,
		Config:  config,
		KeyFunc: UserKeyFunc(),
		Metrics: m,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"results":{}}`))
	}))
}

func searchRequestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/search?q=rave", nil)
	req.RemoteAddr = addr
	return req
}

func TestInMemoryStore_AllowUpToLimit(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := perMinute(5)

	for i := 0; i < 5; i++ {
		allowed, retryAfter := store.Allow(context.Background(), "user:user-42", cfg)
		if !allowed {
			t.Fatalf("request %d blocked, want the full window budget allowed", i+1)
		}
		if retryAfter != 0 {
			t.Errorf("request %d retryAfter = %d, want 0 while allowed", i+1, retryAfter)
		}
	}

	allowed, retryAfter := store.Allow(context.Background(), "user:user-42", cfg)
	if allowed {
		t.Fatal("6th request allowed, want blocked")
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want within the window", retryAfter)
	}
}

func TestInMemoryStore_KeysAreIndependent(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := perMinute(1)

	if allowed, _ := store.Allow(context.Background(), "user:user-42", cfg); !allowed {
		t.Fatal("first key blocked on first request")
	}
	if allowed, _ := store.Allow(context.Background(), "user:user-42", cfg); allowed {
		t.Fatal("first key allowed over budget")
	}
	if allowed, _ := store.Allow(context.Background(), "ip:203.0.113.9", cfg); !allowed {
		t.Error("second key blocked by first key's budget")
	}
}

func TestInMemoryStore_WindowExpiryResets(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 50 * time.Millisecond}

	if allowed, _ := store.Allow(context.Background(), "user:user-42", cfg); !allowed {
		t.Fatal("first request blocked")
	}
	if allowed, _ := store.Allow(context.Background(), "user:user-42", cfg); allowed {
		t.Fatal("second request allowed within the window")
	}

	time.Sleep(60 * time.Millisecond)
	if allowed, _ := store.Allow(context.Background(), "user:user-42", cfg); !allowed {
		t.Error("request blocked after the window expired")
	}
}

func TestInMemoryStore_ConcurrentBudgetHolds(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := perMinute(50)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.Allow(context.Background(), "user:user-42", cfg); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly the window budget of 50", allowed)
	}
}

func TestInMemoryStore_CleanupDropsExpiredBuckets(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	short := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 10 * time.Millisecond}

	store.Allow(context.Background(), "user:gone", short)
	store.Allow(context.Background(), "user:kept", perMinute(10))

	time.Sleep(20 * time.Millisecond)
	store.Cleanup()

	store.mu.Lock()
	_, goneExists := store.buckets["user:gone"]
	_, keptExists := store.buckets["user:kept"]
	store.mu.Unlock()

	if goneExists {
		t.Error("expired bucket survived Cleanup")
	}
	if !keptExists {
		t.Error("live bucket dropped by Cleanup")
	}
}

func TestIPKeyFunc(t *testing.T) {
	keyFunc := IPKeyFunc()

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr with port",
			remoteAddr: "203.0.113.9:51234",
			want:       "203.0.113.9",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:51234",
			want:       "2001:db8::1",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "x-forwarded-for chain keeps first hop",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": " 203.0.113.9 , 10.0.0.2"},
			want:       "203.0.113.9",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := searchRequestFrom(tt.remoteAddr)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := keyFunc(req); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserKeyFunc_PrefersUserOverIP(t *testing.T) {
	keyFunc := UserKeyFunc()

	req := searchRequestFrom("203.0.113.9:51234")
	if got := keyFunc(req); got != "ip:203.0.113.9" {
		t.Errorf("anonymous key = %q, want ip fallback", got)
	}

	req = req.WithContext(SetUserID(req.Context(), "user-42"))
	if got := keyFunc(req); got != "user:user-42" {
		t.Errorf("authenticated key = %q, want user id", got)
	}
}

func TestRateLimiter_AllowsWithinBudget(t *testing.T) {
	handler := limitedSearchHandler(NewInMemoryRateLimitStore(), perMinute(10), nil)

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, searchRequestFrom("203.0.113.9:51234"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestRateLimiter_BlocksWithRetryHeaders(t *testing.T) {
	handler := limitedSearchHandler(NewInMemoryRateLimitStore(), perMinute(2), nil)

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), searchRequestFrom("203.0.113.9:51234"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, searchRequestFrom("203.0.113.9:51234"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 || retryAfter > 60 {
		t.Errorf("Retry-After = %q, want seconds within the window", rec.Header().Get("Retry-After"))
	}
	reset, err := strconv.ParseInt(rec.Header().Get("X-RateLimit-Reset"), 10, 64)
	if err != nil || reset < time.Now().Unix() {
		t.Errorf("X-RateLimit-Reset = %q, want a future Unix timestamp", rec.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	handler := limitedSearchHandler(NewInMemoryRateLimitStore(), perMinute(1), nil)

	handler.ServeHTTP(httptest.NewRecorder(), searchRequestFrom("203.0.113.9:51234"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, searchRequestFrom("203.0.113.9:51234"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("same client: status = %d, want 429", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, searchRequestFrom("198.51.100.7:51234"))
	if rec.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_RecordsMetrics(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	handler := limitedSearchHandler(NewInMemoryRateLimitStore(), perMinute(1), m)

	handler.ServeHTTP(httptest.NewRecorder(), searchRequestFrom("203.0.113.9:51234"))
	handler.ServeHTTP(httptest.NewRecorder(), searchRequestFrom("203.0.113.9:51234"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	checks := findFamily(families, MetricRateLimitRequests)
	if checks == nil {
		t.Fatal("rate limit checks family missing")
	}
	if got := checks.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("checks counter = %v, want 2", got)
	}

	blocked := findFamily(families, MetricRateLimitBlocked)
	if blocked == nil || len(blocked.GetMetric()) != 1 {
		t.Fatal("blocked family missing after a rejection")
	}
	labels := map[string]string{}
	for _, lp := range blocked.GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	if labels["endpoint"] != "/search" || labels["key_type"] != "ip" {
		t.Errorf("blocked labels = %v, want endpoint=/search key_type=ip", labels)
	}
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{"valid", perMinute(30), false},
		{"zero requests", RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}, true},
		{"negative requests", RateLimitConfig{RequestsPerWindow: -1, WindowDuration: time.Minute}, true},
		{"zero window", RateLimitConfig{RequestsPerWindow: 30}, true},
		{"negative window", RateLimitConfig{RequestsPerWindow: 30, WindowDuration: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultLimits(t *testing.T) {
	if def := DefaultGlobalLimit(); def.RequestsPerWindow != 100 || def.WindowDuration != time.Minute {
		t.Errorf("global default = %+v, want 100/min", def)
	}
	if def := DefaultSearchLimit(); def.RequestsPerWindow != 30 || def.WindowDuration != time.Minute {
		t.Errorf("search default = %+v, want 30/min", def)
	}
}

func BenchmarkInMemoryStore_Allow(b *testing.B) {
	store := NewInMemoryRateLimitStore()
	cfg := perMinute(1 << 30)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			store.Allow(context.Background(), fmt.Sprintf("ip:203.0.113.%d", i%32), cfg)
			i++
		}
	})
}
