package middleware

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// redisStoreForTest connects to a local Redis and skips the test when none
// is running. Keys are namespaced per test and cleaned up afterwards.
func redisStoreForTest(t *testing.T) (*RedisRateLimitStore, func(keys ...string)) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("redis not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })

	cleanup := func(keys ...string) {
		client.Del(context.Background(), keys...)
	}
	return NewRedisRateLimitStore(client), cleanup
}

func testKey(t *testing.T, kind string) string {
	return fmt.Sprintf("%s:%s-%d", kind, t.Name(), time.Now().UnixNano())
}

func TestRedisRateLimitStore_EnforcesSearchBudget(t *testing.T) {
	store, cleanup := redisStoreForTest(t)
	cfg := perMinute(5)
	key := testKey(t, "ip")
	defer cleanup(key)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if allowed, _ := store.Allow(ctx, key, cfg); !allowed {
			t.Fatalf("request %d within budget was blocked", i+1)
		}
	}

	allowed, retryAfter := store.Allow(ctx, key, cfg)
	if allowed {
		t.Error("request over budget was allowed")
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want within (0, 60]", retryAfter)
	}
}

func TestRedisRateLimitStore_UserAndIPBudgetsAreIndependent(t *testing.T) {
	store, cleanup := redisStoreForTest(t)
	cfg := perMinute(1)
	userKey := testKey(t, "user")
	ipKey := testKey(t, "ip")
	defer cleanup(userKey, ipKey)

	ctx := context.Background()
	if a, _ := store.Allow(ctx, userKey, cfg); !a {
		t.Error("first request on user key was blocked")
	}
	if a, _ := store.Allow(ctx, ipKey, cfg); !a {
		t.Error("first request on ip key was blocked")
	}
	if a, _ := store.Allow(ctx, userKey, cfg); a {
		t.Error("user key exceeded its budget without being blocked")
	}
	if a, _ := store.Allow(ctx, ipKey, cfg); a {
		t.Error("ip key exceeded its budget without being blocked")
	}
}

func TestRedisRateLimitStore_WindowExpiryResets(t *testing.T) {
	store, cleanup := redisStoreForTest(t)
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 100 * time.Millisecond}
	key := testKey(t, "ip")
	defer cleanup(key)

	ctx := context.Background()
	if a, _ := store.Allow(ctx, key, cfg); !a {
		t.Fatal("first request was blocked")
	}
	if a, _ := store.Allow(ctx, key, cfg); a {
		t.Fatal("second request in the same window was allowed")
	}

	time.Sleep(150 * time.Millisecond)

	if a, _ := store.Allow(ctx, key, cfg); !a {
		t.Error("request after window expiry was blocked")
	}
}

// An unreachable Redis must not take the API down with it: the store fails
// open and the limiter admits the request.
func TestRedisRateLimitStore_FailsOpenAndCountsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:1"})
	defer client.Close()

	store := NewRedisRateLimitStore(client)
	m := NewMetrics()
	if err := m.Register(prometheus.NewRegistry()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	store.SetMetrics(m)

	allowed, retryAfter := store.Allow(context.Background(), "ip:203.0.113.7", perMinute(5))
	if !allowed {
		t.Error("limiter did not fail open with Redis unreachable")
	}
	if retryAfter != 0 {
		t.Errorf("retryAfter = %d on fail-open, want 0", retryAfter)
	}
}
