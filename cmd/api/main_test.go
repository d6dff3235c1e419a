package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eventide-app/eventide/internal/api"
	"github.com/eventide-app/eventide/internal/catalog"
	"github.com/eventide-app/eventide/internal/feed"
	"github.com/eventide-app/eventide/internal/middleware"
	"github.com/eventide-app/eventide/internal/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newTestServer assembles the production handler stack on the in-memory
// store: the same router and middleware chain main builds, minus Postgres,
// Redis, and the OTLP exporter.
func newTestServer(t *testing.T, store *catalog.InMemoryStore) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	aggregator := search.NewAggregator()

	searchService := search.NewService(store, search.NewMemoryCache(), aggregator, nil, nil, logger, search.Options{
		CacheTTL:       time.Hour,
		BranchTimeout:  2 * time.Second,
		RequestTimeout: 5 * time.Second,
	})
	composer := feed.NewComposer(store, aggregator, nil, logger, feed.Options{
		BranchTimeout:  2 * time.Second,
		TrendingWindow: 24 * time.Hour,
	})

	registry := prometheus.NewRegistry()
	mwMetrics := middleware.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		searchService.Metrics().Register,
		composer.Metrics().Register,
		mwMetrics.Register,
	} {
		if err := register(registry); err != nil {
			t.Fatalf("register metrics: %v", err)
		}
	}

	mux := api.NewRouter(api.RouterConfig{
		SearchService:  searchService,
		FeedComposer:   composer,
		Health:         api.NewHealthHandlers(api.HealthHandlersConfig{}),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	var handler http.Handler = mux
	handler = middleware.CORS(middleware.CORSConfig{})(handler)
	handler = middleware.RateLimiter(middleware.RateLimiterOptions{
		Store:   middleware.NewInMemoryRateLimitStore(),
		Config:  middleware.DefaultSearchLimit(),
		KeyFunc: middleware.UserKeyFunc(),
		Metrics: mwMetrics,
	})(handler)
	handler = middleware.HTTPMetrics(mwMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func seedBerlinCatalog(t *testing.T) *catalog.InMemoryStore {
	t.Helper()
	now := time.Now().UTC()

	store := catalog.NewInMemoryStore()
	store.AddEvent(&catalog.Event{
		Title:      "Warehouse Rave",
		Category:   "music",
		Tags:       []string{"techno", "rave"},
		City:       "Berlin",
		StartsAt:   now.Add(48 * time.Hour),
		EndsAt:     now.Add(56 * time.Hour),
		Attendees:  420,
		Visibility: "public",
		Status:     "published",
		CreatedAt:  now.Add(-72 * time.Hour),
	})
	store.AddOrganization(&catalog.Organization{
		Name:       "Rave Kollektiv",
		Category:   "music",
		City:       "Berlin",
		Followers:  1200,
		Verified:   true,
		Visibility: "public",
		CreatedAt:  now.Add(-365 * 24 * time.Hour),
	})
	store.AddVenue(&catalog.Venue{
		Name:       "Kraftwerk Hall",
		City:       "Berlin",
		Capacity:   900,
		Visibility: "public",
		CreatedAt:  now.Add(-365 * 24 * time.Hour),
	})
	return store
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestServer_SearchServesSeededCatalog(t *testing.T) {
	server := newTestServer(t, seedBerlinCatalog(t))

	var body api.SearchResponse
	resp := getJSON(t, server.URL+"/search?q=rave", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID header")
	}

	events := body.Results["events"]
	if len(events) != 1 || events[0].Candidate.Title != "Warehouse Rave" {
		t.Fatalf("events = %+v, want the seeded Warehouse Rave", events)
	}
	orgs := body.Results["organizations"]
	if len(orgs) != 1 || orgs[0].Candidate.Title != "Rave Kollektiv" {
		t.Fatalf("organizations = %+v, want the seeded Rave Kollektiv", orgs)
	}
	if body.Meta.Total != 2 {
		t.Errorf("meta.total = %d, want 2", body.Meta.Total)
	}
}

func TestServer_SearchPopulatesTrending(t *testing.T) {
	server := newTestServer(t, seedBerlinCatalog(t))

	for i := 0; i < 3; i++ {
		getJSON(t, server.URL+"/search?q=warehouse+rave", nil)
	}

	var body api.TrendingResponse
	resp := getJSON(t, server.URL+"/search/trending", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(body.Trending) == 0 {
		t.Fatal("trending is empty after repeated searches")
	}
	if body.Trending[0].Query != "warehouse rave" {
		t.Errorf("top trending query = %q, want %q", body.Trending[0].Query, "warehouse rave")
	}
}

func TestServer_DiscoverReturnsFeed(t *testing.T) {
	server := newTestServer(t, seedBerlinCatalog(t))

	var body feed.Feed
	resp := getJSON(t, server.URL+"/discover", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(body.Events) == 0 {
		t.Fatal("discover feed is empty with a seeded catalog")
	}
}

func TestServer_HealthProbesAndMetrics(t *testing.T) {
	server := newTestServer(t, seedBerlinCatalog(t))

	var health api.HealthResponse
	if resp := getJSON(t, server.URL+"/health", &health); resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %d, want 200", resp.StatusCode)
	}
	if health.Status != "healthy" {
		t.Errorf("/health status field = %q, want healthy", health.Status)
	}
	if resp := getJSON(t, server.URL+"/health/ready", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("/health/ready status = %d, want 200", resp.StatusCode)
	}

	// Drive one request through the chain, then check it shows up in the
	// exported metrics under the eventide namespace.
	getJSON(t, server.URL+"/search?q=rave", nil)

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read /metrics: %v", err)
	}
	if !strings.Contains(string(raw), middleware.MetricHTTPRequestsTotal) {
		t.Errorf("/metrics output missing %s", middleware.MetricHTTPRequestsTotal)
	}
}

func TestServer_UnknownRouteReturnsErrorEnvelope(t *testing.T) {
	server := newTestServer(t, seedBerlinCatalog(t))

	var body api.ErrorResponse
	resp := getJSON(t, server.URL+"/nope", &body)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body.Error.Code != api.ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", body.Error.Code, api.ErrCodeNotFound)
	}
}

func TestServer_GracefulShutdownDrainsInFlightRequest(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"results":{}}`))
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := &http.Server{Handler: middleware.RequestID(slow)}
	go func() { _ = server.Serve(listener) }()

	result := make(chan error, 1)
	go func() {
		resp, err := http.Get("http://" + listener.Addr().String() + "/search")
		if err == nil {
			if resp.StatusCode != http.StatusOK {
				err = fmt.Errorf("status %d", resp.StatusCode)
			}
			resp.Body.Close()
		}
		result <- err
	}()

	<-started

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownDone <- server.Shutdown(ctx)
	}()

	// Shutdown must wait for the in-flight request, not kill it.
	time.Sleep(50 * time.Millisecond)
	close(release)

	if err := <-result; err != nil {
		t.Fatalf("in-flight request failed during shutdown: %v", err)
	}
	if err := <-shutdownDone; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
