// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/eventide-app/eventide/internal/api"
	"github.com/eventide-app/eventide/internal/catalog"
	"github.com/eventide-app/eventide/internal/config"
	"github.com/eventide-app/eventide/internal/db"
	"github.com/eventide-app/eventide/internal/feed"
	"github.com/eventide-app/eventide/internal/health"
	"github.com/eventide-app/eventide/internal/middleware"
	"github.com/eventide-app/eventide/internal/ranking"
	"github.com/eventide-app/eventide/internal/search"
	"github.com/eventide-app/eventide/internal/tracing"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Eventide API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	// Initialize logger
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := make([]any, 0, 16)
	for k, v := range cfg.LogSummary() {
		summary = append(summary, slog.String(k, v))
	}
	logger.Info("configuration loaded", summary...)

	ctx := context.Background()

	// Tracing (no-op when no OTLP endpoint is configured)
	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "eventide-api",
		Enabled:      cfg.OTLPEndpoint != "",
		Environment:  cfg.Env,
		ExporterType: "otlp-" + cfg.OTLPProtocol,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Database
	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()
	store := catalog.NewPostgresStore(sqlDB, logger)
	dbChecker := health.NewDBChecker(sqlDB)

	// Result cache: Redis when configured, in-process otherwise
	var (
		cache       search.ResultCache
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		cache = search.NewRedisCache(redisClient)
	} else {
		memCache := search.NewMemoryCache()
		go memCache.RunPeriodicSweep(ctx, 5*time.Minute, logger)
		cache = memCache
	}

	// Ranking weights, optionally calibrated from file
	var weights *ranking.Weights
	if cfg.RankingConfigPath != "" {
		weights, err = ranking.LoadCalibration(cfg.RankingConfigPath)
		if err != nil {
			logger.Error("failed to load ranking calibration", "error", err, "path", cfg.RankingConfigPath)
			os.Exit(1)
		}
	}

	aggregator := search.NewAggregator()

	// The trending window plus slack bounds the query log; anything older
	// can no longer influence a trending read.
	logRetention := 2 * cfg.TrendingWindow()
	go aggregator.RunPeriodicPrune(ctx, 10*time.Minute, logRetention, logger)

	searchService := search.NewService(store, cache, aggregator,
		search.NewPostgresSink(sqlDB), weights, logger, search.Options{
			CacheTTL:       cfg.CacheTTL(),
			BranchTimeout:  cfg.SearchTimeout(),
			RequestTimeout: cfg.RequestDeadline(),
		})

	composer := feed.NewComposer(store, aggregator, weights, logger, feed.Options{
		BranchTimeout:  cfg.SearchTimeout(),
		TrendingWindow: cfg.TrendingWindow(),
		Interleave:     cfg.FeedInterleave,
	})

	// Metrics
	registry := prometheus.NewRegistry()
	mwMetrics := middleware.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		searchService.Metrics().Register,
		composer.Metrics().Register,
		mwMetrics.Register,
	} {
		if err := register(registry); err != nil {
			logger.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
	}

	// Health checkers
	healthConfig := api.HealthHandlersConfig{DBChecker: dbChecker}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}

	mux := api.NewRouter(api.RouterConfig{
		SearchService:  searchService,
		FeedComposer:   composer,
		Health:         api.NewHealthHandlers(healthConfig),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	// Rate limit store: shared via Redis when available
	var rateLimitStore middleware.RateLimitStore
	if redisClient != nil {
		redisStore := middleware.NewRedisRateLimitStore(redisClient)
		redisStore.SetMetrics(mwMetrics)
		rateLimitStore = redisStore
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				memStore.Cleanup()
			}
		}()
		rateLimitStore = memStore
	}
	rateLimit := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.SearchRateLimitPerMinute,
		WindowDuration:    time.Minute,
	}

	// Apply middleware: RequestID -> Logging -> HTTPMetrics -> RateLimiter -> CORS -> Tracing
	var handler http.Handler = mux
	handler = middleware.Tracing("eventide-api")(handler)
	handler = middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins})(handler)
	handler = middleware.RateLimiter(middleware.RateLimiterOptions{
		Store:   rateLimitStore,
		Config:  rateLimit,
		KeyFunc: middleware.UserKeyFunc(),
		Metrics: mwMetrics,
	})(handler)
	handler = middleware.HTTPMetrics(mwMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestDeadline() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create context with timeout for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracing", "error", err)
	}

	logger.Info("server stopped")
}
