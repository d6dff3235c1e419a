package api

import (
	"log/slog"
	"net/http"

	"github.com/eventide-app/eventide/internal/feed"
	"github.com/eventide-app/eventide/internal/middleware"
	"github.com/eventide-app/eventide/internal/search"
)

// RouterConfig holds the dependencies the HTTP router wires together.
type RouterConfig struct {
	SearchService *search.Service
	FeedComposer  *feed.Composer
	Health        *HealthHandlers

	// MetricsHandler serves GET /metrics (usually promhttp). Optional.
	MetricsHandler http.Handler
}

// NewRouter builds the API route table.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	searchHandlers := NewSearchHandlers(cfg.SearchService)
	feedHandlers := NewFeedHandlers(cfg.FeedComposer)

	mux.HandleFunc("/search", requireGet(searchHandlers.Search))
	mux.HandleFunc("/search/suggestions", requireGet(searchHandlers.Suggestions))
	mux.HandleFunc("/search/trending", requireGet(searchHandlers.Trending))
	mux.HandleFunc("/discover", requireGet(feedHandlers.Discover))

	if cfg.Health != nil {
		mux.HandleFunc("/health", cfg.Health.Health)
		mux.HandleFunc("/health/ready", cfg.Health.Ready)
	}

	if cfg.MetricsHandler != nil {
		mux.Handle("/metrics", cfg.MetricsHandler)
	}

	// Root endpoint reports service identity; everything unrouted is a 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"eventide-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	return mux
}

// requireGet rejects non-GET requests with a structured 405.
func requireGet(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
			return
		}
		next(w, r)
	}
}
