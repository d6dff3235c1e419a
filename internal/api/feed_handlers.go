package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/eventide-app/eventide/internal/feed"
	"github.com/eventide-app/eventide/internal/middleware"
	"github.com/eventide-app/eventide/internal/search"
)

// FeedHandlers holds dependencies for discovery feed HTTP handlers.
type FeedHandlers struct {
	composer *feed.Composer
}

// NewFeedHandlers creates a new FeedHandlers instance.
func NewFeedHandlers(composer *feed.Composer) *FeedHandlers {
	return &FeedHandlers{composer: composer}
}

// Discover handles GET /discover - the composed personalized feed.
// Stream include flags default to true; pass include_<stream>=false to
// opt a stream out.
func (h *FeedHandlers) Discover(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	req := feed.Request{
		UserID: strings.TrimSpace(params.Get("user_id")),
	}

	if locStr := strings.TrimSpace(params.Get("location")); locStr != "" {
		point, err := parseLocation(locStr)
		if err != nil {
			h.validationError(w, r, "location must be in format: lat,lng")
			return
		}
		req.Location = point
	}

	if radiusStr := params.Get("radius_km"); radiusStr != "" {
		radius, err := strconv.ParseFloat(radiusStr, 64)
		if err != nil {
			h.validationError(w, r, "radius_km must be a number")
			return
		}
		req.RadiusKm = radius
	}

	if catStr := strings.TrimSpace(params.Get("categories")); catStr != "" {
		for _, raw := range strings.Split(catStr, ",") {
			if c := strings.TrimSpace(raw); c != "" {
				req.Categories = append(req.Categories, c)
			}
		}
	}

	var err error
	if req.IncludeTrending, err = parseBoolDefaultTrue(params.Get("include_trending")); err != nil {
		h.validationError(w, r, "include_trending must be a boolean")
		return
	}
	if req.IncludeNearby, err = parseBoolDefaultTrue(params.Get("include_nearby")); err != nil {
		h.validationError(w, r, "include_nearby must be a boolean")
		return
	}
	if req.IncludeRecommended, err = parseBoolDefaultTrue(params.Get("include_recommendations")); err != nil {
		h.validationError(w, r, "include_recommendations must be a boolean")
		return
	}
	if req.IncludeFollowing, err = parseBoolDefaultTrue(params.Get("include_following")); err != nil {
		h.validationError(w, r, "include_following must be a boolean")
		return
	}

	if req.Limit, err = parseIntParam(params.Get("limit"), 0); err != nil {
		h.validationError(w, r, "limit must be a positive integer")
		return
	}
	if req.Offset, err = parseIntParam(params.Get("offset"), 0); err != nil {
		h.validationError(w, r, "offset must be a non-negative integer")
		return
	}

	composed, err := h.composer.Compose(r.Context(), req)
	if err != nil {
		var verr *search.ValidationError
		if errors.As(err, &verr) {
			h.validationError(w, r, verr.Error())
			return
		}
		slog.ErrorContext(r.Context(), "feed composition failed", "error", err, "user_id", req.UserID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to compose feed")
		return
	}

	writeJSON(w, r, http.StatusOK, composed)
}

// validationError writes a standard 400 validation error response.
func (h *FeedHandlers) validationError(w http.ResponseWriter, r *http.Request, message string) {
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
	WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, message)
}

// parseBoolDefaultTrue parses an optional boolean query parameter that
// defaults to true when absent.
func parseBoolDefaultTrue(s string) (bool, error) {
	if s == "" {
		return true, nil
	}
	return strconv.ParseBool(s)
}
