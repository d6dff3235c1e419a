package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eventide-app/eventide/internal/catalog"
	"github.com/eventide-app/eventide/internal/middleware"
	"github.com/eventide-app/eventide/internal/search"
)

// SearchHandlers holds dependencies for search HTTP handlers.
type SearchHandlers struct {
	service *search.Service
}

// NewSearchHandlers creates a new SearchHandlers instance.
func NewSearchHandlers(service *search.Service) *SearchHandlers {
	return &SearchHandlers{service: service}
}

// Enrichment limits for inline suggestions/trending blocks.
const (
	inlineSuggestionLimit = 5
	inlineTrendingLimit   = 5

	DefaultSuggestionLimit = 10
	MaxSuggestionLimit     = 25
	DefaultTrendingLimit   = 10
	MaxTrendingLimit       = 25
)

// SearchResponse represents the response for GET /search. Results are
// grouped by entity type; every requested type appears as a key even when
// it matched nothing.
type SearchResponse struct {
	Results     map[string][]search.ScoredResult `json:"results"`
	Meta        search.Meta                      `json:"meta"`
	Suggestions []search.SuggestionRecord        `json:"suggestions,omitempty"`
	Trending    []search.TrendingQuery           `json:"trending,omitempty"`
}

// SuggestionsResponse represents the response for GET /search/suggestions.
type SuggestionsResponse struct {
	Suggestions []search.SuggestionRecord `json:"suggestions"`
	Count       int                       `json:"count"`
}

// TrendingResponse represents the response for GET /search/trending.
type TrendingResponse struct {
	Trending    []search.TrendingQuery `json:"trending"`
	WindowHours int                    `json:"window_hours"`
}

// entityTypeKey maps an entity type to its plural JSON key.
func entityTypeKey(t catalog.EntityType) string {
	switch t {
	case catalog.EntityEvent:
		return "events"
	case catalog.EntityOrganization:
		return "organizations"
	case catalog.EntityVenue:
		return "venues"
	case catalog.EntityPost:
		return "posts"
	default:
		return string(t)
	}
}

// Search handles GET /search - multi-entity ranked search.
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q := search.Query{Text: params.Get("q")}

	// Parse entity types (comma-separated, defaults to all)
	if typesStr := strings.TrimSpace(params.Get("types")); typesStr != "" {
		for _, raw := range strings.Split(typesStr, ",") {
			t, ok := catalog.ParseEntityType(strings.TrimSpace(raw))
			if !ok {
				h.validationError(w, r, "Unknown entity type: "+strings.TrimSpace(raw))
				return
			}
			q.Types = append(q.Types, t)
		}
	}

	q.Filter.Category = strings.TrimSpace(params.Get("category"))

	// Parse location "lat,lng"
	if locStr := strings.TrimSpace(params.Get("location")); locStr != "" {
		point, err := parseLocation(locStr)
		if err != nil {
			h.validationError(w, r, "location must be in format: lat,lng")
			return
		}
		q.Filter.Location = point
	}

	if radiusStr := params.Get("radius_km"); radiusStr != "" {
		radius, err := strconv.ParseFloat(radiusStr, 64)
		if err != nil {
			h.validationError(w, r, "radius_km must be a number")
			return
		}
		q.Filter.RadiusKm = radius
	}

	if fromStr := params.Get("date_from"); fromStr != "" {
		from, err := parseDate(fromStr)
		if err != nil {
			h.validationError(w, r, "date_from must be RFC3339 or YYYY-MM-DD")
			return
		}
		q.Filter.DateFrom = &from
	}

	if toStr := params.Get("date_to"); toStr != "" {
		to, err := parseDate(toStr)
		if err != nil {
			h.validationError(w, r, "date_to must be RFC3339 or YYYY-MM-DD")
			return
		}
		q.Filter.DateTo = &to
	}

	if sortBy, ok := search.ParseSortBy(params.Get("sort_by")); ok {
		q.SortBy = sortBy
	} else {
		h.validationError(w, r, "sort_by must be one of: relevance, date, popularity, distance")
		return
	}

	var err error
	if q.Limit, err = parseIntParam(params.Get("limit"), 0); err != nil {
		h.validationError(w, r, "limit must be a positive integer")
		return
	}
	if q.Offset, err = parseIntParam(params.Get("offset"), 0); err != nil {
		h.validationError(w, r, "offset must be a non-negative integer")
		return
	}

	if q.Filter.VerifiedOnly, err = parseBoolParam(params.Get("verified_only")); err != nil {
		h.validationError(w, r, "verified_only must be a boolean")
		return
	}
	if q.Filter.IncludePast, err = parseBoolParam(params.Get("include_past_events")); err != nil {
		h.validationError(w, r, "include_past_events must be a boolean")
		return
	}

	includeSuggestions, err := parseBoolParam(params.Get("include_suggestions"))
	if err != nil {
		h.validationError(w, r, "include_suggestions must be a boolean")
		return
	}
	includeTrending, err := parseBoolParam(params.Get("include_trending"))
	if err != nil {
		h.validationError(w, r, "include_trending must be a boolean")
		return
	}

	resp, err := h.service.Search(r.Context(), q)
	if err != nil {
		var verr *search.ValidationError
		switch {
		case errors.As(err, &verr):
			h.validationError(w, r, verr.Error())
		case errors.Is(err, search.ErrAllBranchesFailed):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnavailable)
			WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeUnavailable, "Search is temporarily unavailable")
		default:
			slog.ErrorContext(r.Context(), "search failed", "error", err, "query", q.Text)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to execute search")
		}
		return
	}

	// Group results by entity type; requested types always appear as keys
	grouped := make(map[string][]search.ScoredResult)
	requested := q.Types
	if len(requested) == 0 {
		requested = catalog.AllEntityTypes
	}
	for _, t := range requested {
		grouped[entityTypeKey(t)] = []search.ScoredResult{}
	}
	for _, result := range resp.Results {
		key := entityTypeKey(result.Candidate.Type)
		grouped[key] = append(grouped[key], result)
	}

	response := SearchResponse{
		Results: grouped,
		Meta:    resp.Meta,
	}

	if includeSuggestions {
		prefix := strings.ToLower(strings.TrimSpace(q.Text))
		response.Suggestions = h.service.Suggestions(prefix, inlineSuggestionLimit)
	}
	if includeTrending {
		response.Trending = h.service.Trending(0, inlineTrendingLimit)
	}

	writeJSON(w, r, http.StatusOK, response)
}

// Suggestions handles GET /search/suggestions - prefix autocomplete.
func (h *SearchHandlers) Suggestions(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	prefix := strings.ToLower(strings.TrimSpace(params.Get("q")))
	if prefix == "" {
		h.validationError(w, r, "Query parameter 'q' is required")
		return
	}

	limit, err := parseIntParam(params.Get("limit"), DefaultSuggestionLimit)
	if err != nil || limit < 1 {
		h.validationError(w, r, "limit must be a positive integer")
		return
	}
	if limit > MaxSuggestionLimit {
		limit = MaxSuggestionLimit
	}

	suggestions := h.service.Suggestions(prefix, limit)
	writeJSON(w, r, http.StatusOK, SuggestionsResponse{
		Suggestions: suggestions,
		Count:       len(suggestions),
	})
}

// Trending handles GET /search/trending - the rolling-window trending list.
func (h *SearchHandlers) Trending(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	windowHours, err := parseIntParam(params.Get("window_hours"), 0)
	if err != nil || windowHours < 0 {
		h.validationError(w, r, "window_hours must be a positive integer")
		return
	}

	limit, err := parseIntParam(params.Get("limit"), DefaultTrendingLimit)
	if err != nil || limit < 1 {
		h.validationError(w, r, "limit must be a positive integer")
		return
	}
	if limit > MaxTrendingLimit {
		limit = MaxTrendingLimit
	}

	window := time.Duration(windowHours) * time.Hour
	if window == 0 {
		window = search.DefaultTrendingWindow
	}

	writeJSON(w, r, http.StatusOK, TrendingResponse{
		Trending:    h.service.Trending(window, limit),
		WindowHours: int(window / time.Hour),
	})
}

// validationError writes a standard 400 validation error response.
func (h *SearchHandlers) validationError(w http.ResponseWriter, r *http.Request, message string) {
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
	WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, message)
}

// parseLocation parses a "lat,lng" pair.
func parseLocation(s string) (*catalog.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, errors.New("location must have two components")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, err
	}
	return &catalog.Point{Lat: lat, Lng: lng}, nil
}

// parseDate accepts RFC3339 timestamps or plain YYYY-MM-DD dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// parseIntParam parses an optional integer query parameter.
func parseIntParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// parseBoolParam parses an optional boolean query parameter. Empty is false.
func parseBoolParam(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
