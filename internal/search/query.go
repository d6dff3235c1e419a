// Package search implements the multi-entity search pipeline: query
// validation, cached dispatch across per-entity-type fetchers, relevance
// scoring, suggestion tracking, and fire-and-forget analytics.
package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/eventide-app/eventide/internal/catalog"
	"github.com/eventide-app/eventide/internal/validate"
)

// SortBy selects the ordering of merged results.
type SortBy string

// Supported sort orders.
const (
	SortRelevance  SortBy = "relevance"
	SortDate       SortBy = "date"
	SortPopularity SortBy = "popularity"
	SortDistance   SortBy = "distance"
)

// ParseSortBy validates a raw sort string. Empty defaults to relevance.
func ParseSortBy(s string) (SortBy, bool) {
	switch SortBy(s) {
	case SortRelevance, SortDate, SortPopularity, SortDistance:
		return SortBy(s), true
	case "":
		return SortRelevance, true
	default:
		return "", false
	}
}

// Pagination limits, mirroring the public API defaults.
const (
	DefaultLimit  = 20
	MaxLimit      = 50
	MinQueryChars = 2
	MaxQueryChars = 200
)

// Filters holds the optional constraints of a search query.
type Filters struct {
	Category     string
	Location     *catalog.Point
	RadiusKm     float64
	DateFrom     *time.Time
	DateTo       *time.Time
	VerifiedOnly bool
	IncludePast  bool
}

// Query is a validated, normalized search request.
type Query struct {
	Text   string
	Types  []catalog.EntityType
	Filter Filters
	SortBy SortBy
	Limit  int
	Offset int
}

// Normalize canonicalizes the query in place: trims and case-folds the
// text, defaults the type set to all entity types, deduplicates and sorts
// the types, defaults the sort order, and clamps pagination.
func (q *Query) Normalize() {
	q.Text = strings.ToLower(strings.TrimSpace(q.Text))

	if len(q.Types) == 0 {
		q.Types = append([]catalog.EntityType(nil), catalog.AllEntityTypes...)
	} else {
		seen := make(map[catalog.EntityType]bool, len(q.Types))
		deduped := q.Types[:0]
		for _, t := range q.Types {
			if !seen[t] {
				seen[t] = true
				deduped = append(deduped, t)
			}
		}
		q.Types = deduped
		sort.Slice(q.Types, func(i, j int) bool { return q.Types[i] < q.Types[j] })
	}

	if q.SortBy == "" {
		q.SortBy = SortRelevance
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// Validate checks the normalized query. All failures are ValidationErrors:
// surfaced to the caller, never retried, and no data-store fetch happens.
func (q *Query) Validate() error {
	if _, err := validate.String(q.Text, validate.StringConstraints{
		MinLength: MinQueryChars,
		MaxLength: MaxQueryChars,
		TrimSpace: true,
	}); err != nil {
		return &ValidationError{Field: "q", Reason: fmt.Sprintf("query text must be at least %d characters", MinQueryChars)}
	}

	if q.Filter.RadiusKm != 0 {
		if q.Filter.Location == nil {
			return &ValidationError{Field: "radius_km", Reason: "radius_km requires a location"}
		}
		if err := validate.RadiusKm(q.Filter.RadiusKm); err != nil {
			return &ValidationError{Field: "radius_km", Reason: err.Error()}
		}
	}
	if q.Filter.Location != nil {
		if err := validate.Coordinate(q.Filter.Location.Lat, q.Filter.Location.Lng); err != nil {
			return &ValidationError{Field: "location", Reason: err.Error()}
		}
	}
	if q.Filter.DateFrom != nil && q.Filter.DateTo != nil && q.Filter.DateTo.Before(*q.Filter.DateFrom) {
		return &ValidationError{Field: "date_to", Reason: "date_to must not precede date_from"}
	}
	if q.SortBy != SortRelevance && q.SortBy != SortDate && q.SortBy != SortPopularity && q.SortBy != SortDistance {
		return &ValidationError{Field: "sort_by", Reason: "unsupported sort order"}
	}

	return nil
}

// CacheKey returns a stable hash over the normalized query text, the sorted
// entity types, the normalized filters, and the sort order. Pagination is
// deliberately excluded: the cache stores the full sorted result set and
// pages are sliced on read, so every page of the same query shares one entry.
func (q *Query) CacheKey() string {
	var b strings.Builder
	b.WriteString(q.Text)
	b.WriteByte('|')
	for _, t := range q.Types {
		b.WriteString(string(t))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	f := q.Filter
	b.WriteString(strings.ToLower(f.Category))
	b.WriteByte('|')
	if f.Location != nil {
		fmt.Fprintf(&b, "%.6f,%.6f,%.2f", f.Location.Lat, f.Location.Lng, f.RadiusKm)
	}
	b.WriteByte('|')
	if f.DateFrom != nil {
		b.WriteString(f.DateFrom.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	if f.DateTo != nil {
		b.WriteString(f.DateTo.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "|%t|%t|%s", f.VerifiedOnly, f.IncludePast, q.SortBy)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
