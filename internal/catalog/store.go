package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/eventide-app/eventide/internal/geo"
)

// Common errors for store operations.
var (
	// ErrUnknownEntityType is returned when a fetch is requested for a
	// type outside the closed candidate set.
	ErrUnknownEntityType = errors.New("unknown entity type")
)

// DefaultCandidateCap bounds how many raw candidates a single fetch returns.
// Ranking sorts the full candidate set before paginating, so the cap is the
// effective working-set size per entity type, not a page size.
const DefaultCandidateCap = 500

// Filter describes one filtered, bounded read against the store.
// Ordering of returned candidates is unspecified; the relevance scorer owns
// ordering.
type Filter struct {
	// Text is the normalized (trimmed, lowercased) query text. Empty means
	// no text predicate (used by geo-only discovery fetches).
	Text string

	// Category restricts candidates to one category when non-empty.
	Category string

	// Categories restricts candidates to any of several categories when
	// non-empty. Used by interest-based discovery fetches.
	Categories []string

	// Box is the bounding-box pre-filter. It is a superset of the true
	// radius; exact distance cutoff happens after fetch.
	Box *geo.BoundingBox

	// DateFrom/DateTo bound event start times when set.
	DateFrom *time.Time
	DateTo   *time.Time

	// VerifiedOnly keeps only candidates from verified organizers/venues.
	VerifiedOnly bool

	// IncludePast admits events that already started. Off by default.
	IncludePast bool

	// OrganizerIDs restricts events to the given organizers when non-empty.
	// Used by the following feed stream.
	OrganizerIDs []string

	// Now anchors "past" cutoffs. Zero means the store uses the wall clock.
	Now time.Time

	// Limit bounds the number of candidates returned; 0 means
	// DefaultCandidateCap.
	Limit int
}

// EffectiveNow returns the filter's time anchor, falling back to the wall clock.
func (f Filter) EffectiveNow() time.Time {
	if f.Now.IsZero() {
		return time.Now()
	}
	return f.Now
}

// EffectiveLimit returns the candidate cap for this filter.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > DefaultCandidateCap {
		return DefaultCandidateCap
	}
	return f.Limit
}

// Store is the query interface the search core consumes. Implementations
// perform filtered, bounded reads; they never rank. All reads must permit
// public discovery only (visibility and status filters are the store's
// responsibility, not the caller's).
type Store interface {
	// Fetch returns raw candidates of one entity type matching the filter.
	Fetch(ctx context.Context, entity EntityType, f Filter) ([]Candidate, error)

	// FollowedOrganizers returns the organizer IDs a user follows.
	FollowedOrganizers(ctx context.Context, userID string) ([]string, error)

	// UserCategories returns the categories a user has engaged with,
	// most-engaged first. Feeds use this for interest-based boosts.
	UserCategories(ctx context.Context, userID string) ([]string, error)
}
