// Package feed composes the personalized discovery feed: independently
// ranked event streams (trending, nearby, recommended, following) fetched
// concurrently, deduplicated by entity id keeping the highest-scoring
// instance, ordered, and paginated.
package feed

import (
	"github.com/eventide-app/eventide/internal/catalog"
)

// SourceStream identifies which composition stream produced a feed item.
type SourceStream string

// Feed source streams.
const (
	StreamTrending    SourceStream = "trending"
	StreamNearby      SourceStream = "nearby"
	StreamRecommended SourceStream = "recommended"
	StreamFollowing   SourceStream = "following"
)

// Pagination limits for composed feeds.
const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// Request describes one discovery-feed request. Streams are opt-out: the
// HTTP layer defaults every include flag to true.
type Request struct {
	UserID   string
	Location *catalog.Point
	RadiusKm float64

	// Categories restricts every stream to the given categories.
	Categories []string

	IncludeTrending    bool
	IncludeNearby      bool
	IncludeRecommended bool
	IncludeFollowing   bool

	Limit  int
	Offset int
}

// Normalize clamps pagination in place.
func (r *Request) Normalize() {
	if r.Limit <= 0 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
}

// FeedItem is one composed feed entry: an event candidate annotated with
// its winning source stream and score. Each entity id appears at most once
// in a composed feed.
type FeedItem struct {
	Candidate      catalog.Candidate `json:"candidate"`
	SourceStream   SourceStream      `json:"source_stream"`
	RelevanceScore float64           `json:"relevance_score"`

	// DistanceKm is set when the request carried a location and the
	// candidate has coordinates.
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// CategoryCount is one entry of the popular-categories insight.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Insights summarizes the composed candidate set for presentation layers.
type Insights struct {
	PopularCategories []CategoryCount `json:"popular_categories,omitempty"`
	TrendingTopics    []string        `json:"trending_topics,omitempty"`
}

// Feed is one page of a composed discovery feed.
type Feed struct {
	Events   []FeedItem `json:"events"`
	Insights Insights   `json:"insights"`
	Total    int        `json:"total"`

	// Unavailable is set when every enabled stream failed. The feed is
	// empty but the call still succeeds so clients can render an empty
	// state.
	Unavailable bool `json:"feed_unavailable,omitempty"`
}
