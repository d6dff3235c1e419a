package feed

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eventide-app/eventide/internal/catalog"
	"github.com/eventide-app/eventide/internal/geo"
	"github.com/eventide-app/eventide/internal/ranking"
	"github.com/eventide-app/eventide/internal/search"
	"github.com/eventide-app/eventide/internal/tracing"
	"github.com/eventide-app/eventide/internal/validate"
)

// DefaultNearbyRadiusKm bounds the nearby stream when the request carries
// a location but no explicit radius.
const DefaultNearbyRadiusKm = 50

// maxProximityScore is the nearby-stream score of a candidate at zero
// distance, decaying linearly to zero at the radius edge. Matches the
// weight of a title match so nearby events compete with text relevance.
const maxProximityScore = 10.0

// insightLimit bounds the popular-categories and trending-topics insights.
const insightLimit = 5

// Options tune the feed composer.
type Options struct {
	// BranchTimeout bounds each stream fetch (default 3s).
	BranchTimeout time.Duration

	// CandidateCap bounds raw candidates per stream (default
	// catalog.DefaultCandidateCap).
	CandidateCap int

	// TrendingWindow is the rolling window feeding the trending-topics
	// insight (default search.DefaultTrendingWindow).
	TrendingWindow time.Duration

	// Interleave round-robins the composed feed across source streams so
	// no single stream dominates the top. Within a stream, score order is
	// preserved. Off by default: pure score ordering.
	Interleave bool
}

// Composer builds personalized discovery feeds from independently ranked
// event streams. Streams are failure-isolated: a failed stream contributes
// nothing, and only when every enabled stream fails is the feed marked
// unavailable.
type Composer struct {
	store       catalog.Store
	suggestions *search.Aggregator
	weights     *ranking.Weights
	metrics     *Metrics
	logger      *slog.Logger
	opts        Options

	now func() time.Time
}

// NewComposer creates a feed composer. The aggregator may be nil when
// trending topics are disabled; weights default when nil.
func NewComposer(store catalog.Store, aggregator *search.Aggregator, weights *ranking.Weights, logger *slog.Logger, opts Options) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	if weights == nil {
		weights = ranking.DefaultWeights()
	}
	if opts.BranchTimeout <= 0 {
		opts.BranchTimeout = search.DefaultBranchTimeout
	}
	if opts.TrendingWindow <= 0 {
		opts.TrendingWindow = search.DefaultTrendingWindow
	}

	return &Composer{
		store:       store,
		suggestions: aggregator,
		weights:     weights,
		metrics:     NewMetrics(),
		logger:      logger,
		opts:        opts,
		now:         time.Now,
	}
}

// Metrics exposes the composer's Prometheus collectors for registration.
func (c *Composer) Metrics() *Metrics {
	return c.metrics
}

// stream is one enabled composition branch.
type stream struct {
	name  SourceStream
	fetch func(ctx context.Context, req Request, now time.Time) ([]FeedItem, error)
}

// Compose builds one page of the discovery feed. Stream failures degrade
// to a thinner feed; when every enabled stream fails the feed is empty
// and marked unavailable, never a hard error.
func (c *Composer) Compose(ctx context.Context, req Request) (feed *Feed, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "feed.compose")
	defer func() { endSpan(err) }()

	started := c.now()
	defer func() {
		c.metrics.ObserveDuration(time.Since(started).Seconds())
	}()

	req.Normalize()
	if err := c.validate(req); err != nil {
		c.metrics.RecordCompose("validation_error")
		return nil, err
	}

	now := c.now()
	streams := c.enabledStreams(req)

	results := make([][]FeedItem, len(streams))
	errs := make([]error, len(streams))

	var wg sync.WaitGroup
	for i, st := range streams {
		wg.Add(1)
		go func(slot int, st stream) {
			defer wg.Done()

			streamCtx, cancel := context.WithTimeout(ctx, c.opts.BranchTimeout)
			defer cancel()

			items, err := st.fetch(streamCtx, req, now)
			if err != nil {
				errs[slot] = err
				return
			}
			results[slot] = items
		}(i, st)
	}
	wg.Wait()

	failed := 0
	var merged []FeedItem
	for i, st := range streams {
		if errs[i] != nil {
			failed++
			c.metrics.RecordStreamFailure(string(st.name))
			c.logger.WarnContext(ctx, "feed stream failed",
				"stream", st.name,
				"error", errs[i],
			)
			continue
		}
		merged = append(merged, results[i]...)
	}

	if len(streams) > 0 && failed == len(streams) {
		c.metrics.RecordCompose("unavailable")
		return &Feed{Events: []FeedItem{}, Unavailable: true}, nil
	}

	deduped := dedupe(merged)
	if c.opts.Interleave {
		interleave(deduped)
	}

	out := &Feed{
		Events:   pageOf(deduped, req.Offset, req.Limit),
		Insights: c.insights(deduped),
		Total:    len(deduped),
	}

	if failed > 0 {
		c.metrics.RecordCompose("partial")
	} else {
		c.metrics.RecordCompose("ok")
	}
	return out, nil
}

func (c *Composer) validate(req Request) error {
	if req.RadiusKm != 0 {
		if req.Location == nil {
			return &search.ValidationError{Field: "radius_km", Reason: "radius_km requires a location"}
		}
		if err := validate.RadiusKm(req.RadiusKm); err != nil {
			return &search.ValidationError{Field: "radius_km", Reason: err.Error()}
		}
	}
	if req.Location != nil {
		if err := validate.Coordinate(req.Location.Lat, req.Location.Lng); err != nil {
			return &search.ValidationError{Field: "location", Reason: err.Error()}
		}
	}
	return nil
}

// enabledStreams resolves the request's include flags against what the
// request can actually serve: nearby needs a location, recommended and
// following need a user.
func (c *Composer) enabledStreams(req Request) []stream {
	var streams []stream
	if req.IncludeTrending {
		streams = append(streams, stream{StreamTrending, c.fetchTrending})
	}
	if req.IncludeNearby && req.Location != nil {
		streams = append(streams, stream{StreamNearby, c.fetchNearby})
	}
	if req.IncludeRecommended && req.UserID != "" {
		streams = append(streams, stream{StreamRecommended, c.fetchRecommended})
	}
	if req.IncludeFollowing && req.UserID != "" {
		streams = append(streams, stream{StreamFollowing, c.fetchFollowing})
	}
	return streams
}

// baseFilter is the event filter shared by all streams: public upcoming
// events, optionally restricted to the request's categories.
func (c *Composer) baseFilter(req Request, now time.Time) catalog.Filter {
	return catalog.Filter{
		Categories: req.Categories,
		Now:        now,
		Limit:      c.opts.CandidateCap,
	}
}

// maxTrendingBoost is the score added to an event matching the hottest
// in-window query; cooler queries boost proportionally to their count.
const maxTrendingBoost = 8.0

// trendingQueryLimit bounds how many in-window queries the trending
// stream matches candidates against.
const trendingQueryLimit = 10

// fetchTrending ranks upcoming events against the rolling query window:
// events matching an in-window trending query are boosted in proportion
// to that query's heat, on top of normalized popularity and temporal
// proximity. With no query traffic the stream degrades to pure
// popularity ordering.
func (c *Composer) fetchTrending(ctx context.Context, req Request, now time.Time) ([]FeedItem, error) {
	candidates, err := c.store.Fetch(ctx, catalog.EntityEvent, c.baseFilter(req, now))
	if err != nil {
		return nil, err
	}

	var trending []search.TrendingQuery
	if c.suggestions != nil {
		trending = c.suggestions.Trending(c.opts.TrendingWindow, trendingQueryLimit)
	}

	items := make([]FeedItem, 0, len(candidates))
	for _, cand := range candidates {
		score := ranking.PopularityScore(cand.Popularity, c.weights.Feed) + c.temporal(cand, now)
		score += trendingBoost(cand, trending)
		items = append(items, c.item(cand, StreamTrending, score, req))
	}
	sortItems(items)
	return items, nil
}

// trendingBoost returns the strongest boost among in-window queries the
// candidate matches. The hottest query is worth maxTrendingBoost; the
// rest scale by their share of that count.
func trendingBoost(cand catalog.Candidate, trending []search.TrendingQuery) float64 {
	if len(trending) == 0 || trending[0].Count == 0 {
		return 0
	}
	top := float64(trending[0].Count)

	var best float64
	for _, tq := range trending {
		if !matchesQuery(cand, tq.Query) {
			continue
		}
		if boost := maxTrendingBoost * float64(tq.Count) / top; boost > best {
			best = boost
		}
	}
	return best
}

// matchesQuery reports whether a candidate's text fields contain the
// query as a case-insensitive substring.
func matchesQuery(cand catalog.Candidate, query string) bool {
	q := strings.ToLower(query)
	if q == "" {
		return false
	}
	if strings.Contains(strings.ToLower(cand.Title), q) ||
		strings.Contains(strings.ToLower(cand.Category), q) ||
		strings.Contains(strings.ToLower(cand.City), q) {
		return true
	}
	for _, tag := range cand.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// fetchNearby ranks events around the request location by proximity: full
// score at zero distance, decaying linearly to zero at the radius edge.
// Events past the exact radius are cut even when the bounding-box
// pre-filter admitted them.
func (c *Composer) fetchNearby(ctx context.Context, req Request, now time.Time) ([]FeedItem, error) {
	radius := req.RadiusKm
	if radius <= 0 {
		radius = DefaultNearbyRadiusKm
	}

	filter := c.baseFilter(req, now)
	box := geo.NewBoundingBox(req.Location.Lat, req.Location.Lng, radius)
	filter.Box = &box

	candidates, err := c.store.Fetch(ctx, catalog.EntityEvent, filter)
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Point == nil {
			continue
		}
		d := geo.DistanceKm(req.Location.Lat, req.Location.Lng, cand.Point.Lat, cand.Point.Lng)
		if d > radius {
			continue
		}
		score := maxProximityScore*(1-d/radius) + c.temporal(cand, now)
		item := c.item(cand, StreamNearby, score, req)
		item.DistanceKm = &d
		items = append(items, item)
	}
	sortItems(items)
	return items, nil
}

// fetchRecommended ranks events by overlap with the user's engaged
// categories plus popularity and temporal proximity. Events outside the
// user's categories still appear, ranked by the residual signals.
func (c *Composer) fetchRecommended(ctx context.Context, req Request, now time.Time) ([]FeedItem, error) {
	categories, err := c.store.UserCategories(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	candidates, err := c.store.Fetch(ctx, catalog.EntityEvent, c.baseFilter(req, now))
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, 0, len(candidates))
	for _, cand := range candidates {
		score := ranking.PopularityScore(cand.Popularity, c.weights.Feed) + c.temporal(cand, now)
		if categoryOverlap(cand.Category, categories) {
			score += c.weights.Feed.CategoryBoost
		}
		items = append(items, c.item(cand, StreamRecommended, score, req))
	}
	sortItems(items)
	return items, nil
}

// fetchFollowing ranks events hosted by organizers the user follows.
func (c *Composer) fetchFollowing(ctx context.Context, req Request, now time.Time) ([]FeedItem, error) {
	organizers, err := c.store.FollowedOrganizers(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(organizers) == 0 {
		return nil, nil
	}

	filter := c.baseFilter(req, now)
	filter.OrganizerIDs = organizers

	candidates, err := c.store.Fetch(ctx, catalog.EntityEvent, filter)
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, 0, len(candidates))
	for _, cand := range candidates {
		score := c.weights.Feed.FollowingBoost + c.temporal(cand, now)
		items = append(items, c.item(cand, StreamFollowing, score, req))
	}
	sortItems(items)
	return items, nil
}

func (c *Composer) temporal(cand catalog.Candidate, now time.Time) float64 {
	if cand.StartsAt == nil {
		return 0
	}
	return ranking.TemporalBonus(*cand.StartsAt, now, c.weights.Temporal)
}

func (c *Composer) item(cand catalog.Candidate, source SourceStream, score float64, req Request) FeedItem {
	item := FeedItem{Candidate: cand, SourceStream: source, RelevanceScore: score}
	if req.Location != nil && cand.Point != nil {
		d := geo.DistanceKm(req.Location.Lat, req.Location.Lng, cand.Point.Lat, cand.Point.Lng)
		item.DistanceKm = &d
	}
	return item
}

// insights summarizes the deduplicated candidate set and the recent query
// log for presentation layers.
func (c *Composer) insights(items []FeedItem) Insights {
	var out Insights

	counts := make(map[string]int)
	for _, item := range items {
		if item.Candidate.Category != "" {
			counts[item.Candidate.Category]++
		}
	}
	for category, n := range counts {
		out.PopularCategories = append(out.PopularCategories, CategoryCount{Category: category, Count: n})
	}
	sort.Slice(out.PopularCategories, func(i, j int) bool {
		if out.PopularCategories[i].Count != out.PopularCategories[j].Count {
			return out.PopularCategories[i].Count > out.PopularCategories[j].Count
		}
		return out.PopularCategories[i].Category < out.PopularCategories[j].Category
	})
	if len(out.PopularCategories) > insightLimit {
		out.PopularCategories = out.PopularCategories[:insightLimit]
	}

	if c.suggestions != nil {
		for _, tq := range c.suggestions.Trending(c.opts.TrendingWindow, insightLimit) {
			out.TrendingTopics = append(out.TrendingTopics, tq.Query)
		}
	}
	return out
}

// dedupe enforces the at-most-once invariant across streams: when an
// entity id appears in several streams, the highest-scoring instance wins
// and keeps its source stream for explainability. Ties keep the earlier
// stream in canonical order. The survivors are then score-ordered.
func dedupe(items []FeedItem) []FeedItem {
	best := make(map[string]int, len(items))
	var out []FeedItem
	for _, item := range items {
		idx, seen := best[item.Candidate.ID]
		if !seen {
			best[item.Candidate.ID] = len(out)
			out = append(out, item)
			continue
		}
		if item.RelevanceScore > out[idx].RelevanceScore {
			out[idx] = item
		}
	}
	sortItems(out)
	return out
}

// sortItems orders items by score descending; stable, so the producing
// order is the last-resort tie-break.
func sortItems(items []FeedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RelevanceScore > items[j].RelevanceScore
	})
}

// interleave reorders a score-sorted, deduplicated feed round-robin across
// its source streams, preserving score order within each stream, so a
// single hot stream cannot monopolize the top of the feed.
func interleave(items []FeedItem) {
	order := []SourceStream{StreamTrending, StreamNearby, StreamRecommended, StreamFollowing}
	byStream := make(map[SourceStream][]FeedItem)
	for _, item := range items {
		byStream[item.SourceStream] = append(byStream[item.SourceStream], item)
	}

	i := 0
	for i < len(items) {
		for _, s := range order {
			queue := byStream[s]
			if len(queue) == 0 {
				continue
			}
			items[i] = queue[0]
			byStream[s] = queue[1:]
			i++
		}
	}
}

// pageOf slices one page out of the ordered feed.
func pageOf(items []FeedItem, offset, limit int) []FeedItem {
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return append([]FeedItem{}, items[offset:end]...)
}

func categoryOverlap(category string, interests []string) bool {
	for _, i := range interests {
		if strings.EqualFold(category, i) {
			return true
		}
	}
	return false
}
