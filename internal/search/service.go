package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eventide-app/eventide/internal/catalog"
	"github.com/eventide-app/eventide/internal/geo"
	"github.com/eventide-app/eventide/internal/ranking"
	"github.com/eventide-app/eventide/internal/stats"
	"github.com/eventide-app/eventide/internal/tracing"
)

// DefaultBranchTimeout bounds each entity-type fetch branch. A branch that
// times out is a failed branch, not a failed request.
const DefaultBranchTimeout = 3 * time.Second

// Options tune the search service.
type Options struct {
	// CacheTTL is the result cache time-to-live (default 1h).
	CacheTTL time.Duration

	// BranchTimeout bounds each entity-type fetch (default 3s).
	BranchTimeout time.Duration

	// CandidateCap bounds raw candidates per entity type (default
	// catalog.DefaultCandidateCap).
	CandidateCap int

	// RequestTimeout bounds the whole search. When it expires, branches
	// still in flight fail and the response is built from the branches
	// that completed. Zero means no overall deadline beyond the
	// per-branch timeouts.
	RequestTimeout time.Duration
}

// Meta describes a served result set.
type Meta struct {
	// Total is the size of the full merged result set before pagination.
	Total int `json:"total"`

	// Facets maps candidate categories to their counts in the full set.
	Facets map[string]int `json:"facets,omitempty"`

	// CacheHit reports whether the set was served from cache.
	CacheHit bool `json:"cache_hit"`

	// Partial reports that at least one entity-type branch failed and the
	// set was built from the branches that succeeded.
	Partial bool `json:"partial,omitempty"`
}

// Response is one page of ranked results plus metadata.
type Response struct {
	Results []ScoredResult `json:"results"`
	Meta    Meta           `json:"meta"`
}

// Service is the query dispatcher: it owns the fan-out across entity-type
// pipelines, result caching, suggestion tracking, and analytics dispatch.
// The cache and aggregator are injected at construction; the service holds
// no package-level state.
type Service struct {
	store       catalog.Store
	cache       ResultCache
	scorer      *Scorer
	suggestions *Aggregator
	analytics   Sink
	metrics     *Metrics
	cacheStats  *stats.CacheStats
	logger      *slog.Logger
	opts        Options

	// now is the time source; replaced in tests for determinism.
	now func() time.Time
}

// NewService creates a search service. The aggregator and sink may be nil
// when suggestion tracking or analytics are disabled; weights default when
// nil.
func NewService(store catalog.Store, cache ResultCache, aggregator *Aggregator, sink Sink, weights *ranking.Weights, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.BranchTimeout <= 0 {
		opts.BranchTimeout = DefaultBranchTimeout
	}

	return &Service{
		store:       store,
		cache:       cache,
		scorer:      NewScorer(weights),
		suggestions: aggregator,
		analytics:   sink,
		metrics:     NewMetrics(),
		cacheStats:  stats.NewCacheStats(),
		logger:      logger,
		opts:        opts,
		now:         time.Now,
	}
}

// Metrics exposes the service's Prometheus collectors for registration.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// CacheStats exposes the service's cache counters.
func (s *Service) CacheStats() *stats.CacheStats {
	return s.cacheStats
}

// Suggestions returns autocomplete suggestions for a prefix.
func (s *Service) Suggestions(prefix string, limit int) []SuggestionRecord {
	if s.suggestions == nil {
		return nil
	}
	return s.suggestions.Suggestions(prefix, limit)
}

// Trending returns the trending query list over the rolling window.
func (s *Service) Trending(window time.Duration, limit int) []TrendingQuery {
	if s.suggestions == nil {
		return nil
	}
	return s.suggestions.Trending(window, limit)
}

// Search runs the full pipeline: validate, cache check, concurrent
// fetch+score per entity type, merge/sort, paginate, cache write, async
// analytics. Only validation errors and total branch failure surface to
// the caller; everything else degrades to partial results.
func (s *Service) Search(ctx context.Context, q Query) (resp *Response, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "search")
	defer func() { endSpan(err) }()

	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	started := s.now()
	defer func() {
		s.metrics.ObserveDuration(time.Since(started).Seconds())
	}()

	q.Normalize()
	if err := q.Validate(); err != nil {
		s.metrics.RecordValidationReject()
		s.metrics.RecordSearch("validation_error")
		return nil, err
	}

	key := q.CacheKey()
	if full, ok := s.cacheGet(ctx, key); ok {
		s.recordUsage(q, len(full), true)
		s.metrics.RecordSearch("ok")
		return s.page(q, full, Meta{CacheHit: true}), nil
	}

	full, partial, err := s.fanOut(ctx, q)
	if err != nil {
		s.metrics.RecordSearch("unavailable")
		return nil, err
	}

	hasGeo := q.Filter.Location != nil
	sortResults(full, q.SortBy, hasGeo)

	// Partial sets are never cached: serving a degraded set for the full
	// TTL would hide the recovered branches from every later caller.
	if !partial {
		s.cacheSet(ctx, key, full)
	}
	s.recordUsage(q, len(full), false)

	if partial {
		s.metrics.RecordSearch("partial")
	} else {
		s.metrics.RecordSearch("ok")
	}

	return s.page(q, full, Meta{Partial: partial}), nil
}

// fanOut dispatches one fetch+score pipeline per requested entity type.
// Branches run concurrently, each bounded by the branch timeout, and are
// failure-isolated: a failed branch contributes nothing. Only when every
// branch fails does fanOut return ErrAllBranchesFailed.
func (s *Service) fanOut(ctx context.Context, q Query) ([]ScoredResult, bool, error) {
	now := s.now()
	filter := s.buildFilter(q, now)

	// Results are collected into per-type slots so merge order follows the
	// normalized type order, keeping fetch order the deterministic
	// last-resort tie-break.
	branchResults := make([][]ScoredResult, len(q.Types))
	branchErrs := make([]error, len(q.Types))

	var wg sync.WaitGroup
	for i, entity := range q.Types {
		wg.Add(1)
		go func(slot int, entity catalog.EntityType) {
			defer wg.Done()

			branchCtx, cancel := context.WithTimeout(ctx, s.opts.BranchTimeout)
			defer cancel()

			candidates, err := s.store.Fetch(branchCtx, entity, filter)
			if err != nil {
				branchErrs[slot] = err
				return
			}

			scored := make([]ScoredResult, 0, len(candidates))
			for _, c := range candidates {
				r := s.scorer.Score(c, &q, now)
				if !s.withinRadius(q, r) {
					continue
				}
				scored = append(scored, r)
			}
			branchResults[slot] = scored
		}(i, entity)
	}
	wg.Wait()

	var (
		merged []ScoredResult
		failed int
	)
	for i := range q.Types {
		if branchErrs[i] != nil {
			failed++
			s.metrics.RecordBranchFailure(string(q.Types[i]))
			s.logger.WarnContext(ctx, "search branch failed",
				"entity", q.Types[i],
				"error", branchErrs[i],
			)
			continue
		}
		merged = append(merged, branchResults[i]...)
	}

	if failed == len(q.Types) {
		return nil, false, ErrAllBranchesFailed
	}
	return merged, failed > 0, nil
}

// buildFilter translates the query into one store filter, including the
// bounding-box pre-filter when geo context is present.
func (s *Service) buildFilter(q Query, now time.Time) catalog.Filter {
	f := catalog.Filter{
		Text:         q.Text,
		Category:     q.Filter.Category,
		DateFrom:     q.Filter.DateFrom,
		DateTo:       q.Filter.DateTo,
		VerifiedOnly: q.Filter.VerifiedOnly,
		IncludePast:  q.Filter.IncludePast,
		Now:          now,
		Limit:        s.opts.CandidateCap,
	}
	if q.Filter.Location != nil && q.Filter.RadiusKm > 0 {
		box := geo.NewBoundingBox(q.Filter.Location.Lat, q.Filter.Location.Lng, q.Filter.RadiusKm)
		f.Box = &box
	}
	return f
}

// withinRadius enforces the exact radius cutoff after the bounding-box
// pre-filter: the box is a superset, so borderline candidates it admitted
// are rejected here against the true distance.
func (s *Service) withinRadius(q Query, r ScoredResult) bool {
	if q.Filter.Location == nil || q.Filter.RadiusKm <= 0 {
		return true
	}
	return r.DistanceKm != nil && *r.DistanceKm <= q.Filter.RadiusKm
}

// page slices one page out of the full sorted set and fills in metadata.
func (s *Service) page(q Query, full []ScoredResult, meta Meta) *Response {
	meta.Total = len(full)
	meta.Facets = facets(full)

	start := q.Offset
	if start > len(full) {
		start = len(full)
	}
	end := start + q.Limit
	if end > len(full) {
		end = len(full)
	}

	return &Response{
		Results: append([]ScoredResult(nil), full[start:end]...),
		Meta:    meta,
	}
}

// cacheGet reads the full sorted set from the cache. Failures other than
// a miss are logged and degrade to a miss.
func (s *Service) cacheGet(ctx context.Context, key string) ([]ScoredResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	ctx, endSpan := tracing.StartCacheSpan(ctx, "get", key)
	full, err := s.cache.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		endSpan(nil)
	} else {
		endSpan(err)
	}
	switch {
	case err == nil:
		s.cacheStats.RecordHit()
		s.metrics.RecordCacheLookup("hit")
		return full, true
	case errors.Is(err, ErrCacheMiss):
		s.cacheStats.RecordMiss()
		s.metrics.RecordCacheLookup("miss")
	default:
		s.cacheStats.RecordError()
		s.metrics.RecordCacheLookup("error")
		s.logger.WarnContext(ctx, "cache read failed, proceeding uncached", "error", err)
	}
	return nil, false
}

// cacheSet writes the full sorted set. Failures are logged and swallowed;
// the request proceeds uncached.
func (s *Service) cacheSet(ctx context.Context, key string, full []ScoredResult) {
	if s.cache == nil {
		return
	}
	ctx, endSpan := tracing.StartCacheSpan(ctx, "set", key)
	err := s.cache.Set(ctx, key, full, s.opts.CacheTTL)
	endSpan(err)
	if err != nil {
		s.cacheStats.RecordError()
		s.logger.WarnContext(ctx, "cache write failed", "error", err)
	}
}

// recordUsage increments the suggestion counter and dispatches the
// analytics record on a detached goroutine. Neither can affect the
// response: sink failures are swallowed, logged, and counted.
func (s *Service) recordUsage(q Query, resultCount int, cacheHit bool) {
	if s.suggestions != nil {
		s.suggestions.Record(q.Text)
	}
	if s.analytics == nil {
		return
	}

	types := make([]string, len(q.Types))
	for i, t := range q.Types {
		types[i] = string(t)
	}
	rec := QueryRecord{
		Text:        q.Text,
		EntityTypes: types,
		Category:    q.Filter.Category,
		GeoCluster:  geoCluster(q.Filter),
		ResultCount: resultCount,
		CacheHit:    cacheHit,
		At:          s.now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.analytics.Record(ctx, rec); err != nil {
			s.metrics.RecordAnalyticsFailure()
			s.logger.Warn("analytics record failed", "error", err)
		}
	}()
}

// facets counts candidate categories across the full result set.
func facets(results []ScoredResult) map[string]int {
	if len(results) == 0 {
		return nil
	}
	out := make(map[string]int)
	for _, r := range results {
		if r.Candidate.Category != "" {
			out[r.Candidate.Category]++
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
