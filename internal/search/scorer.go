package search

import (
	"sort"
	"strings"
	"time"

	"github.com/eventide-app/eventide/internal/catalog"
	"github.com/eventide-app/eventide/internal/geo"
	"github.com/eventide-app/eventide/internal/ranking"
)

// ScoredResult pairs a candidate with its relevance score and match
// provenance. Scores are never negative; higher is more relevant.
type ScoredResult struct {
	Candidate catalog.Candidate `json:"candidate" cbor:"candidate"`

	RelevanceScore float64 `json:"relevance_score" cbor:"relevance_score"`

	// DistanceKm is set only when both the query and the candidate carry
	// coordinates.
	DistanceKm *float64 `json:"distance_km,omitempty" cbor:"distance_km,omitempty"`

	// Highlights lists the fields that matched, heaviest-weighted first.
	// Presentation-only; it never affects ordering.
	Highlights []string `json:"highlights,omitempty" cbor:"highlights,omitempty"`

	// MatchCount is the raw number of matched fields, the first tie-break
	// under equal scores. Persisted so cached pages keep stable ordering.
	MatchCount int `json:"match_count" cbor:"match_count"`
}

// Scorer computes feature-weighted heuristic relevance scores.
// CPU-only; never blocks.
type Scorer struct {
	weights *ranking.Weights
}

// NewScorer creates a scorer with the given weights (defaults when nil).
func NewScorer(weights *ranking.Weights) *Scorer {
	if weights == nil {
		weights = ranking.DefaultWeights()
	}
	return &Scorer{weights: weights}
}

// Score computes the relevance of one candidate for a normalized query.
// A candidate with no matching field scores zero, never negative.
func (s *Scorer) Score(c catalog.Candidate, q *Query, now time.Time) ScoredResult {
	result := ScoredResult{Candidate: c}
	fw := s.weights.Field
	text := q.Text

	type fieldMatch struct {
		name   string
		weight float64
		hit    bool
	}

	matches := []fieldMatch{
		{"title", fw.Title, contains(c.Title, text)},
		{"category", fw.Category, contains(c.Category, text)},
		{"tags", fw.Tags, anyContains(c.Tags, text)},
		{"venue", fw.Venue, contains(c.VenueName, text)},
		{"city", fw.City, contains(c.City, text)},
		{"description", fw.Description, contains(c.Description, text)},
	}

	for _, m := range matches {
		if !m.hit {
			continue
		}
		result.RelevanceScore += m.weight
		result.Highlights = append(result.Highlights, m.name)
		result.MatchCount++
	}

	// Temporal proximity bonus for time-bound entities.
	if c.StartsAt != nil {
		result.RelevanceScore += ranking.TemporalBonus(*c.StartsAt, now, s.weights.Temporal)
	}

	if q.Filter.Location != nil && c.Point != nil {
		d := geo.DistanceKm(q.Filter.Location.Lat, q.Filter.Location.Lng, c.Point.Lat, c.Point.Lng)
		result.DistanceKm = &d
	}

	return result
}

// lessRelevant is the relevance comparator: score descending, then raw
// match count descending, then nearer distance when geo context is
// present. Equal results keep their fetch order; callers must sort with
// a stable sort for the last-resort tie-break to hold.
func lessRelevant(a, b ScoredResult) bool {
	if a.RelevanceScore != b.RelevanceScore {
		return a.RelevanceScore > b.RelevanceScore
	}
	if a.MatchCount != b.MatchCount {
		return a.MatchCount > b.MatchCount
	}
	if a.DistanceKm != nil && b.DistanceKm != nil && *a.DistanceKm != *b.DistanceKm {
		return *a.DistanceKm < *b.DistanceKm
	}
	return false
}

// sortResults orders the full result set for the requested sort order.
// Distance ordering falls back to relevance when the query carries no geo
// context. Sorting is stable so fetch order remains the final tie-break.
func sortResults(results []ScoredResult, sortBy SortBy, hasGeo bool) {
	switch sortBy {
	case SortDate:
		sort.SliceStable(results, func(i, j int) bool {
			return effectiveDate(results[i].Candidate).Before(effectiveDate(results[j].Candidate))
		})
	case SortPopularity:
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Candidate.Popularity != results[j].Candidate.Popularity {
				return results[i].Candidate.Popularity > results[j].Candidate.Popularity
			}
			return lessRelevant(results[i], results[j])
		})
	case SortDistance:
		if !hasGeo {
			sort.SliceStable(results, func(i, j int) bool {
				return lessRelevant(results[i], results[j])
			})
			return
		}
		sort.SliceStable(results, func(i, j int) bool {
			di, dj := results[i].DistanceKm, results[j].DistanceKm
			switch {
			case di != nil && dj != nil && *di != *dj:
				return *di < *dj
			case di != nil && dj == nil:
				return true
			case di == nil && dj != nil:
				return false
			default:
				return lessRelevant(results[i], results[j])
			}
		})
	default:
		sort.SliceStable(results, func(i, j int) bool {
			return lessRelevant(results[i], results[j])
		})
	}
}

// effectiveDate is the candidate's start time for time-bound entities,
// otherwise its creation time.
func effectiveDate(c catalog.Candidate) time.Time {
	if c.StartsAt != nil {
		return *c.StartsAt
	}
	return c.CreatedAt
}

func contains(field, text string) bool {
	if field == "" || text == "" {
		return false
	}
	return strings.Contains(strings.ToLower(field), text)
}

func anyContains(fields []string, text string) bool {
	for _, f := range fields {
		if contains(f, text) {
			return true
		}
	}
	return false
}
