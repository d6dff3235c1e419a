package ranking

import (
	"time"
)

// FieldWeights defines the additive score contribution of each matched
// candidate field. Title matches dominate; category outranks free-text
// description; location fields sit in between.
type FieldWeights struct {
	Title       float64 `json:"title"`       // Primary name/title match (default: 10)
	Category    float64 `json:"category"`    // Category match (default: 8)
	Tags        float64 `json:"tags"`        // Tag match (default: 6.5)
	Venue       float64 `json:"venue"`       // Venue name match (default: 6)
	City        float64 `json:"city"`        // City match (default: 5)
	Description float64 `json:"description"` // Free-text description match (default: 5)
}

// TemporalWeights defines the time-proximity bonus for time-bound entities.
// Events starting within NearDays receive the full MaxBonus; the bonus
// decays linearly to zero at FarDays out. Past events and events beyond
// FarDays receive no bonus.
type TemporalWeights struct {
	MaxBonus float64 `json:"max_bonus"` // Bonus for events within NearDays (default: 5)
	NearDays int     `json:"near_days"` // Full-bonus horizon in days (default: 7)
	FarDays  int     `json:"far_days"`  // Zero-bonus horizon in days (default: 35)
}

// FeedWeights defines scoring knobs for personalized feed streams.
type FeedWeights struct {
	CategoryBoost  float64 `json:"category_boost"`  // Boost per user-history category match (default: 4)
	FollowingBoost float64 `json:"following_boost"` // Boost for followed organizers (default: 6)
	PopularityNorm float64 `json:"popularity_norm"` // Popularity divisor for trending scores (default: 100)
}

// Weights holds all ranking weight configurations.
type Weights struct {
	Field    FieldWeights    `json:"field"`
	Temporal TemporalWeights `json:"temporal"`
	Feed     FeedWeights     `json:"feed"`
}

// DefaultWeights returns the default ranking weight configuration.
//
// The defaults preserve these ordering guarantees:
//   - a title match alone outranks any single secondary-field match
//   - a category match outranks a description match
//   - two otherwise-equal events are separated by temporal proximity
func DefaultWeights() *Weights {
	return &Weights{
		Field: FieldWeights{
			Title:       10,
			Category:    8,
			Tags:        6.5,
			Venue:       6,
			City:        5,
			Description: 5,
		},
		Temporal: TemporalWeights{
			MaxBonus: 5,
			NearDays: 7,
			FarDays:  35,
		},
		Feed: FeedWeights{
			CategoryBoost:  4,
			FollowingBoost: 6,
			PopularityNorm: 100,
		},
	}
}

// TemporalBonus computes the time-proximity bonus for an event starting at
// startsAt, evaluated at now. Events within NearDays receive the full
// MaxBonus; the bonus decays linearly to zero at FarDays. Past events
// receive no bonus.
func TemporalBonus(startsAt, now time.Time, w TemporalWeights) float64 {
	if w.FarDays <= w.NearDays {
		return 0
	}

	until := startsAt.Sub(now)
	if until < 0 {
		return 0
	}

	near := time.Duration(w.NearDays) * 24 * time.Hour
	far := time.Duration(w.FarDays) * 24 * time.Hour

	if until <= near {
		return w.MaxBonus
	}
	if until >= far {
		return 0
	}

	// Linear decay between the near and far horizons.
	frac := float64(until-near) / float64(far-near)
	return w.MaxBonus * (1 - frac)
}

// maxPopularityScore caps the popularity contribution at the value of a
// title match so a single runaway event cannot dominate every feed.
const maxPopularityScore = 10.0

// PopularityScore normalizes a raw popularity count (attendees, followers)
// into a score comparable with field-match points.
func PopularityScore(count int, w FeedWeights) float64 {
	if count <= 0 || w.PopularityNorm <= 0 {
		return 0
	}
	score := float64(count) / w.PopularityNorm
	if score > maxPopularityScore {
		score = maxPopularityScore
	}
	return score
}
