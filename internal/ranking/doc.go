// Package ranking provides centralized relevance weight definitions
// with calibration support for search and discovery features.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	weights, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//
//	// Score a field match
//	score := weights.Field.Title // contribution of a title match
//
//	// Compute the temporal bonus for an upcoming event
//	bonus := ranking.TemporalBonus(event.StartsAt, time.Now(), weights.Temporal)
//
// Weight Semantics:
//
// Field weights are additive points, not normalized fractions. A candidate
// accumulates the weight of every field the query matches, plus a temporal
// proximity bonus for time-bound entities. Scores are always >= 0; a
// candidate with no matching field scores zero.
//
// Calibration:
//
// The calibration system allows deploy-time tuning of ranking weights via
// JSON configuration files loaded at startup. This enables A/B testing and
// optimization without code changes (but requires a redeploy or restart to
// pick up new configuration). See configs/ranking.calibration.json for the
// default configuration.
package ranking
