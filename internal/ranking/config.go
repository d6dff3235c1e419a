package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"` // Weight configurations
}

// LoadCalibration loads ranking weights from a JSON calibration file.
// If the file doesn't exist or can't be read, returns default weights with an error.
// Partial configurations are merged with defaults for graceful degradation.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	merged := MergeCalibration(DefaultWeights(), &config.Weights)
	return merged, nil
}

// MergeCalibration merges override weights with base weights.
// Only non-zero values from the override are applied, which allows
// partial overrides in the calibration file.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}
	if override == nil {
		result := *base
		return &result
	}

	result := *base

	if override.Field.Title != 0 {
		result.Field.Title = override.Field.Title
	}
	if override.Field.Category != 0 {
		result.Field.Category = override.Field.Category
	}
	if override.Field.Tags != 0 {
		result.Field.Tags = override.Field.Tags
	}
	if override.Field.Venue != 0 {
		result.Field.Venue = override.Field.Venue
	}
	if override.Field.City != 0 {
		result.Field.City = override.Field.City
	}
	if override.Field.Description != 0 {
		result.Field.Description = override.Field.Description
	}

	if override.Temporal.MaxBonus != 0 {
		result.Temporal.MaxBonus = override.Temporal.MaxBonus
	}
	if override.Temporal.NearDays != 0 {
		result.Temporal.NearDays = override.Temporal.NearDays
	}
	if override.Temporal.FarDays != 0 {
		result.Temporal.FarDays = override.Temporal.FarDays
	}

	if override.Feed.CategoryBoost != 0 {
		result.Feed.CategoryBoost = override.Feed.CategoryBoost
	}
	if override.Feed.FollowingBoost != 0 {
		result.Feed.FollowingBoost = override.Feed.FollowingBoost
	}
	if override.Feed.PopularityNorm != 0 {
		result.Feed.PopularityNorm = override.Feed.PopularityNorm
	}

	return &result
}
