package validate

import (
	"errors"
	"fmt"
)

// Coordinate and radius validation errors.
var (
	ErrLatitudeOutOfRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")
	ErrRadiusOutOfRange    = errors.New("radius must be positive")
)

// MaxRadiusKm bounds search radii to prevent effectively-unbounded scans.
const MaxRadiusKm = 500.0

// Coordinate validates a latitude/longitude pair.
func Coordinate(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: got %f", ErrLatitudeOutOfRange, lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: got %f", ErrLongitudeOutOfRange, lng)
	}
	return nil
}

// RadiusKm validates a search radius in kilometers.
func RadiusKm(radius float64) error {
	if radius <= 0 {
		return fmt.Errorf("%w: got %f", ErrRadiusOutOfRange, radius)
	}
	if radius > MaxRadiusKm {
		return fmt.Errorf("radius exceeds maximum of %.0f km: got %f", MaxRadiusKm, radius)
	}
	return nil
}
