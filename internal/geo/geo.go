// Package geo provides geolocation utilities for distance computation and
// coarse location clustering used by search and discovery.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// KmPerDegreeLat is the approximate north-south span of one degree of
// latitude. The bounding-box pre-filter divides a radius by this constant;
// it is a known approximation that does not correct for every longitude
// edge case near the poles. Tightening it would change result sets at the
// edge of a radius, so it stays as-is.
const KmPerDegreeLat = 111.0

// DistanceKm returns the great-circle distance in kilometers between two
// coordinates using the haversine formula. Inputs are assumed to be valid
// coordinates; callers validate ranges before invoking.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// BoundingBox is a rectangular approximation of a circular radius around a
// center point. It is used as a cheap pre-filter before exact distance
// computation and is always a superset of the true circle: it may admit
// candidates slightly outside the radius, never reject candidates inside it.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// NewBoundingBox computes the bounding box for a radius (km) around a center
// point. Longitude span is widened by cos(latitude); near the poles, where
// the adjustment degenerates, the box falls open to the full longitude range
// so the superset guarantee holds.
func NewBoundingBox(lat, lng, radiusKm float64) BoundingBox {
	latDelta := radiusKm / KmPerDegreeLat

	box := BoundingBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
	}
	if box.MinLat < -90 {
		box.MinLat = -90
	}
	if box.MaxLat > 90 {
		box.MaxLat = 90
	}

	cosLat := math.Cos(radians(lat))
	if cosLat < 1e-6 {
		box.MinLng = -180
		box.MaxLng = 180
		return box
	}

	lngDelta := radiusKm / (KmPerDegreeLat * cosLat)
	box.MinLng = lng - lngDelta
	box.MaxLng = lng + lngDelta
	if box.MinLng < -180 {
		box.MinLng = -180
	}
	if box.MaxLng > 180 {
		box.MaxLng = 180
	}

	return box
}

// Contains reports whether a coordinate falls inside the box.
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat &&
		lng >= b.MinLng && lng <= b.MaxLng
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
