package geo

// ClusterPrecision is the geohash precision used to bucket analytics
// entries by coarse location. Five characters is roughly a 5 km cell,
// coarse enough to aggregate queries by area without pinpointing users.
const ClusterPrecision = 5

// geohashAlphabet is the base32 variant geohashes use ('a', 'i', 'l',
// and 'o' are excluded).
const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// EncodeGeohash encodes a coordinate as a geohash of the given precision.
// Bits alternate between longitude and latitude, each halving its range,
// and every five bits emit one alphabet character. Precisions below 1
// fall back to ClusterPrecision.
func EncodeGeohash(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = ClusterPrecision
	}

	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0

	out := make([]byte, 0, precision)
	var ch uint
	bit := 0

	for i := 0; len(out) < precision; i++ {
		if i%2 == 0 {
			mid := (minLng + maxLng) / 2
			if lng > mid {
				ch |= 1 << (4 - bit)
				minLng = mid
			} else {
				maxLng = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat > mid {
				ch |= 1 << (4 - bit)
				minLat = mid
			} else {
				maxLat = mid
			}
		}

		if bit++; bit == 5 {
			out = append(out, geohashAlphabet[ch])
			bit, ch = 0, 0
		}
	}

	return string(out)
}
