package location

import "math"

// EarthRadiusM is the Earth radius in meters for Haversine.
const EarthRadiusM = 6371000.0

// MetersPerDegreeLat is the approximate north-south span of one degree
// of latitude. Used to turn meter radii into degree deltas for coarse
// cell filtering.
const MetersPerDegreeLat = 111320.0

// HaversineM returns the distance in meters between two points (lat/lng
// in degrees).
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	φ1, φ2 := rad(lat1), rad(lat2)
	Δφ := rad(lat2 - lat1)
	Δλ := rad(lng2 - lng1)
	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// DegreesLat converts a meter span to degrees of latitude.
func DegreesLat(meters float64) float64 {
	return meters / MetersPerDegreeLat
}

// DegreesLng converts a meter span to degrees of longitude at the given
// latitude. Near the poles a degree of longitude shrinks toward zero, so
// the cosine is clamped to keep the delta finite; callers then clamp the
// scan range to the full longitude span.
func DegreesLng(meters, atLat float64) float64 {
	cos := math.Cos(atLat * math.Pi / 180)
	if cos < 0.01 {
		cos = 0.01
	}
	return meters / (MetersPerDegreeLat * cos)
}

// WrapLng normalizes a longitude into [-180, 180).
func WrapLng(lng float64) float64 {
	for lng < -180 {
		lng += 360
	}
	for lng >= 180 {
		lng -= 360
	}
	return lng
}

// ValidCoords reports whether lat/lng are finite and in range.
func ValidCoords(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
