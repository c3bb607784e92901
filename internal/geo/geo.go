// Package geo holds the spherical geometry shared by the graph, the matrix
// fallback and step derivation.
package geo

import (
	"math"

	"route-optimizer/internal/models"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula
const EarthRadiusKm = 6371.0

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// HaversineKm returns the great-circle distance in kilometers
func HaversineKm(a, b models.Coordinates) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := lat2 - lat1
	dLng := toRadians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	// Rounding can push h marginally above 1 for antipodal points
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Distance is HaversineKm over locations
func Distance(a, b models.Location) float64 {
	return HaversineKm(a.GetCoords(), b.GetCoords())
}

// BearingDegrees returns the initial forward azimuth from a to b in [0, 360)
func BearingDegrees(a, b models.Coordinates) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)

	bearing := math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
	if bearing >= 360 {
		bearing = 0
	}
	return bearing
}

var (
	compass4 = []string{"north", "east", "south", "west"}
	compass8 = []string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}
)

// Compass buckets a bearing into 4 or 8 sectors centered on the cardinal directions.
// Any sector count other than 4 is treated as 8.
func Compass(bearing float64, sectors int) string {
	names := compass8
	if sectors == 4 {
		names = compass4
	}
	width := 360.0 / float64(len(names))
	b := math.Mod(math.Mod(bearing, 360)+360, 360)
	idx := int((b+width/2)/width) % len(names)
	return names[idx]
}

// Severity buckets a traffic multiplier: <1.2 none, <1.5 light, <2.0 moderate, else heavy
func Severity(multiplier float64) string {
	switch {
	case multiplier < 1.2:
		return ""
	case multiplier < 1.5:
		return "light"
	case multiplier < 2.0:
		return "moderate"
	default:
		return "heavy"
	}
}
