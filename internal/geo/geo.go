package geo

import (
	"math"

	"github.com/vzahanych/area-insight/internal/model"
)

const (
	EarthRadiusMiles   = 3958.8
	DefaultRadiusMiles = 0.5
)

// DistanceMiles returns the great-circle distance between a and b using the
// haversine formula.
func DistanceMiles(a, b model.Coordinate) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	// rounding can push h just outside [0,1] for antipodal points
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMiles * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// WithinRadius reports whether target lies within radiusMiles of origin, inclusive.
func WithinRadius(origin, target model.Coordinate, radiusMiles float64) bool {
	return DistanceMiles(origin, target) <= radiusMiles
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
