package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean spherical Earth radius used for all
// distance calculations.
const EarthRadiusMeters = 6371009.0

const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// LatLon is a position in decimal degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// Distance computes the great-circle distance between two points in meters
// using the haversine formula. The asin(sqrt(a)) form stays numerically
// stable for antipodal points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0

	lat1Rad := lat1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Min(1, math.Sqrt(a)))

	return EarthRadiusMeters * c
}

// DistanceLL is Distance over two LatLon values.
func DistanceLL(a, b LatLon) float64 {
	return Distance(a.Lat, a.Lon, b.Lat, b.Lon)
}

// PointDistance computes the same great-circle distance through the s2
// library. Used as a cross-check in tests; both agree to well under a meter.
func PointDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// BoundingBox returns the smallest lat/lon box containing the circle of
// radiusMeters around (lat, lon). Latitude is clamped at the poles and
// longitude wraps at the antimeridian, in which case the box degenerates
// to the full longitude range.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, maxLat, minLon, maxLon float64) {
	latDelta := radiusMeters / EarthRadiusMeters * 180.0 / math.Pi

	minLat = math.Max(lat-latDelta, MinLat)
	maxLat = math.Min(lat+latDelta, MaxLat)

	// Longitude compression by cos(lat); at the poles a circle spans
	// every longitude.
	cosLat := math.Cos(lat * math.Pi / 180.0)
	if cosLat <= 0 || minLat <= MinLat || maxLat >= MaxLat {
		return minLat, maxLat, MinLon, MaxLon
	}

	lonDelta := latDelta / cosLat
	if lonDelta >= 180.0 {
		return minLat, maxLat, MinLon, MaxLon
	}

	minLon = lon - lonDelta
	maxLon = lon + lonDelta
	if minLon < MinLon {
		minLon += 360.0
	}
	if maxLon > MaxLon {
		maxLon -= 360.0
	}
	return minLat, maxLat, minLon, maxLon
}

// Centroid returns the weighted arithmetic mean of the given points.
// The caller guarantees the weight sum is positive.
func Centroid(points []LatLon, weights []float64) LatLon {
	var sumW, sumLat, sumLon float64
	for i, p := range points {
		w := weights[i]
		sumW += w
		sumLat += w * p.Lat
		sumLon += w * p.Lon
	}
	return LatLon{Lat: sumLat / sumW, Lon: sumLon / sumW}
}

// ValidateCoordinates reports whether the pair is a usable WGS84 position.
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= MinLat && lat <= MaxLat && lon >= MinLon && lon <= MaxLon
}
