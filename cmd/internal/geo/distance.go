// Package geo provides great-circle distance math for the presence engine.
//
// Everything here is a pure function over coordinate pairs; the package holds
// no state and has no dependencies beyond math.
package geo

import (
	"fmt"
	"math"
)

// earthRadiusMeters is the mean Earth radius used by the Haversine formula.
const earthRadiusMeters = 6371000

// Point is a geographic coordinate in degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the point lies within the legal coordinate ranges
// and contains no NaN/Inf components.
func (p Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) {
		return false
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Distance returns the great-circle distance between a and b in meters,
// computed with the Haversine formula. It is symmetric and returns zero for
// coincident points.
func Distance(a, b Point) float64 {
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Latitude))*math.Cos(radians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FormatDistance renders meters for humans: whole meters below 1 km,
// kilometers to one decimal at or above. Rounding is half-up and happens
// before the unit-threshold check, so 999.6 m formats as "1.0km" and never
// as "1000m".
func FormatDistance(meters float64) string {
	rounded := math.Floor(meters + 0.5)
	if rounded < 1000 {
		return fmt.Sprintf("%dm", int64(rounded))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
