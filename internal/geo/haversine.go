// Package geo holds great-circle distance math on WGS84 coordinates.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by Haversine.
const EarthRadiusMeters = 6371000.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Haversine returns the great-circle distance in meters between two coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Distance is Haversine over two points.
func Distance(a, b Point) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Valid reports whether the point lies within WGS84 bounds.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// OffsetNorth returns a point moved meters due north (negative moves south).
func (p Point) OffsetNorth(meters float64) Point {
	return Point{Lat: p.Lat + toDeg(meters/EarthRadiusMeters), Lon: p.Lon}
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
