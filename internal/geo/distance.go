// Package geo provides the great-circle math behind geofenced check-ins.
package geo

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for all distance math.
const EarthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between two
// coordinates given in degrees. s2's LatLng distance is the haversine
// formula; NaN inputs propagate and validation is the caller's job.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return EarthRadiusMeters * a.Distance(b).Radians()
}

// localFrame returns the unit tangent vectors pointing north and east at p.
// Degenerate at the poles, where bearing itself is undefined.
func localFrame(p s2.Point) (north, east r3.Vector) {
	z := r3.Vector{X: 0, Y: 0, Z: 1}
	east = z.Cross(p.Vector).Normalize()
	north = p.Cross(east).Normalize()
	return north, east
}

// Bearing returns the initial bearing in degrees (0=N, 90=E) from point 1
// to point 2.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	p := s2.PointFromLatLng(s2.LatLngFromDegrees(lat1, lon1))
	q := s2.PointFromLatLng(s2.LatLngFromDegrees(lat2, lon2))
	north, east := localFrame(p)
	// project the target onto the tangent plane at p
	dir := q.Sub(p.Mul(q.Dot(p.Vector)))
	deg := math.Atan2(dir.Dot(east), dir.Dot(north)) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// DestinationPoint returns the coordinates reached by travelling distance
// meters from (lat, lon) along the given bearing in degrees.
func DestinationPoint(lat, lon, bearing, distance float64) (float64, float64) {
	p := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	north, east := localFrame(p)
	theta := bearing * math.Pi / 180
	dir := north.Mul(math.Cos(theta)).Add(east.Mul(math.Sin(theta)))
	delta := distance / EarthRadiusMeters
	dest := s2.Point{Vector: p.Mul(math.Cos(delta)).Add(dir.Mul(math.Sin(delta))).Normalize()}
	ll := s2.LatLngFromPoint(dest)
	return ll.Lat.Degrees(), ll.Lng.Degrees()
}
