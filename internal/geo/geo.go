// Package geo provides the coordinate types and distance helpers shared by the
// routing, environment, report and trip packages.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371008.8

// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Munich is the default map center and geocoding city bias.
var Munich = Coordinate{Lat: 48.1351, Lng: 11.5820}

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the coordinate is within WGS84 ranges.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

// String formats the coordinate as "lat,lng".
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// PlanarDistance returns the euclidean distance between two coordinates in
// degrees. It treats latitude and longitude degrees as equal, which is good
// enough for city-scale geofencing but stretches east-west distances the
// further the points are from the equator.
func PlanarDistance(a, b Coordinate) float64 {
	dLat := a.Lat - b.Lat
	dLng := a.Lng - b.Lng
	return math.Sqrt(dLat*dLat + dLng*dLng)
}

// WithinPlanar reports whether b lies strictly closer than threshold degrees to a.
// The comparison is done on squared distances.
func WithinPlanar(a, b Coordinate, threshold float64) bool {
	dLat := a.Lat - b.Lat
	dLng := a.Lng - b.Lng
	return dLat*dLat+dLng*dLng < threshold*threshold
}

// GreatCircleMeters returns the great-circle distance between two coordinates.
func GreatCircleMeters(a, b Coordinate) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Midpoint returns the point halfway along the slice, or the zero coordinate
// for an empty slice.
func Midpoint(points []Coordinate) Coordinate {
	if len(points) == 0 {
		return Coordinate{}
	}
	return points[len(points)/2]
}
