package geo

import "fmt"

// FromWire converts GeoJSON-ordered [lng, lat] pairs into coordinates.
// Pairs with fewer than two values are rejected; extra values such as
// elevation are ignored.
func FromWire(pairs [][]float64) ([]Coordinate, error) {
	points := make([]Coordinate, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) < 2 {
			return nil, fmt.Errorf("coordinate %d has %d values, want at least 2", i, len(pair))
		}
		points = append(points, Coordinate{Lat: pair[1], Lng: pair[0]})
	}
	return points, nil
}

// ToWire converts coordinates back into GeoJSON-ordered [lng, lat] pairs.
func ToWire(points []Coordinate) [][]float64 {
	pairs := make([][]float64, len(points))
	for i, p := range points {
		pairs[i] = []float64{p.Lng, p.Lat}
	}
	return pairs
}
