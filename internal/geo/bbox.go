package geo

import (
	"fmt"
	"math"
)

// BoundingBox is an axis-aligned box in degrees.
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// BoundingBoxOf returns the smallest box containing all points.
func BoundingBoxOf(points ...Coordinate) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}
	box := BoundingBox{
		South: points[0].Lat,
		North: points[0].Lat,
		West:  points[0].Lng,
		East:  points[0].Lng,
	}
	for _, p := range points[1:] {
		box.South = min(box.South, p.Lat)
		box.North = max(box.North, p.Lat)
		box.West = min(box.West, p.Lng)
		box.East = max(box.East, p.Lng)
	}
	return box
}

// Pad grows the box by margin degrees on every side.
func (b BoundingBox) Pad(margin float64) BoundingBox {
	return BoundingBox{
		South: b.South - margin,
		West:  b.West - margin,
		North: b.North + margin,
		East:  b.East + margin,
	}
}

// Snap expands the box outward to multiples of grid degrees.
func (b BoundingBox) Snap(grid float64) BoundingBox {
	return BoundingBox{
		South: round6(floorTo(b.South, grid)),
		West:  round6(floorTo(b.West, grid)),
		North: round6(ceilTo(b.North, grid)),
		East:  round6(ceilTo(b.East, grid)),
	}
}

// TileCount returns len(b.Tiles(grid)) without building the tiles.
func (b BoundingBox) TileCount(grid float64) int {
	snapped := b.Snap(grid)
	rows := int(math.Round((snapped.North - snapped.South) / grid))
	cols := int(math.Round((snapped.East - snapped.West) / grid))
	return rows * cols
}

// Tiles splits a snapped box into grid-sized tiles, row by row from the south-west corner.
func (b BoundingBox) Tiles(grid float64) []BoundingBox {
	snapped := b.Snap(grid)
	var tiles []BoundingBox
	for lat := snapped.South; lat < snapped.North-grid/2; lat += grid {
		for lng := snapped.West; lng < snapped.East-grid/2; lng += grid {
			tiles = append(tiles, BoundingBox{
				South: round6(lat),
				West:  round6(lng),
				North: round6(lat + grid),
				East:  round6(lng + grid),
			})
		}
	}
	return tiles
}

// Contains reports whether c lies inside the box, borders included.
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lat >= b.South && c.Lat <= b.North &&
		c.Lng >= b.West && c.Lng <= b.East
}

// Center returns the center of the box.
func (b BoundingBox) Center() Coordinate {
	return Coordinate{Lat: (b.South + b.North) / 2, Lng: (b.West + b.East) / 2}
}

// Key returns a stable string identifying the box.
func (b BoundingBox) Key() string {
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", b.South, b.West, b.North, b.East)
}
