// Package polyline implements the encoded polyline format used by Google
// Maps, GraphHopper and the M-Radl mobile clients.
//
// Format: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"
	"strings"

	"github.com/mradl/mradl/internal/geo"
)

// Precision is the scale factor applied before rounding. Precision5 is the
// common default; GraphHopper can be asked for Precision6.
type Precision float64

const (
	Precision5 Precision = 1e5
	Precision6 Precision = 1e6
)

// ErrTruncated is returned for input that ends in the middle of a value or
// holds an unpaired latitude.
var ErrTruncated = errors.New("polyline: truncated input")

// Encode encodes coords at Precision5.
func Encode(coords []geo.Coordinate) string {
	return Precision5.Encode(coords)
}

// Decode decodes s at Precision5.
func Decode(s string) ([]geo.Coordinate, error) {
	return Precision5.Decode(s)
}

// Encode encodes coords as deltas from the previous point.
func (p Precision) Encode(coords []geo.Coordinate) string {
	var sb strings.Builder
	sb.Grow(len(coords) * 8)

	var lastLat, lastLng int64
	for _, c := range coords {
		lat := int64(math.Round(c.Lat * float64(p)))
		lng := int64(math.Round(c.Lng * float64(p)))
		writeSigned(&sb, lat-lastLat)
		writeSigned(&sb, lng-lastLng)
		lastLat, lastLng = lat, lng
	}
	return sb.String()
}

// Decode reverses Encode.
func (p Precision) Decode(s string) ([]geo.Coordinate, error) {
	var (
		coords   []geo.Coordinate
		lat, lng int64
	)
	for i := 0; i < len(s); {
		dLat, n, ok := readSigned(s[i:])
		if !ok {
			return nil, ErrTruncated
		}
		i += n
		dLng, n, ok := readSigned(s[i:])
		if !ok {
			return nil, ErrTruncated
		}
		i += n

		lat += dLat
		lng += dLng
		coords = append(coords, geo.Coordinate{Lat: float64(lat) / float64(p), Lng: float64(lng) / float64(p)})
	}
	return coords, nil
}

// writeSigned zigzag-encodes v and writes it in 5-bit groups, low first.
func writeSigned(sb *strings.Builder, v int64) {
	u := uint64(v) << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		sb.WriteByte(byte(0x20|u&0x1f) + 63)
		u >>= 5
	}
	sb.WriteByte(byte(u) + 63)
}

// readSigned reads one value from the front of s and reports how many bytes
// it used. ok is false when s ends before the value does.
func readSigned(s string) (v int64, n int, ok bool) {
	var u uint64
	var shift uint
	for n < len(s) {
		b := uint64(s[n]) - 63
		n++
		u |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			if u&1 != 0 {
				return int64(^(u >> 1)), n, true
			}
			return int64(u >> 1), n, true
		}
	}
	return 0, n, false
}
