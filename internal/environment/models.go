// Package environment scores how much of a route runs past street lighting
// or natural shade, using point features from an infrastructure query
// service.
package environment

import (
	"context"
	"errors"
	"time"

	"github.com/mradl/mradl/internal/geo"
)

// Environment errors.
var (
	ErrProviderUnavailable = errors.New("feature provider unavailable")
	ErrUnknownKind         = errors.New("unknown feature kind")
	ErrAreaTooLarge        = errors.New("sampling area too large")
)

// Kind selects which features are sampled.
type Kind string

const (
	// KindLight covers lit ways and street lamps.
	KindLight Kind = "LIGHT"
	// KindShade covers trees, tree rows, parks and forests.
	KindShade Kind = "SHADE"
)

// Kinds lists the supported feature kinds.
var Kinds = []Kind{KindLight, KindShade}

// Params control how a route is sampled for a kind.
type Params struct {
	// Stride samples every Nth route point.
	Stride int
	// Threshold is the planar distance in degrees within which a feature
	// covers a sampled point.
	Threshold float64
}

// DefaultParams returns the sampling parameters for kind.
func DefaultParams(kind Kind) (Params, error) {
	switch kind {
	case KindLight:
		return Params{Stride: 10, Threshold: 0.0004}, nil
	case KindShade:
		return Params{Stride: 5, Threshold: 0.0005}, nil
	default:
		return Params{}, ErrUnknownKind
	}
}

// Coverage is the result of sampling one route.
type Coverage struct {
	Kind    Kind
	Sampled int
	Covered int
	// RawPercent is covered/sampled*100 before weighting and clamping.
	RawPercent float64
	// Percent is the display value after solar weighting and clamping.
	Percent float64
	// SolarFactor weights shade coverage; it is 1 for light.
	SolarFactor float64
	// Available is false when the feature query failed.
	Available   bool
	EvaluatedAt time.Time
}

// Clamp bounds the displayed percentage.
type Clamp struct {
	Enabled bool
	Min     float64
	Max     float64
}

// DefaultClamp keeps displayed coverage away from 0% and 100%.
var DefaultClamp = Clamp{Enabled: true, Min: 10, Max: 95}

// Apply clamps v when enabled.
func (c Clamp) Apply(v float64) float64 {
	if !c.Enabled || c.Min > c.Max {
		return v
	}
	return min(max(v, c.Min), c.Max)
}

// FeatureSource queries point features inside a bounding box.
type FeatureSource interface {
	Features(ctx context.Context, kind Kind, bbox geo.BoundingBox) ([]geo.Coordinate, error)
	Name() string
}

// TileCache stores features per grid tile.
type TileCache interface {
	Get(ctx context.Context, kind Kind, tile geo.BoundingBox) ([]geo.Coordinate, bool, error)
	Put(ctx context.Context, kind Kind, tile geo.BoundingBox, features []geo.Coordinate, ttl time.Duration) error
}

// ClampSource reads the runtime clamp configuration.
type ClampSource interface {
	CoverageClamp(ctx context.Context) (enabled bool, lo, hi float64)
}

// Error provides detailed error information from the feature provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
