package environment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/routing"
)

// DefaultTileSize is the edge of a cache tile in degrees.
const DefaultTileSize = 0.02

// DefaultMaxTiles bounds one query to about 0.4° by 0.4° of default
// tiles, which covers the city with room to spare.
const DefaultMaxTiles = 400

// ServiceConfig holds configuration for the environment service.
type ServiceConfig struct {
	// Source is the feature provider.
	Source FeatureSource

	// Cache stores features per tile (optional).
	Cache TileCache

	// Clamp reads the display clamp at evaluation time (optional, DefaultClamp otherwise).
	Clamp ClampSource

	// TileSize is the cache tile edge in degrees (default: 0.02).
	TileSize float64

	// TileTTL is how long tiles stay cached (default: 24 hours).
	TileTTL time.Duration

	// MaxTiles rejects queries spanning more tiles (default: 400).
	MaxTiles int

	Logger zerolog.Logger
}

// Service evaluates route coverage with tile-cached features.
type Service struct {
	source   FeatureSource
	cache    TileCache
	clamp    ClampSource
	tileSize float64
	tileTTL  time.Duration
	maxTiles int
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a new environment service.
func NewService(cfg ServiceConfig) *Service {
	tileSize := cfg.TileSize
	if tileSize == 0 {
		tileSize = DefaultTileSize
	}

	tileTTL := cfg.TileTTL
	if tileTTL == 0 {
		tileTTL = 24 * time.Hour
	}

	maxTiles := cfg.MaxTiles
	if maxTiles <= 0 {
		maxTiles = DefaultMaxTiles
	}

	return &Service{
		source:   cfg.Source,
		cache:    cfg.Cache,
		clamp:    cfg.Clamp,
		tileSize: tileSize,
		tileTTL:  tileTTL,
		maxTiles: maxTiles,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Features returns the features of kind inside bbox. Cached tiles are
// used where present; all missing tiles are filled by a single upstream
// query over their combined extent. Boxes wider than MaxTiles fail with
// ErrAreaTooLarge before anything is read or fetched.
func (s *Service) Features(ctx context.Context, kind Kind, bbox geo.BoundingBox) ([]geo.Coordinate, error) {
	if _, err := DefaultParams(kind); err != nil {
		return nil, err
	}
	if err := s.checkSpan(bbox); err != nil {
		return nil, err
	}

	if s.cache == nil {
		return s.source.Features(ctx, kind, bbox)
	}

	tiles := bbox.Tiles(s.tileSize)
	var (
		features []geo.Coordinate
		missing  []geo.BoundingBox
	)

	for _, tile := range tiles {
		cached, ok, err := s.cache.Get(ctx, kind, tile)
		if err != nil {
			s.logger.Warn().Err(err).Str("tile", tile.Key()).Msg("tile cache read failed")
		}
		if ok {
			features = append(features, cached...)
			continue
		}
		missing = append(missing, tile)
	}

	if len(missing) > 0 {
		fetched, err := s.fill(ctx, kind, missing)
		if err != nil {
			return nil, err
		}
		features = append(features, fetched...)
	}

	inside := features[:0:0]
	for _, f := range features {
		if bbox.Contains(f) {
			inside = append(inside, f)
		}
	}

	s.logger.Debug().
		Str("kind", string(kind)).
		Int("tiles", len(tiles)).
		Int("missing_tiles", len(missing)).
		Int("features", len(inside)).
		Msg("resolved environment features")

	return inside, nil
}

// fill queries the extent of the missing tiles once and stores each tile.
func (s *Service) fill(ctx context.Context, kind Kind, missing []geo.BoundingBox) ([]geo.Coordinate, error) {
	corners := make([]geo.Coordinate, 0, 2*len(missing))
	for _, t := range missing {
		corners = append(corners,
			geo.Coordinate{Lat: t.South, Lng: t.West},
			geo.Coordinate{Lat: t.North, Lng: t.East},
		)
	}
	extent := geo.BoundingBoxOf(corners...)

	fetched, err := s.source.Features(ctx, kind, extent)
	if err != nil {
		return nil, err
	}

	var out []geo.Coordinate
	for _, tile := range missing {
		var inTile []geo.Coordinate
		for _, f := range fetched {
			if tile.Contains(f) {
				inTile = append(inTile, f)
			}
		}
		if err := s.cache.Put(ctx, kind, tile, inTile, s.tileTTL); err != nil {
			s.logger.Warn().Err(err).Str("tile", tile.Key()).Msg("tile cache write failed")
		}
		out = append(out, inTile...)
	}
	return out, nil
}

func (s *Service) checkSpan(bbox geo.BoundingBox) error {
	if n := bbox.TileCount(s.tileSize); n > s.maxTiles {
		return fmt.Errorf("%w: %d tiles of %g°, limit %d", ErrAreaTooLarge, n, s.tileSize, s.maxTiles)
	}
	return nil
}

// Prewarm fills the cache for every tile of bbox and returns how many
// tiles were fetched upstream.
func (s *Service) Prewarm(ctx context.Context, kind Kind, bbox geo.BoundingBox) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	if err := s.checkSpan(bbox); err != nil {
		return 0, err
	}

	var missing []geo.BoundingBox
	for _, tile := range bbox.Tiles(s.tileSize) {
		_, ok, err := s.cache.Get(ctx, kind, tile)
		if err == nil && ok {
			continue
		}
		missing = append(missing, tile)
	}

	if len(missing) == 0 {
		return 0, nil
	}

	if _, err := s.fill(ctx, kind, missing); err != nil {
		return 0, err
	}
	return len(missing), nil
}

// Evaluate samples route against features of kind inside bbox. A failed
// feature query degrades to an unavailable coverage rather than an error.
func (s *Service) Evaluate(ctx context.Context, kind Kind, route []geo.Coordinate, bbox geo.BoundingBox, at time.Time) (Coverage, error) {
	params, err := DefaultParams(kind)
	if err != nil {
		return Coverage{}, err
	}

	cov := Coverage{
		Kind:        kind,
		Sampled:     SampleCount(len(route), params),
		SolarFactor: 1,
		EvaluatedAt: at,
	}

	features, err := s.Features(ctx, kind, bbox)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("kind", string(kind)).
			Str("bbox", bbox.Key()).
			Msg("feature query failed, coverage unavailable")
		return cov, nil
	}
	cov.Available = true

	cov.Covered = Score(route, features, params)
	if cov.Sampled > 0 {
		cov.RawPercent = float64(cov.Covered) / float64(cov.Sampled) * 100
	}

	percent := cov.RawPercent
	if kind == KindShade {
		cov.SolarFactor = SolarFactor(at, geo.Midpoint(route))
		percent *= cov.SolarFactor
	}

	// Shade at night stays at zero.
	if cov.SolarFactor > 0 {
		percent = s.currentClamp(ctx).Apply(percent)
	}
	cov.Percent = percent

	return cov, nil
}

func (s *Service) currentClamp(ctx context.Context) Clamp {
	if s.clamp == nil {
		return DefaultClamp
	}
	enabled, lo, hi := s.clamp.CoverageClamp(ctx)
	return Clamp{Enabled: enabled, Min: lo, Max: hi}
}

// KindForMode maps a safety mode to the feature kind it is scored on.
func KindForMode(mode routing.Mode) (Kind, bool) {
	switch mode {
	case routing.ModeSafeLit:
		return KindLight, true
	case routing.ModeCoolShaded:
		return KindShade, true
	default:
		return "", false
	}
}

// SampleNote evaluates the route for mode and renders the display note.
func (s *Service) SampleNote(ctx context.Context, mode routing.Mode, route []geo.Coordinate, bbox geo.BoundingBox) (string, error) {
	kind, ok := KindForMode(mode)
	if !ok {
		return "", fmt.Errorf("%w: mode %s has no coverage", ErrUnknownKind, mode)
	}

	cov, err := s.Evaluate(ctx, kind, route, bbox, s.now())
	if err != nil {
		return "", err
	}
	return Note(cov), nil
}

// Note renders coverage for display.
func Note(c Coverage) string {
	label := "Lit"
	if c.Kind == KindShade {
		label = "Shade"
	}

	switch {
	case !c.Available && c.Kind == KindShade:
		return "Shade data unavailable"
	case !c.Available:
		return "Lighting data unavailable"
	case c.Kind == KindShade && c.SolarFactor == 0:
		return "Shade coverage: 0% (sun below horizon)"
	default:
		return fmt.Sprintf("%s coverage: %.0f%%", label, c.Percent)
	}
}

var _ routing.CoverageSampler = (*Service)(nil)
