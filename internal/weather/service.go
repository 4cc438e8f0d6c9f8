package weather

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/cache"
	"github.com/mradl/mradl/internal/geo"
)

// ServiceConfig holds configuration for the weather service.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// CacheTTL is how long an observation is fresh (default: 10 minutes).
	CacheTTL time.Duration

	// GridSize is the cache cell size in degrees (default: 0.1). Points in
	// the same cell share one observation.
	GridSize float64

	// StaleFor is how long an observation may be served after a provider
	// failure (default: 1 hour).
	StaleFor time.Duration
}

// Service answers current conditions from a per-cell cache.
type Service struct {
	provider Provider
	logger   zerolog.Logger
	grid     float64
	cells    *cache.Stale[cell, *Observation]
}

type cell struct{ lat, lng int64 }

// NewService creates a new weather service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.GridSize <= 0 {
		cfg.GridSize = 0.1
	}
	if cfg.StaleFor <= 0 {
		cfg.StaleFor = time.Hour
	}
	return &Service{
		provider: cfg.Provider,
		logger:   cfg.Logger,
		grid:     cfg.GridSize,
		cells:    cache.New[cell, *Observation](cache.Config{TTL: cfg.CacheTTL, StaleFor: cfg.StaleFor}),
	}
}

// Conditions returns the current weather at a point and its cycling
// assessment. A provider failure is masked by an observation up to
// StaleFor old, flagged Stale.
func (s *Service) Conditions(ctx context.Context, at geo.Coordinate) (*Conditions, error) {
	if err := at.Validate(); err != nil {
		return nil, ErrInvalidCoordinates
	}

	c := cell{
		lat: int64(math.Floor(at.Lat / s.grid)),
		lng: int64(math.Floor(at.Lng / s.grid)),
	}
	res, err := s.cells.Get(c, func() (*Observation, error) {
		s.logger.Debug().Int64("cell_lat", c.lat).Int64("cell_lng", c.lng).Str("provider", s.provider.Name()).Msg("fetching weather")
		return s.provider.Current(ctx, at)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch weather")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if res.Stale {
		s.logger.Warn().Err(res.LoadErr).
			Time("fetched_at", res.FetchedAt).
			Msg("weather provider failed, serving stale observation")
	}

	obs := res.Value
	return &Conditions{
		Observation: obs,
		Cycling:     Assess(obs.PrecipitationMM, obs.WindSpeedKmh),
		Stale:       res.Stale,
	}, nil
}

// Invalidate forgets every cached observation.
func (s *Service) Invalidate() {
	s.cells.Invalidate()
}

// Stats describes the cache.
type Stats struct {
	Cells    int
	Fresh    int
	Provider string
}

// Stats returns a snapshot of the cache.
func (s *Service) Stats() Stats {
	st := s.cells.Stats()
	return Stats{Cells: st.Entries, Fresh: st.Fresh, Provider: s.provider.Name()}
}
