package routing

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/cache"
	"github.com/mradl/mradl/internal/geo"
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	Router Router
	Logger zerolog.Logger

	// CacheTTL is how long routes are fresh (default: 5 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the grid cell size in degrees (default: 0.0005,
	// about 50 m). Requests whose endpoints share cells share routes.
	CacheGridSize float64

	// StaleFor is how long routes may be served after a provider failure
	// (default: 15 minutes).
	StaleFor time.Duration
}

// Service is a caching Router in front of a provider.
type Service struct {
	router Router
	logger zerolog.Logger
	grid   float64
	routes *cache.Stale[routeKey, []Candidate]
}

// routeKey is a request with both endpoints quantized onto the grid.
type routeKey struct {
	profile          Profile
	fromLat, fromLng int64
	toLat, toLng     int64
}

func (k routeKey) String() string {
	return fmt.Sprintf("%s:%d,%d:%d,%d", k.profile, k.fromLat, k.fromLng, k.toLat, k.toLng)
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheGridSize <= 0 {
		cfg.CacheGridSize = 0.0005
	}
	if cfg.StaleFor <= 0 {
		cfg.StaleFor = 15 * time.Minute
	}
	return &Service{
		router: cfg.Router,
		logger: cfg.Logger,
		grid:   cfg.CacheGridSize,
		routes: cache.New[routeKey, []Candidate](cache.Config{TTL: cfg.CacheTTL, StaleFor: cfg.StaleFor}),
	}
}

// Name returns the name of the underlying provider.
func (s *Service) Name() string {
	return s.router.Name()
}

// Route returns routes for one profile. The slice is the caller's to
// modify; the cached copy is never shared.
func (s *Service) Route(ctx context.Context, req Request) ([]Candidate, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	key := s.keyOf(req)
	res, err := s.routes.Get(key, func() ([]Candidate, error) {
		s.logger.Debug().Stringer("route_key", key).Msg("fetching route from provider")
		candidates, err := s.router.Route(ctx, req)
		return slices.Clone(candidates), err
	})
	if err != nil {
		s.logger.Warn().Err(err).Stringer("route_key", key).Msg("failed to fetch route")
		return nil, err
	}
	if res.Stale {
		s.logger.Warn().Err(res.LoadErr).
			Stringer("route_key", key).
			Time("fetched_at", res.FetchedAt).
			Msg("routing provider failed, serving stale route")
	}
	return slices.Clone(res.Value), nil
}

func (s *Service) validate(req Request) error {
	for _, end := range []struct {
		at   geo.Coordinate
		code string
		name string
	}{
		{req.Origin, "INVALID_ORIGIN", "origin"},
		{req.Destination, "INVALID_DESTINATION", "destination"},
	} {
		if end.at.Validate() != nil {
			return &Error{
				Provider: s.router.Name(),
				Code:     end.code,
				Message:  "invalid " + end.name + " coordinates",
				Err:      ErrInvalidCoordinates,
			}
		}
	}
	return nil
}

func (s *Service) keyOf(req Request) routeKey {
	q := func(v float64) int64 { return int64(math.Floor(v / s.grid)) }
	return routeKey{
		profile: req.Profile,
		fromLat: q(req.Origin.Lat),
		fromLng: q(req.Origin.Lng),
		toLat:   q(req.Destination.Lat),
		toLng:   q(req.Destination.Lng),
	}
}

// InvalidateCache drops every cached route.
func (s *Service) InvalidateCache() {
	s.routes.Invalidate()
}

// CacheStats describes the route cache.
type CacheStats struct {
	cache.Stats
	Provider string
}

// CacheStats returns a snapshot of the route cache.
func (s *Service) CacheStats() CacheStats {
	return CacheStats{Stats: s.routes.Stats(), Provider: s.router.Name()}
}

var _ Router = (*Service)(nil)
