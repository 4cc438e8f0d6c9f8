package geocode

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/geo"
)

// ServiceConfig holds configuration for the geocoding service.
type ServiceConfig struct {
	Provider Provider
	// Cache is optional; lookups go straight to the provider without it.
	Cache Cache
	// CityBias is appended to every query (default: Munich).
	CityBias string
	Logger   zerolog.Logger
}

// Service resolves destinations, consulting the cache before the provider.
type Service struct {
	provider Provider
	cache    Cache
	cityBias string
	logger   zerolog.Logger
}

// NewService creates a new geocoding service.
func NewService(cfg ServiceConfig) *Service {
	cityBias := cfg.CityBias
	if cityBias == "" {
		cityBias = "Munich"
	}
	return &Service{
		provider: cfg.Provider,
		cache:    cfg.Cache,
		cityBias: cityBias,
		logger:   cfg.Logger,
	}
}

// CityBias returns the city appended to queries.
func (s *Service) CityBias() string {
	return s.cityBias
}

// Geocode resolves the destination text. A miss from the provider is
// returned as ErrNotFound and never cached.
func (s *Service) Geocode(ctx context.Context, query string) (geo.Coordinate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return geo.Coordinate{}, ErrEmptyQuery
	}

	key := CacheKey(query, s.cityBias)

	if s.cache != nil {
		c, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("query", key).Msg("geocode cache read failed")
		case ok:
			s.logger.Debug().Str("query", key).Msg("geocode cache hit")
			return c, nil
		}
	}

	c, err := s.provider.Geocode(ctx, query, s.cityBias)
	if err != nil {
		return geo.Coordinate{}, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, c); err != nil {
			s.logger.Warn().Err(err).Str("query", key).Msg("geocode cache write failed")
		}
	}

	return c, nil
}

// CacheKey normalizes a query and city bias into a cache key.
func CacheKey(query, cityBias string) string {
	q := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return q + ", " + strings.ToLower(strings.TrimSpace(cityBias))
}
