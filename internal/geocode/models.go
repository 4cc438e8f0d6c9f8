// Package geocode resolves free-text destinations into coordinates.
package geocode

import (
	"context"
	"errors"

	"github.com/mradl/mradl/internal/geo"
)

// Sentinel errors for geocoding.
var (
	// ErrNotFound is returned when the geocoder has no match for the query.
	ErrNotFound = errors.New("location not found")
	// ErrProviderUnavailable indicates the geocoding provider could not be reached.
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
	// ErrEmptyQuery is returned for blank destination text.
	ErrEmptyQuery = errors.New("empty geocoding query")
)

// Provider looks up a single best match for free text biased toward a city.
type Provider interface {
	Geocode(ctx context.Context, query, cityBias string) (geo.Coordinate, error)
	Name() string
}

// Cache stores resolved queries keyed by normalized query text.
type Cache interface {
	Get(ctx context.Context, key string) (geo.Coordinate, bool, error)
	Put(ctx context.Context, key string, c geo.Coordinate) error
}

// Error describes a failed geocoding call.
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
