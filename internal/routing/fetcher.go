package routing

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mradl/mradl/internal/geo"
)

// DirectSpeedMetersPerSecond is the cycling speed used to recompute the
// DIRECT candidate's duration. The upstream estimate for that profile is
// pedestrian speed.
const DirectSpeedMetersPerSecond = 5.0

// Fetcher issues the three profile requests for a plan.
type Fetcher struct {
	router Router
	logger zerolog.Logger
}

// NewFetcher creates a fetcher over router.
func NewFetcher(router Router, logger zerolog.Logger) *Fetcher {
	return &Fetcher{router: router, logger: logger}
}

// FetchCandidates requests DIRECT, PAVED and PAVED_ALT concurrently. A
// failing profile leaves its slot empty. ErrNoRoute is returned only when
// every slot is empty.
func (f *Fetcher) FetchCandidates(ctx context.Context, origin, destination geo.Coordinate) (CandidateSet, error) {
	results := make([][]Candidate, len(Profiles))

	var g errgroup.Group
	for i, profile := range Profiles {
		g.Go(func() error {
			candidates, err := f.router.Route(ctx, Request{
				Origin:      origin,
				Destination: destination,
				Profile:     profile,
			})
			if err != nil {
				f.logger.Warn().Err(err).
					Str("profile", string(profile)).
					Str("provider", f.router.Name()).
					Msg("route profile fetch failed, slot degraded")
				return nil
			}
			results[i] = candidates
			return nil
		})
	}
	_ = g.Wait()

	var set CandidateSet
	if c := firstValid(results[0]); c != nil {
		c.DurationMs = c.DistanceMeters / DirectSpeedMetersPerSecond * 1000
		set.Direct = c
	}
	set.Paved = firstValid(results[1])
	for _, c := range results[2] {
		if c.Valid() {
			set.PavedAlt = append(set.PavedAlt, c)
		}
	}

	if set.Empty() {
		return CandidateSet{}, ErrNoRoute
	}

	f.logger.Debug().
		Bool("direct", set.Direct != nil).
		Bool("paved", set.Paved != nil).
		Int("paved_alt", len(set.PavedAlt)).
		Msg("fetched route candidates")

	return set, nil
}

func firstValid(candidates []Candidate) *Candidate {
	for i := range candidates {
		if candidates[i].Valid() {
			c := candidates[i]
			return &c
		}
	}
	return nil
}
