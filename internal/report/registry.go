package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/geo"
)

// Registry errors.
var (
	// ErrRegistryStarted is returned when Start is called twice.
	ErrRegistryStarted = errors.New("danger zone registry already started")
	// ErrRegistryClosed is returned when Close ran while Start was subscribing.
	ErrRegistryClosed = errors.New("danger zone registry closed during start")
)

// Registry mirrors the theft report collection in memory. Every change
// notification replaces the whole set.
type Registry struct {
	sub    Subscriber
	logger zerolog.Logger

	mu          sync.RWMutex
	zones       map[string]Report
	unsubscribe func()
	// starting is set while Start subscribes; closing records a Close that
	// arrived meanwhile.
	starting bool
	closing  bool
}

// NewRegistry creates a registry fed by sub.
func NewRegistry(sub Subscriber, logger zerolog.Logger) *Registry {
	return &Registry{
		sub:    sub,
		logger: logger,
		zones:  make(map[string]Report),
	}
}

// Start subscribes to theft reports. The registry holds the current
// contents by the time Start returns.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.starting || r.unsubscribe != nil {
		r.mu.Unlock()
		return ErrRegistryStarted
	}
	r.starting = true
	r.closing = false
	r.mu.Unlock()

	unsubscribe, err := r.sub.Subscribe(ctx, CollectionTheft, r.replace)

	r.mu.Lock()
	r.starting = false
	closing := r.closing
	if err == nil && !closing {
		r.unsubscribe = unsubscribe
	}
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", CollectionTheft, err)
	}
	if closing {
		unsubscribe()
		return ErrRegistryClosed
	}

	r.logger.Info().Int("zones", r.Len()).Msg("danger zone registry started")
	return nil
}

func (r *Registry) replace(reports []Report) {
	zones := make(map[string]Report, len(reports))
	for _, rep := range reports {
		zones[rep.ID] = rep
	}

	r.mu.Lock()
	r.zones = zones
	r.mu.Unlock()

	r.logger.Debug().Int("zones", len(zones)).Msg("danger zones updated")
}

// Snapshot returns the current zones keyed by id. The returned map is a copy.
func (r *Registry) Snapshot() map[string]Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Report, len(r.zones))
	for id, z := range r.zones {
		out[id] = z
	}
	return out
}

// Zones returns the current zones ordered by report time.
func (r *Registry) Zones() []Report {
	r.mu.RLock()
	out := make([]Report, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, z)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ReportedAt.Equal(out[j].ReportedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReportedAt.Before(out[j].ReportedAt)
	})
	return out
}

// Len returns the number of known zones.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.zones)
}

// Nearest returns the zone closest to c and its distance in meters.
func (r *Registry) Nearest(c geo.Coordinate) (Report, float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best  Report
		dist  = math.Inf(1)
		found bool
	)
	for _, z := range r.zones {
		d := geo.GreatCircleMeters(c, z.Coordinate())
		if d < dist || (d == dist && z.ID < best.ID) {
			best, dist, found = z, d, true
		}
	}
	return best, dist, found
}

// Close cancels the subscription. The last snapshot stays readable.
func (r *Registry) Close() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.closing = r.starting
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
