package resilience

import (
	"slices"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health summarizes a provider for the ops endpoints.
type Health string

const (
	HealthOK       Health = "OK"
	HealthDegraded Health = "DEGRADED"
	HealthFail     Health = "FAIL"
)

// ProviderHealth is a point-in-time view of one upstream: GraphHopper,
// Overpass or Open-Meteo.
type ProviderHealth struct {
	Name          string           `json:"name"`
	CircuitState  gobreaker.State  `json:"-"`
	Counts        gobreaker.Counts `json:"counts"`
	LastSuccessAt *time.Time       `json:"lastSuccessAt,omitempty"`
	LastFailureAt *time.Time       `json:"lastFailureAt,omitempty"`
	LastError     string           `json:"lastError,omitempty"`
}

// Status maps the breaker state: closed is OK, half-open is DEGRADED and
// open is FAIL.
func (h *ProviderHealth) Status() Health {
	switch h.CircuitState {
	case gobreaker.StateOpen:
		return HealthFail
	case gobreaker.StateHalfOpen:
		return HealthDegraded
	default:
		return HealthOK
	}
}

// Registry collects the clients of every upstream so ops endpoints can
// report on them. Clients built with ClientConfig.Registry register
// themselves and report each outcome.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	client      *Client
	lastSuccess time.Time
	lastFailure time.Time
	lastError   string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry), now: time.Now}
}

// Register adds client under name. A later registration under the same
// name replaces the earlier one and its history.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	r.entries[name] = &entry{client: client}
	r.mu.Unlock()
}

// RecordSuccess notes a successful call. Unknown names are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.update(name, func(e *entry, now time.Time) { e.lastSuccess = now })
}

// RecordFailure notes a failed call and keeps its message.
func (r *Registry) RecordFailure(name string, err error) {
	r.update(name, func(e *entry, now time.Time) {
		e.lastFailure = now
		if err != nil {
			e.lastError = err.Error()
		}
	})
}

func (r *Registry) update(name string, fn func(*entry, time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		fn(e, r.now())
	}
}

// GetHealth returns the health of one provider, or nil if it never
// registered.
func (r *Registry) GetHealth(name string) *ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	return e.snapshot(name)
}

// GetAllHealth returns every provider ordered by name.
func (r *Registry) GetAllHealth() []*ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ProviderHealth, 0, len(r.entries))
	for _, name := range r.names() {
		out = append(out, r.entries[name].snapshot(name))
	}
	return out
}

// Names returns the registered provider names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (e *entry) snapshot(name string) *ProviderHealth {
	h := &ProviderHealth{
		Name:         name,
		CircuitState: e.client.CircuitBreakerState(),
		Counts:       e.client.CircuitBreakerCounts(),
		LastError:    e.lastError,
	}
	if !e.lastSuccess.IsZero() {
		t := e.lastSuccess
		h.LastSuccessAt = &t
	}
	if !e.lastFailure.IsZero() {
		t := e.lastFailure
		h.LastFailureAt = &t
	}
	return h
}
