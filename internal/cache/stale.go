// Package cache provides an in-process read-through cache that keeps
// serving expired entries while their source is failing.
package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config sets the two ages that matter to a Stale cache. An entry younger
// than TTL is served without asking the source; one younger than StaleFor
// is served only when the source fails.
type Config struct {
	TTL      time.Duration
	StaleFor time.Duration
}

// Result is what Get served.
type Result[V any] struct {
	Value V
	// Stale is set when Value is past TTL and LoadErr is the failure it
	// is masking.
	Stale     bool
	LoadErr   error
	FetchedAt time.Time
}

// Stale is a read-through cache keyed by K. Concurrent misses for one key
// share a single load.
type Stale[K comparable, V any] struct {
	ttl      time.Duration
	staleFor time.Duration
	now      func() time.Time
	loads    singleflight.Group

	mu      sync.RWMutex
	entries map[K]entry[V]
}

type entry[V any] struct {
	value V
	at    time.Time
}

// New creates a cache. StaleFor below TTL is raised to TTL.
func New[K comparable, V any](cfg Config) *Stale[K, V] {
	if cfg.StaleFor < cfg.TTL {
		cfg.StaleFor = cfg.TTL
	}
	return &Stale[K, V]{
		ttl:      cfg.TTL,
		staleFor: cfg.StaleFor,
		now:      time.Now,
		entries:  make(map[K]entry[V]),
	}
}

// Get returns the fresh entry for key or calls load. When load fails and a
// stale entry exists it is returned with the error in Result.LoadErr;
// otherwise the load error is returned.
func (c *Stale[K, V]) Get(key K, load func() (V, error)) (Result[V], error) {
	c.mu.RLock()
	prev, hit := c.entries[key]
	c.mu.RUnlock()

	now := c.now()
	if hit && now.Sub(prev.at) < c.ttl {
		return Result[V]{Value: prev.value, FetchedAt: prev.at}, nil
	}

	v, err, _ := c.loads.Do(fmt.Sprint(key), func() (any, error) {
		value, err := load()
		if err != nil {
			return nil, err
		}
		return c.put(key, value), nil
	})
	if err == nil {
		e := v.(entry[V])
		return Result[V]{Value: e.value, FetchedAt: e.at}, nil
	}

	if hit && now.Sub(prev.at) < c.staleFor {
		return Result[V]{Value: prev.value, Stale: true, LoadErr: err, FetchedAt: prev.at}, nil
	}
	var zero Result[V]
	return zero, err
}

// put stores value and drops entries too old to be served even as stale.
func (c *Stale[K, V]) put(key K, value V) entry[V] {
	e := entry[V]{value: value, at: c.now()}

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, old := range c.entries {
		if e.at.Sub(old.at) >= c.staleFor {
			delete(c.entries, k)
		}
	}
	c.entries[key] = e
	return e
}

// Invalidate forgets every entry.
func (c *Stale[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Stats counts entries by age.
type Stats struct {
	Entries int
	Fresh   int
	Stale   int
}

func (c *Stale[K, V]) Stats() Stats {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		switch age := now.Sub(e.at); {
		case age < c.ttl:
			st.Fresh++
		case age < c.staleFor:
			st.Stale++
		}
	}
	return st
}
