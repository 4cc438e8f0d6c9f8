package featureflags

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Store    Store
	Logger   zerolog.Logger
	CacheTTL time.Duration
}

// Service serves flags from a snapshot of the store that is reloaded at
// most once per CacheTTL. When the store fails, the last snapshot (or the
// defaults) keeps serving.
type Service struct {
	store  Store
	logger zerolog.Logger
	ttl    time.Duration
	now    func() time.Time
	loads  singleflight.Group

	mu       sync.RWMutex
	snap     map[string]Flag
	loadedAt time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		store:  cfg.Store,
		logger: cfg.Logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Flags returns every well-known flag plus any stored extras, sorted by key.
func (s *Service) Flags(ctx context.Context) []Flag {
	stored := s.snapshot(ctx)

	byKey := make(map[string]Flag, len(known)+len(stored))
	for _, f := range Defaults() {
		byKey[f.Key] = f
	}
	for k, f := range stored {
		byKey[k] = f
	}

	out := make([]Flag, 0, len(byKey))
	for _, f := range byKey {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Update validates every value, then stores them together. Nothing is
// stored when any value is rejected.
func (s *Service) Update(ctx context.Context, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flags := make([]Flag, 0, len(keys))
	for _, k := range keys {
		v, err := Validate(k, values[k])
		if err != nil {
			return err
		}
		flags = append(flags, Flag{Key: k, Value: v})
	}

	if err := s.store.Save(ctx, flags); err != nil {
		return err
	}
	s.Invalidate()

	s.logger.Info().Strs("keys", keys).Msg("feature flags updated")
	return nil
}

// Invalidate drops the snapshot so the next read goes to the store.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

// CoverageClamp returns whether coverage percentages are clamped and the
// band. A band with min >= max disables the clamp.
func (s *Service) CoverageClamp(ctx context.Context) (enabled bool, lo, hi float64) {
	snap := s.snapshot(ctx)
	enabled = boolOr(snap[FlagCoverageClampEnabled].Value, DefaultCoverageClampEnabled)
	lo = numberOr(snap[FlagCoverageClampMin].Value, DefaultCoverageClampMin)
	hi = numberOr(snap[FlagCoverageClampMax].Value, DefaultCoverageClampMax)
	if enabled && lo >= hi {
		s.logger.Warn().Float64("min", lo).Float64("max", hi).Msg("coverage clamp band is empty, clamp disabled")
		return false, lo, hi
	}
	return enabled, lo, hi
}

// AlarmStaleThreshold returns how long a shared trip may stay silent
// before the danger alarm can fire.
func (s *Service) AlarmStaleThreshold(ctx context.Context) time.Duration {
	seconds := numberOr(s.snapshot(ctx)[FlagAlarmStaleThresholdSeconds].Value, DefaultAlarmStaleSeconds)
	if seconds < 1 {
		seconds = DefaultAlarmStaleSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}

// snapshot returns the stored overrides. Callers must not modify the map.
func (s *Service) snapshot(ctx context.Context) map[string]Flag {
	s.mu.RLock()
	snap, fresh := s.snap, !s.loadedAt.IsZero() && s.now().Sub(s.loadedAt) < s.ttl
	s.mu.RUnlock()
	if fresh {
		return snap
	}

	v, _, _ := s.loads.Do("load", func() (any, error) {
		loaded, err := s.store.Load(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to load feature flags, serving previous values")
			return snap, nil
		}
		s.mu.Lock()
		s.snap, s.loadedAt = loaded, s.now()
		s.mu.Unlock()
		return loaded, nil
	})
	m, _ := v.(map[string]Flag)
	return m
}
