package geocode_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/geocode"
)

type mockProvider struct {
	mu     sync.Mutex
	calls  int
	result geo.Coordinate
	err    error
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Geocode(_ context.Context, _, _ string) (geo.Coordinate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result, m.err
}

func openCache(t *testing.T) *geocode.SQLiteCache {
	t.Helper()
	cache, err := geocode.OpenSQLiteCache(filepath.Join(t.TempDir(), "geocode.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestService_Geocode_CachesHits(t *testing.T) {
	provider := &mockProvider{result: geo.Coordinate{Lat: 48.15, Lng: 11.59}}
	svc := geocode.NewService(geocode.ServiceConfig{
		Provider: provider,
		Cache:    openCache(t),
		Logger:   zerolog.Nop(),
	})

	c1, err := svc.Geocode(context.Background(), "Englischer Garten")
	require.NoError(t, err)
	c2, err := svc.Geocode(context.Background(), "  englischer   GARTEN ")
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, "Munich", svc.CityBias())
}

func TestService_Geocode_NotFoundIsNotCached(t *testing.T) {
	provider := &mockProvider{err: geocode.ErrNotFound}
	svc := geocode.NewService(geocode.ServiceConfig{
		Provider: provider,
		Cache:    openCache(t),
		Logger:   zerolog.Nop(),
	})

	_, err := svc.Geocode(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, geocode.ErrNotFound)
	_, err = svc.Geocode(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, geocode.ErrNotFound)
	assert.Equal(t, 2, provider.calls)
}

func TestService_Geocode_EmptyQuery(t *testing.T) {
	svc := geocode.NewService(geocode.ServiceConfig{Provider: &mockProvider{}, Logger: zerolog.Nop()})

	_, err := svc.Geocode(context.Background(), "   ")
	assert.ErrorIs(t, err, geocode.ErrEmptyQuery)
}

func TestSQLiteCache_TTL(t *testing.T) {
	cache, err := geocode.OpenSQLiteCache(filepath.Join(t.TempDir(), "ttl.db"), time.Millisecond)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, "marienplatz, munich", geo.Coordinate{Lat: 48.1374, Lng: 11.5755}))

	time.Sleep(1100 * time.Millisecond)

	_, ok, err := cache.Get(ctx, "marienplatz, munich")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "odeonsplatz 1, munich", geocode.CacheKey(" Odeonsplatz   1 ", "Munich"))
}
