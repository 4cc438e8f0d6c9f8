package environment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mradl/mradl/internal/geo"
)

// RedisTileCache stores tile features in Redis so the API and the worker
// share one cache.
type RedisTileCache struct {
	client *redis.Client
	prefix string
}

// NewRedisTileCache creates a Redis-backed tile cache.
func NewRedisTileCache(client *redis.Client) *RedisTileCache {
	return &RedisTileCache{client: client, prefix: "features"}
}

func (c *RedisTileCache) key(kind Kind, tile geo.BoundingBox) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, kind, tile.Key())
}

// Get returns the cached features for tile. An empty tile is a hit.
func (c *RedisTileCache) Get(ctx context.Context, kind Kind, tile geo.BoundingBox) ([]geo.Coordinate, bool, error) {
	raw, err := c.client.Get(ctx, c.key(kind, tile)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get tile %s: %w", tile.Key(), err)
	}

	var pairs [][]float64
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, false, fmt.Errorf("decode tile %s: %w", tile.Key(), err)
	}

	features := make([]geo.Coordinate, 0, len(pairs))
	for _, p := range pairs {
		if len(p) == 2 {
			features = append(features, geo.Coordinate{Lat: p[0], Lng: p[1]})
		}
	}
	return features, true, nil
}

// Put stores features for tile with ttl.
func (c *RedisTileCache) Put(ctx context.Context, kind Kind, tile geo.BoundingBox, features []geo.Coordinate, ttl time.Duration) error {
	pairs := make([][2]float64, len(features))
	for i, f := range features {
		pairs[i] = [2]float64{f.Lat, f.Lng}
	}

	raw, err := json.Marshal(pairs)
	if err != nil {
		return fmt.Errorf("encode tile %s: %w", tile.Key(), err)
	}

	if err := c.client.Set(ctx, c.key(kind, tile), raw, ttl).Err(); err != nil {
		return fmt.Errorf("put tile %s: %w", tile.Key(), err)
	}
	return nil
}

// MemoryTileCache is an in-process tile cache for single-instance runs and tests.
type MemoryTileCache struct {
	mu    sync.RWMutex
	tiles map[string]memoryTile
	now   func() time.Time
}

type memoryTile struct {
	features  []geo.Coordinate
	expiresAt time.Time
}

// NewMemoryTileCache creates an empty in-memory tile cache.
func NewMemoryTileCache() *MemoryTileCache {
	return &MemoryTileCache{tiles: make(map[string]memoryTile), now: time.Now}
}

// Get returns the cached features for tile.
func (c *MemoryTileCache) Get(_ context.Context, kind Kind, tile geo.BoundingBox) ([]geo.Coordinate, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tiles[string(kind)+":"+tile.Key()]
	if !ok || c.now().After(t.expiresAt) {
		return nil, false, nil
	}
	return t.features, true, nil
}

// Put stores features for tile with ttl.
func (c *MemoryTileCache) Put(_ context.Context, kind Kind, tile geo.BoundingBox, features []geo.Coordinate, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tiles[string(kind)+":"+tile.Key()] = memoryTile{
		features:  append([]geo.Coordinate(nil), features...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Len returns the number of stored tiles, expired ones included.
func (c *MemoryTileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tiles)
}

var (
	_ TileCache = (*RedisTileCache)(nil)
	_ TileCache = (*MemoryTileCache)(nil)
)
