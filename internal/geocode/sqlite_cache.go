package geocode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/mradl/mradl/internal/geo"
)

// SQLiteCache is a persistent geocode cache in a local SQLite file.
// Entries older than the TTL are treated as misses.
type SQLiteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLiteCache opens (or creates) the cache database at path and ensures the schema.
func OpenSQLiteCache(path string, ttl time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open geocode cache: %w", err)
	}
	// modernc sqlite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("geocode cache pragma: %w", err)
	}

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS geocode_cache (
		query TEXT PRIMARY KEY,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		resolved_at INTEGER NOT NULL
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("geocode cache schema: %w", err)
	}

	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}

	return &SQLiteCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns the cached coordinate for key.
func (c *SQLiteCache) Get(ctx context.Context, key string) (geo.Coordinate, bool, error) {
	var (
		coord      geo.Coordinate
		resolvedAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT lat, lng, resolved_at FROM geocode_cache WHERE query = ?`, key,
	).Scan(&coord.Lat, &coord.Lng, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return geo.Coordinate{}, false, nil
	}
	if err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("get geocode cache: %w", err)
	}

	if c.now().Sub(time.Unix(resolvedAt, 0)) > c.ttl {
		return geo.Coordinate{}, false, nil
	}
	return coord, true, nil
}

// Put stores the coordinate for key, replacing any previous entry.
func (c *SQLiteCache) Put(ctx context.Context, key string, coord geo.Coordinate) error {
	_, err := c.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO geocode_cache (query, lat, lng, resolved_at)
	VALUES (?, ?, ?, ?);`,
		key, coord.Lat, coord.Lng, c.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("put geocode cache query=%q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

var _ Cache = (*SQLiteCache)(nil)
