package featureflags

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists flag overrides. Save applies every flag or none.
type Store interface {
	Load(ctx context.Context) (map[string]Flag, error)
	Save(ctx context.Context, flags []Flag) error
}

// MemoryStore keeps overrides in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]Flag
	now   func() time.Time
}

// NewMemoryStore creates a store holding the given overrides.
func NewMemoryStore(initial ...Flag) *MemoryStore {
	s := &MemoryStore{flags: make(map[string]Flag, len(initial)), now: time.Now}
	for _, f := range initial {
		s.flags[f.Key] = f
	}
	return s
}

func (s *MemoryStore) Load(context.Context) (map[string]Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Flag, len(s.flags))
	for k, f := range s.flags {
		out[k] = f
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, flags []Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, f := range flags {
		f.UpdatedAt = now
		s.flags[f.Key] = f
	}
	return nil
}

const upsertFlag = `
	INSERT INTO feature_flags (key, value, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE
	SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`

// PostgresStore keeps overrides in the feature_flags table as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a flag store on pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Load(ctx context.Context) (map[string]Flag, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value, updated_at FROM feature_flags`)
	if err != nil {
		return nil, fmt.Errorf("query flags: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Flag)
	for rows.Next() {
		var (
			f   Flag
			raw []byte
		)
		if err := rows.Scan(&f.Key, &raw, &f.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &f.Value); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Key, err)
		}
		out[f.Key] = f
	}
	return out, rows.Err()
}

// Save upserts flags as one batch inside a transaction.
func (s *PostgresStore) Save(ctx context.Context, flags []Flag) error {
	batch := &pgx.Batch{}
	for _, f := range flags {
		// Raw JSON bytes; pgx would send a Go string as-is.
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.Key, err)
		}
		batch.Queue(upsertFlag, f.Key, raw)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
