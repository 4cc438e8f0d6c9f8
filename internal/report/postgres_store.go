package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// NotifyChannel is the Postgres channel that carries the changed
// collection name after every insert.
const NotifyChannel = "reports_changed"

// PostgresStore is a PostgreSQL implementation of Store and Subscriber.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore creates a new PostgreSQL report store.
func NewPostgresStore(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Insert stores a report and notifies listeners in the same transaction.
func (s *PostgresStore) Insert(ctx context.Context, collection Collection, lat, lng float64, reporter string) (Report, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	query := `
		INSERT INTO reports (collection, lat, lng, reporter)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, reported_at
	`

	r := Report{
		Collection: collection,
		Lat:        lat,
		Lng:        lng,
		Reporter:   reporter,
	}
	if err := tx.QueryRow(ctx, query, collection, lat, lng, reporter).Scan(&r.ID, &r.ReportedAt); err != nil {
		return Report{}, fmt.Errorf("insert report: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(collection)); err != nil {
		return Report{}, fmt.Errorf("notify: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Report{}, fmt.Errorf("commit: %w", err)
	}

	return r, nil
}

// List returns all reports of a collection, oldest first.
func (s *PostgresStore) List(ctx context.Context, collection Collection) ([]Report, error) {
	query := `
		SELECT id::text, collection, lat, lng, reported_at, reporter
		FROM reports
		WHERE collection = $1
		ORDER BY reported_at, id
	`

	rows, err := s.pool.Query(ctx, query, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.Collection, &r.Lat, &r.Lng, &r.ReportedAt, &r.Reporter); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return reports, nil
}

// Subscribe listens on NotifyChannel with a dedicated connection. The
// current contents are delivered before Subscribe returns, and again after
// every notification for collection. A dropped connection is re-established
// with exponential backoff and followed by a full reload.
func (s *PostgresStore) Subscribe(ctx context.Context, collection Collection, onChange func([]Report)) (func(), error) {
	conn, err := s.listen(ctx)
	if err != nil {
		return nil, err
	}

	reports, err := s.List(ctx, collection)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("initial load: %w", err)
	}
	onChange(reports)

	subCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(subCtx, conn, collection, onChange)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

func (s *PostgresStore) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}
	return conn, nil
}

func (s *PostgresStore) run(ctx context.Context, conn *pgxpool.Conn, collection Collection, onChange func([]Report)) {
	defer func() {
		if conn != nil {
			s.release(conn)
		}
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			if n.Payload != string(collection) {
				continue
			}
			s.reload(ctx, collection, onChange)
			continue
		}

		s.logger.Warn().Err(err).
			Str("collection", string(collection)).
			Msg("report notification listener lost, reconnecting")

		s.release(conn)
		conn = nil

		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = 0
		b := backoff.WithContext(exp, ctx)
		err = backoff.Retry(func() error {
			c, err := s.listen(ctx)
			if err != nil {
				return err
			}
			conn = c
			return nil
		}, b)
		if err != nil {
			return
		}

		// Notifications sent while disconnected are lost.
		s.reload(ctx, collection, onChange)
	}
}

func (s *PostgresStore) reload(ctx context.Context, collection Collection, onChange func([]Report)) {
	reports, err := s.List(ctx, collection)
	if err != nil {
		s.logger.Error().Err(err).
			Str("collection", string(collection)).
			Msg("failed to reload reports after notification")
		return
	}
	onChange(reports)
}

// release unlistens before returning the connection to the pool.
func (s *PostgresStore) release(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		// The connection is unusable; close it instead of pooling it.
		_ = conn.Conn().Close(ctx)
	}
	conn.Release()
}

var (
	_ Store      = (*PostgresStore)(nil)
	_ Subscriber = (*PostgresStore)(nil)
)
