package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdvolt_tracker/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres backend requires DATABASE_URL")
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			slug TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			venue TEXT NOT NULL DEFAULT '',
			event_date TIMESTAMPTZ,
			region TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS price_snapshots (
			id BIGSERIAL PRIMARY KEY,
			event_slug TEXT NOT NULL,
			cycle_id UUID NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			ticket_type TEXT NOT NULL,
			lowest_ask DOUBLE PRECISION,
			highest_bid DOUBLE PRECISION
		);

		CREATE INDEX IF NOT EXISTS idx_events_date ON events(event_date);
		CREATE INDEX IF NOT EXISTS idx_snapshots_event ON price_snapshots(event_slug, timestamp);
	`)
	return err
}

const upsertEventSQL = `
	INSERT INTO events (slug, name, venue, event_date, region, url, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (slug) DO UPDATE SET
		name = EXCLUDED.name,
		venue = EXCLUDED.venue,
		event_date = COALESCE(EXCLUDED.event_date, events.event_date),
		region = COALESCE(NULLIF(EXCLUDED.region, ''), events.region),
		url = EXCLUDED.url,
		updated_at = EXCLUDED.updated_at`

// UpsertEvents sends the whole slice as one pipelined batch in a single
// transaction.
func (s *PostgresStore) UpsertEvents(ctx context.Context, events []models.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(upsertEventSQL, e.Slug, e.Name, e.Venue, e.EventDate, e.Region, e.URL, e.UpdatedAt)
	}

	results := tx.SendBatch(ctx, batch)
	for _, e := range events {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upsert event %s: %w", e.Slug, err)
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ActiveEvents(ctx context.Context, cutoff time.Time) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slug, name, venue, event_date, region, url, updated_at
		FROM events WHERE event_date IS NULL OR event_date >= $1
		ORDER BY slug`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.Slug, &e.Name, &e.Venue, &e.EventDate, &e.Region, &e.URL, &e.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

var snapshotColumns = []string{"event_slug", "cycle_id", "timestamp", "ticket_type", "lowest_ask", "highest_bid"}

// InsertSnapshots writes rows with the COPY protocol.
func (s *PostgresStore) InsertSnapshots(ctx context.Context, rows []models.SnapshotRow) error {
	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"price_snapshots"},
		snapshotColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.EventSlug, r.CycleID, r.Timestamp, r.TicketType, r.LowestAsk, r.HighestBid}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy snapshots: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy snapshots: wrote %d of %d rows", n, len(rows))
	}
	return nil
}
