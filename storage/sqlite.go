package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"crowdvolt_tracker/models"
)

// SQLiteStore is the local store. It always holds the operational tables
// (runs, logs, commands) and doubles as the default EventStore.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		slug TEXT PRIMARY KEY,
		name TEXT,
		venue TEXT,
		event_date DATETIME,
		region TEXT,
		url TEXT,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS price_snapshots (
		id INTEGER PRIMARY KEY,
		event_slug TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		ticket_type TEXT NOT NULL,
		lowest_ask REAL,
		highest_bid REAL
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		site_id TEXT,
		kind TEXT,
		cycle_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		targets_total INTEGER,
		targets_ok INTEGER,
		targets_skipped INTEGER,
		fetch_errors INTEGER,
		rows_written INTEGER,
		batches_failed INTEGER
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		site_id TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_events_date ON events(event_date);
	CREATE INDEX IF NOT EXISTS idx_snapshots_event ON price_snapshots(event_slug, timestamp);
	CREATE INDEX IF NOT EXISTS idx_snapshots_cycle ON price_snapshots(cycle_id);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Events and snapshots
// =============================================================================

func (s *SQLiteStore) UpsertEvents(ctx context.Context, events []models.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (slug, name, venue, event_date, region, url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			venue = excluded.venue,
			event_date = COALESCE(excluded.event_date, events.event_date),
			region = COALESCE(NULLIF(excluded.region, ''), events.region),
			url = excluded.url,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.Slug, e.Name, e.Venue, utcPtr(e.EventDate), e.Region, e.URL, e.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("upsert event %s: %w", e.Slug, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) ActiveEvents(ctx context.Context, cutoff time.Time) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slug, name, venue, event_date, region, url, updated_at
		FROM events WHERE event_date IS NULL OR event_date >= ?
		ORDER BY slug`, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) GetEvent(ctx context.Context, slug string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT slug, name, venue, event_date, region, url, updated_at
		FROM events WHERE slug = ?`, slug)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	var name, venue, region, url sql.NullString
	var eventDate, updatedAt sql.NullTime
	if err := row.Scan(&e.Slug, &name, &venue, &eventDate, &region, &url, &updatedAt); err != nil {
		return nil, err
	}
	e.Name = name.String
	e.Venue = venue.String
	e.Region = region.String
	e.URL = url.String
	if eventDate.Valid {
		t := eventDate.Time
		e.EventDate = &t
	}
	if updatedAt.Valid {
		e.UpdatedAt = updatedAt.Time
	}
	return &e, nil
}

func (s *SQLiteStore) InsertSnapshots(ctx context.Context, rows []models.SnapshotRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_snapshots (event_slug, cycle_id, timestamp, ticket_type, lowest_ask, highest_bid)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.EventSlug, r.CycleID.String(), r.Timestamp.UTC(), r.TicketType, r.LowestAsk, r.HighestBid); err != nil {
			return fmt.Errorf("insert snapshot %s/%s: %w", r.EventSlug, r.TicketType, err)
		}
	}

	return tx.Commit()
}

// SnapshotsForEvent returns an event's stored rows, oldest first.
func (s *SQLiteStore) SnapshotsForEvent(ctx context.Context, slug string) ([]models.SnapshotRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_slug, cycle_id, timestamp, ticket_type, lowest_ask, highest_bid
		FROM price_snapshots WHERE event_slug = ? ORDER BY timestamp, id`, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SnapshotRow
	for rows.Next() {
		var r models.SnapshotRow
		var ask, bid sql.NullFloat64
		if err := rows.Scan(&r.EventSlug, &r.CycleID, &r.Timestamp, &r.TicketType, &ask, &bid); err != nil {
			return nil, err
		}
		if ask.Valid {
			v := ask.Float64
			r.LowestAsk = &v
		}
		if bid.Valid {
			v := bid.Float64
			r.HighestBid = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// =============================================================================
// Runs, logs, commands
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.CycleRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO scrape_runs (site_id, kind, cycle_id, started_at, status, targets_total,
			targets_ok, targets_skipped, fetch_errors, rows_written, batches_failed)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0, 0, 0, 0)`,
		run.SiteID, run.Kind, run.CycleID, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.CycleRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, cycle_id = ?, targets_total = ?,
			targets_ok = ?, targets_skipped = ?, fetch_errors = ?, rows_written = ?, batches_failed = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.CycleID, run.TargetsTotal, run.TargetsOK,
		run.TargetsSkip, run.FetchErrors, run.RowsWritten, run.BatchesFailed, run.ID)
	return err
}

// RecentRuns returns the latest runs, newest first.
func (s *SQLiteStore) RecentRuns(limit int) ([]models.CycleRun, error) {
	rows, err := s.db.Query(`
		SELECT id, site_id, kind, cycle_id, started_at, finished_at, status, targets_total,
			targets_ok, targets_skipped, fetch_errors, rows_written, batches_failed
		FROM scrape_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.CycleRun
	for rows.Next() {
		var run models.CycleRun
		var cycleID sql.NullString
		if err := rows.Scan(&run.ID, &run.SiteID, &run.Kind, &cycleID, &run.StartedAt, &run.FinishedAt,
			&run.Status, &run.TargetsTotal, &run.TargetsOK, &run.TargetsSkip, &run.FetchErrors,
			&run.RowsWritten, &run.BatchesFailed); err != nil {
			return nil, err
		}
		run.CycleID = cycleID.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, siteID string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message, site_id)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, siteID)
	return err
}

func (s *SQLiteStore) LogsForRun(runID int64) ([]models.CycleLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, site_id
		FROM scrape_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.CycleLog
	for rows.Next() {
		var l models.CycleLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message, &l.SiteID); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// AddCommand queues a command for the daemon's command poller.
func (s *SQLiteStore) AddCommand(cmd models.CommandType, params *models.CommandParams) error {
	var raw any
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = string(data)
	}
	_, err := s.db.Exec(`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, raw, time.Now())
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}
