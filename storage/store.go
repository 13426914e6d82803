package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/models"
)

// EventStore is the persistence sink for events and price snapshots. Callers
// pass at most one batch per call.
//
// UpsertEvents is keyed by slug. A nil EventDate never clears a stored date.
type EventStore interface {
	UpsertEvents(ctx context.Context, events []models.Event) error
	ActiveEvents(ctx context.Context, cutoff time.Time) ([]models.Event, error)
	InsertSnapshots(ctx context.Context, rows []models.SnapshotRow) error
	Close() error
}

// Open returns the EventStore selected by STORE_BACKEND. The sqlite backend
// shares the ops store instead of opening a second handle. api is used for
// REST backends and may be nil.
func Open(ctx context.Context, cfg *config.Config, ops *SQLiteStore, api *http.Client) (EventStore, error) {
	switch cfg.Store.Backend {
	case "", "sqlite":
		return ops, nil
	case "postgres":
		return NewPostgresStore(ctx, cfg.Store.DatabaseURL)
	case "supabase":
		if cfg.Supabase.URL == "" || cfg.Supabase.ServiceKey == "" {
			return nil, fmt.Errorf("supabase backend requires SUPABASE_URL and SUPABASE_SERVICE_KEY")
		}
		return NewSupabaseStore(&cfg.Supabase, api), nil
	case "dynamodb":
		return NewDynamoDBStore(ctx, &cfg.DynamoDB)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}
