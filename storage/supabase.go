package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/models"
)

// SupabaseStore writes through the PostgREST API. Tables match the Postgres
// backend's schema.
type SupabaseStore struct {
	url        string
	serviceKey string
	client     *http.Client
}

// NewSupabaseStore uses client when given, otherwise a 30s default client.
func NewSupabaseStore(cfg *config.SupabaseConfig, client *http.Client) *SupabaseStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SupabaseStore{
		url:        cfg.URL,
		serviceKey: cfg.ServiceKey,
		client:     client,
	}
}

func (s *SupabaseStore) Close() error {
	return nil
}

type supabaseEvent struct {
	Slug      string     `json:"slug"`
	Name      string     `json:"name"`
	Venue     string     `json:"venue"`
	EventDate *time.Time `json:"event_date,omitempty"`
	Region    string     `json:"region"`
	URL       string     `json:"url"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// UpsertEvents posts the batch with merge-duplicates on slug. Events with and
// without a date are sent as separate requests: PostgREST fills keys missing
// from a row with NULL when the batch mixes shapes, which would clear stored
// dates.
func (s *SupabaseStore) UpsertEvents(ctx context.Context, events []models.Event) error {
	var dated, undated []supabaseEvent
	for _, e := range events {
		row := supabaseEvent{
			Slug:      e.Slug,
			Name:      e.Name,
			Venue:     e.Venue,
			EventDate: e.EventDate,
			Region:    e.Region,
			URL:       e.URL,
			UpdatedAt: e.UpdatedAt,
		}
		if e.EventDate != nil {
			dated = append(dated, row)
		} else {
			undated = append(undated, row)
		}
	}

	for _, group := range [][]supabaseEvent{dated, undated} {
		if len(group) == 0 {
			continue
		}
		if err := s.post(ctx, "events", url.Values{"on_conflict": {"slug"}}, group, "resolution=merge-duplicates"); err != nil {
			return err
		}
	}
	return nil
}

func (s *SupabaseStore) ActiveEvents(ctx context.Context, cutoff time.Time) ([]models.Event, error) {
	q := url.Values{}
	q.Set("select", "slug,name,venue,event_date,region,url,updated_at")
	q.Set("or", fmt.Sprintf("(event_date.gte.%s,event_date.is.null)", cutoff.UTC().Format(time.RFC3339)))
	q.Set("order", "slug")

	req, err := http.NewRequestWithContext(ctx, "GET", s.url+"/rest/v1/events?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("supabase error %d: %s", resp.StatusCode, string(body))
	}

	var rows []supabaseEvent
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	events := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, models.Event{
			Slug:      r.Slug,
			Name:      r.Name,
			Venue:     r.Venue,
			EventDate: r.EventDate,
			Region:    r.Region,
			URL:       r.URL,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return events, nil
}

func (s *SupabaseStore) InsertSnapshots(ctx context.Context, rows []models.SnapshotRow) error {
	return s.post(ctx, "price_snapshots", nil, rows, "return=minimal")
}

func (s *SupabaseStore) post(ctx context.Context, table string, query url.Values, payload any, prefer string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := s.url + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", prefer)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("supabase error %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

func (s *SupabaseStore) setHeaders(req *http.Request) {
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
}
