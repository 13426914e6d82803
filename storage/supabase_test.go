package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/models"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	prefer string
	auth   string
	body   []byte
}

func newSupabaseTestServer(t *testing.T, status int, response string) (*SupabaseStore, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			prefer: r.Header.Get("Prefer"),
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	store := NewSupabaseStore(&config.SupabaseConfig{URL: srv.URL, ServiceKey: "service-key"}, srv.Client())
	return store, &reqs
}

func TestSupabaseUpsertEvents_RequestShape(t *testing.T) {
	store, reqs := newSupabaseTestServer(t, http.StatusCreated, "")

	date := time.Date(2026, 2, 20, 22, 0, 0, 0, time.UTC)
	events := []models.Event{
		{Slug: "a", Name: "A", EventDate: &date},
		{Slug: "b", Name: "B"},
	}
	if err := store.UpsertEvents(context.Background(), events); err != nil {
		t.Fatalf("UpsertEvents: %v", err)
	}

	if len(*reqs) != 2 {
		t.Fatalf("expected dated and undated requests, got %d", len(*reqs))
	}
	for _, r := range *reqs {
		if r.method != "POST" || r.path != "/rest/v1/events" {
			t.Fatalf("unexpected request %s %s", r.method, r.path)
		}
		if r.query != "on_conflict=slug" {
			t.Fatalf("expected on_conflict=slug, got %q", r.query)
		}
		if r.prefer != "resolution=merge-duplicates" {
			t.Fatalf("expected merge-duplicates, got %q", r.prefer)
		}
		if r.auth != "Bearer service-key" {
			t.Fatalf("unexpected auth header %q", r.auth)
		}
	}

	var undated []map[string]any
	if err := json.Unmarshal((*reqs)[1].body, &undated); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := undated[0]["event_date"]; ok {
		t.Fatal("undated event must not send event_date")
	}
}

func TestSupabaseUpsertEvents_UniformKeysPerRequest(t *testing.T) {
	store, reqs := newSupabaseTestServer(t, http.StatusCreated, "")

	events := []models.Event{
		{Slug: "a", Name: "A", Region: "New York"},
		{Slug: "b", Name: "B"},
	}
	if err := store.UpsertEvents(context.Background(), events); err != nil {
		t.Fatalf("UpsertEvents: %v", err)
	}
	if len(*reqs) != 1 {
		t.Fatalf("expected one undated request, got %d", len(*reqs))
	}

	var rows []map[string]any
	if err := json.Unmarshal((*reqs)[0].body, &rows); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(rows) != 2 || len(rows[0]) != len(rows[1]) {
		t.Fatalf("rows in one request must share keys, got %v", rows)
	}
	for key := range rows[0] {
		if _, ok := rows[1][key]; !ok {
			t.Fatalf("second row missing key %q", key)
		}
	}
	if rows[1]["region"] != "" {
		t.Fatalf("expected empty region to be sent, got %v", rows[1]["region"])
	}
}

func TestSupabaseInsertSnapshots_ErrorStatus(t *testing.T) {
	store, _ := newSupabaseTestServer(t, http.StatusBadRequest, `{"message":"bad"}`)

	err := store.InsertSnapshots(context.Background(), []models.SnapshotRow{{EventSlug: "a", TicketType: "GA"}})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected 400 error, got %v", err)
	}
}

func TestSupabaseActiveEvents_Filter(t *testing.T) {
	store, reqs := newSupabaseTestServer(t, http.StatusOK,
		`[{"slug":"a","name":"A","venue":"V","event_date":"2026-02-20T22:00:00Z","url":"u","updated_at":"2026-02-01T00:00:00Z"},{"slug":"b","name":"B","venue":"","url":"u2","updated_at":"2026-02-01T00:00:00Z"}]`)

	cutoff := time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC)
	events, err := store.ActiveEvents(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ActiveEvents: %v", err)
	}
	if len(events) != 2 || events[0].EventDate == nil || events[1].EventDate != nil {
		t.Fatalf("unexpected events %+v", events)
	}

	r := (*reqs)[0]
	if r.method != "GET" {
		t.Fatalf("expected GET, got %s", r.method)
	}
	if !strings.Contains(r.query, "or=%28event_date.gte.2026-02-19T00%3A00%3A00Z%2Cevent_date.is.null%29") {
		t.Fatalf("unexpected filter query %q", r.query)
	}
}
