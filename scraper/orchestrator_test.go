package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/httputil"
	"crowdvolt_tracker/metrics"
	"crowdvolt_tracker/models"
	"crowdvolt_tracker/storage"
)

type memoryStore struct {
	mu        sync.Mutex
	events    map[string]models.Event
	snapshots []models.SnapshotRow
	failRows  bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{events: map[string]models.Event{}}
}

func (m *memoryStore) UpsertEvents(ctx context.Context, events []models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		if old, ok := m.events[e.Slug]; ok && e.EventDate == nil {
			e.EventDate = old.EventDate
		}
		m.events[e.Slug] = e
	}
	return nil
}

func (m *memoryStore) ActiveEvents(ctx context.Context, cutoff time.Time) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, slug := range []string{"a", "b", "c", "jamie", "solomun"} {
		if e, ok := m.events[slug]; ok && (e.EventDate == nil || !e.EventDate.Before(cutoff)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryStore) InsertSnapshots(ctx context.Context, rows []models.SnapshotRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRows {
		return errors.New("sink down")
	}
	m.snapshots = append(m.snapshots, rows...)
	return nil
}

func (m *memoryStore) Close() error { return nil }

type recordingArchiver struct {
	archives []*storage.CycleArchive
}

func (r *recordingArchiver) ArchiveCycle(ctx context.Context, a *storage.CycleArchive) error {
	r.archives = append(r.archives, a)
	return nil
}

func newTestOrchestrator(t *testing.T, store *memoryStore, f Fetcher) *Orchestrator {
	t.Helper()
	cfg := &config.Config{
		Location: time.UTC,
		Sites:    map[string]*config.SiteConfig{"crowdvolt": testSite()},
	}
	o := NewOrchestrator(cfg, nil, store, httputil.NewClients(&cfg.Proxy, 0))
	o.SetFetcher("crowdvolt", f)
	o.pause = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	o.now = func() time.Time { return cycleNow }
	o.SetMetrics(metrics.New())
	return o
}

func TestOrchestratorScrape_PersistsRowsAndArchives(t *testing.T) {
	store := newMemoryStore()
	store.UpsertEvents(context.Background(), activeEvents("a", "b"))

	f := newFakeFetcher()
	f.pages["https://www.crowdvolt.com/event/a"] = pricePage("a", "V", "GA:85:70", "VIP:210.5:null")
	f.pages["https://www.crowdvolt.com/event/b"] = pricePage("b", "V", "GA:null:40")

	o := newTestOrchestrator(t, store, f)
	archiver := &recordingArchiver{}
	o.SetArchiver(archiver)

	result, err := o.Scrape(context.Background(), "crowdvolt")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(store.snapshots) != 3 {
		t.Fatalf("expected 3 stored rows, got %d", len(store.snapshots))
	}
	if len(archiver.archives) != 1 || archiver.archives[0].CycleID != result.CycleID {
		t.Fatalf("expected one archive for cycle %s", result.CycleID)
	}
	if store.events["a"].Venue != "V" {
		t.Fatalf("expected refreshed venue to be upserted, got %+v", store.events["a"])
	}
}

func TestOrchestratorScrape_NoActiveTargetsPersistsNothing(t *testing.T) {
	store := newMemoryStore()
	f := newFakeFetcher()

	_, err := newTestOrchestrator(t, store, f).Scrape(context.Background(), "crowdvolt")
	if !errors.Is(err, ErrNoActiveTargets) {
		t.Fatalf("expected ErrNoActiveTargets, got %v", err)
	}
	if len(store.snapshots) != 0 {
		t.Fatalf("expected nothing persisted, got %d rows", len(store.snapshots))
	}
}

func TestOrchestratorScrape_CancelledPersistsNothing(t *testing.T) {
	store := newMemoryStore()
	store.UpsertEvents(context.Background(), activeEvents("a", "b", "c"))
	f := newFakeFetcher()
	for _, s := range []string{"a", "b", "c"} {
		f.pages["https://www.crowdvolt.com/event/"+s] = pricePage(s, "V", "GA:10:5")
	}

	o := newTestOrchestrator(t, store, f)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.pause = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	if _, err := o.Scrape(ctx, "crowdvolt"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(store.snapshots) != 0 {
		t.Fatalf("expected nothing persisted after cancel, got %d rows", len(store.snapshots))
	}
}

func TestOrchestratorScrape_SinkFailureDoesNotFailCycle(t *testing.T) {
	store := newMemoryStore()
	store.UpsertEvents(context.Background(), activeEvents("a"))
	store.failRows = true
	f := newFakeFetcher()
	f.pages["https://www.crowdvolt.com/event/a"] = pricePage("a", "", "GA:10:5")

	result, err := newTestOrchestrator(t, store, f).Scrape(context.Background(), "crowdvolt")
	if err != nil {
		t.Fatalf("expected cycle to complete despite sink failure, got %v", err)
	}
	if result.Scraped != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestOrchestratorDiscover_UpsertsAccepted(t *testing.T) {
	store := newMemoryStore()
	f := newFakeFetcher()
	f.pages["https://www.crowdvolt.com/sitemap.xml"] = `<urlset>` +
		`<url><loc>https://www.crowdvolt.com/event/jamie</loc></url>` +
		`<url><loc>https://www.crowdvolt.com/event/solomun</loc></url></urlset>`
	f.pages["https://www.crowdvolt.com/event/jamie"] = discoveryPage("New York", "Jamie Jones", "Brooklyn Mirage", "Fri, February 20 • 10PM")
	f.pages["https://www.crowdvolt.com/event/solomun"] = discoveryPage("Miami", "Solomun", "Club Space", "Sat, March 7")

	result, err := newTestOrchestrator(t, store, f).Discover(context.Background(), "crowdvolt")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(result.Accepted) != 1 || len(store.events) != 1 {
		t.Fatalf("expected only jamie stored, got %+v", store.events)
	}
	if _, ok := store.events["jamie"]; !ok {
		t.Fatal("expected jamie to be upserted")
	}
}

func TestOrchestratorDiscover_NothingAccepted(t *testing.T) {
	store := newMemoryStore()
	f := newFakeFetcher()
	f.pages["https://www.crowdvolt.com/sitemap.xml"] = `<urlset><url><loc>https://www.crowdvolt.com/about</loc></url></urlset>`

	_, err := newTestOrchestrator(t, store, f).Discover(context.Background(), "crowdvolt")
	if !errors.Is(err, ErrNoTargetsDiscovered) {
		t.Fatalf("expected ErrNoTargetsDiscovered, got %v", err)
	}
	if len(store.events) != 0 {
		t.Fatalf("expected nothing persisted, got %d events", len(store.events))
	}
}

func TestOrchestratorCommands_PauseSkipsRuns(t *testing.T) {
	store := newMemoryStore()
	store.UpsertEvents(context.Background(), activeEvents("a"))
	f := newFakeFetcher()
	f.pages["https://www.crowdvolt.com/event/a"] = pricePage("a", "V", "GA:10:5")
	o := newTestOrchestrator(t, store, f)
	ctx := context.Background()

	if err := o.HandleCommand(ctx, &models.Command{Command: models.CmdPause}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := o.RunAll(ctx); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if f.callCount() != 0 || !o.IsPaused() {
		t.Fatalf("expected no fetches while paused, got %d", f.callCount())
	}

	params, _ := json.Marshal(models.CommandParams{Site: "crowdvolt"})
	if err := o.HandleCommand(ctx, &models.Command{Command: models.CmdScrapeNow, Params: params}); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused for site scrape while paused, got %v", err)
	}

	o.HandleCommand(ctx, &models.Command{Command: models.CmdResume})
	if err := o.HandleCommand(ctx, &models.Command{Command: models.CmdScrapeNow, Params: params}); err != nil {
		t.Fatalf("scrape_now: %v", err)
	}
	if len(store.snapshots) != 1 {
		t.Fatalf("expected scrape_now to store 1 row, got %d", len(store.snapshots))
	}

	if err := o.HandleCommand(ctx, &models.Command{Command: "bogus"}); err == nil {
		t.Fatal("expected error for unknown command")
	}

	before := f.callCount()
	bad := &models.Command{Command: models.CmdScrapeNow, Params: json.RawMessage(`{"site":`)}
	if err := o.HandleCommand(ctx, bad); err == nil {
		t.Fatal("expected error for malformed params")
	}
	if f.callCount() != before {
		t.Fatal("malformed command must not run a cycle")
	}
}
