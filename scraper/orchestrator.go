package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/httputil"
	"crowdvolt_tracker/metrics"
	"crowdvolt_tracker/models"
	"crowdvolt_tracker/services"
	"crowdvolt_tracker/storage"
)

// Archiver stores a copy of each scrape cycle's rows.
type Archiver interface {
	ArchiveCycle(ctx context.Context, archive *storage.CycleArchive) error
}

type siteRunner struct {
	cfg         *config.SiteConfig
	fetcher     Fetcher
	feedFetcher Fetcher
}

type Orchestrator struct {
	cfg       *config.Config
	ops       *storage.SQLiteStore
	events    *services.EventService
	snapshots *services.SnapshotService
	sites     map[string]*siteRunner
	archiver  Archiver
	metrics   *metrics.Metrics

	mu     sync.Mutex
	paused bool

	pause PauseFunc
	now   func() time.Time
}

// NewOrchestrator wires one fetcher per site. ops may be nil, in which case
// runs and logs only go to the process log.
func NewOrchestrator(cfg *config.Config, ops *storage.SQLiteStore, store storage.EventStore, clients *httputil.Clients) *Orchestrator {
	sites := make(map[string]*siteRunner)
	batchSize := config.MaxBatchSize
	for id, siteCfg := range cfg.Sites {
		sites[id] = &siteRunner{
			cfg:         siteCfg,
			fetcher:     NewFetcher(siteCfg, clients),
			feedFetcher: NewHTTPFetcher(clients.Scraping, siteCfg.UserAgent),
		}
		batchSize = min(batchSize, siteCfg.BatchSize)
	}

	return &Orchestrator{
		cfg:       cfg,
		ops:       ops,
		events:    services.NewEventService(store, batchSize),
		snapshots: services.NewSnapshotService(store, batchSize),
		sites:     sites,
		pause:     Sleep,
		now:       time.Now,
	}
}

func (o *Orchestrator) SetArchiver(a Archiver) {
	o.archiver = a
}

func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

// SetFetcher replaces a site's page and feed transport.
func (o *Orchestrator) SetFetcher(siteID string, f Fetcher) {
	if r, ok := o.sites[siteID]; ok {
		r.fetcher = f
		r.feedFetcher = f
	}
}

// Close releases fetcher resources such as browsers.
func (o *Orchestrator) Close() {
	for _, r := range o.sites {
		closeFetcher(r.fetcher)
	}
}

func (o *Orchestrator) site(siteID string) (*siteRunner, error) {
	r, ok := o.sites[siteID]
	if !ok {
		return nil, fmt.Errorf("unknown site: %s", siteID)
	}
	return r, nil
}

// Scrape runs one snapshot cycle for a site and persists its rows. A
// cancelled or empty cycle persists nothing.
func (o *Orchestrator) Scrape(ctx context.Context, siteID string) (*CycleResult, error) {
	r, err := o.site(siteID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	run := o.startRun(siteID, models.RunKindScrape)

	events, err := o.events.Active(ctx, o.now())
	if err != nil {
		o.failRun(run, started, fmt.Sprintf("Load active events: %v", err))
		return nil, fmt.Errorf("load active events: %w", err)
	}
	events = eventsForSite(events, r.cfg, len(o.sites))

	assembler := &Assembler{site: r.cfg, fetcher: r.fetcher, pause: o.pause, now: o.now}
	result, err := assembler.Run(ctx, events)
	if err != nil {
		o.abortRun(run, started, err)
		return nil, err
	}

	run.CycleID = result.CycleID.String()
	run.TargetsTotal = result.Active
	run.TargetsOK = result.Scraped
	run.TargetsSkip = result.Skipped
	run.FetchErrors = result.FetchErrors

	rows := result.Rows()
	snapReport := o.snapshots.Insert(ctx, rows)
	run.RowsWritten = snapReport.Sent
	run.BatchesFailed = len(snapReport.Failed)
	o.metrics.AddBatchFailures(siteID, "snapshots", len(snapReport.Failed))

	if len(result.Refreshed) > 0 {
		evReport := o.events.Upsert(ctx, result.Refreshed)
		run.BatchesFailed += len(evReport.Failed)
		o.metrics.AddBatchFailures(siteID, "events", len(evReport.Failed))
		o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Refreshed %d events", evReport.Sent), siteID)
	}

	if o.archiver != nil && len(rows) > 0 {
		archive := &storage.CycleArchive{
			SiteID:    siteID,
			CycleID:   result.CycleID,
			Timestamp: result.Timestamp,
			Rows:      rows,
		}
		if err := o.archiver.ArchiveCycle(ctx, archive); err != nil {
			o.log(run.ID, models.LogLevelWarn, fmt.Sprintf("Archive failed: %v", err), siteID)
		}
	}

	o.metrics.AddTargets(siteID, "scraped", result.Scraped)
	o.metrics.AddTargets(siteID, "skipped", result.Skipped)
	o.metrics.AddTargets(siteID, "fetch_error", result.FetchErrors)
	o.metrics.AddQuotes(siteID, result.Quotes)

	level := models.LogLevelInfo
	if run.BatchesFailed > 0 {
		level = models.LogLevelWarn
	}
	o.log(run.ID, level, fmt.Sprintf("Completed: %d targets, %d scraped, %d skipped, %d rows written, %d batches failed",
		result.Active, result.Scraped, result.Skipped, run.RowsWritten, run.BatchesFailed), siteID)
	o.finishRun(run, models.RunStatusCompleted, started)

	return result, nil
}

// Discover enumerates a site's candidates and upserts the accepted events.
func (o *Orchestrator) Discover(ctx context.Context, siteID string) (*DiscoveryResult, error) {
	r, err := o.site(siteID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	run := o.startRun(siteID, models.RunKindDiscover)

	feed := NewSitemapFeed(r.feedFetcher, r.cfg.SitemapURL, r.cfg.EventPath)
	slugs, err := feed.Candidates(ctx)
	if err != nil {
		o.abortRun(run, started, err)
		return nil, err
	}
	o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Sitemap: %d candidates", len(slugs)), siteID)

	enumerator := &Enumerator{site: r.cfg, fetcher: r.fetcher, loc: o.location(), pause: o.pause, now: o.now}
	result, err := enumerator.Run(ctx, slugs)
	if err != nil {
		o.abortRun(run, started, err)
		return result, err
	}

	run.TargetsTotal = result.Candidates
	run.TargetsOK = len(result.Accepted)
	run.TargetsSkip = result.Rejected
	run.FetchErrors = result.Failed

	report := o.events.Upsert(ctx, result.Accepted)
	run.RowsWritten = report.Sent
	run.BatchesFailed = len(report.Failed)

	o.metrics.AddTargets(siteID, "accepted", len(result.Accepted))
	o.metrics.AddTargets(siteID, "rejected", result.Rejected)
	o.metrics.AddTargets(siteID, "fetch_error", result.Failed)
	o.metrics.AddBatchFailures(siteID, "events", len(report.Failed))

	o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Completed: %d accepted, %d other regions, %d failed, %d upserted",
		len(result.Accepted), result.Rejected, result.Failed, report.Sent), siteID)
	o.finishRun(run, models.RunStatusCompleted, started)

	return result, nil
}

// RunAll scrapes every site. Per-site errors are logged, not returned.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	return o.forEachSite(ctx, "scrape", func(ctx context.Context, id string) error {
		_, err := o.Scrape(ctx, id)
		return err
	})
}

// DiscoverAll runs discovery for every site.
func (o *Orchestrator) DiscoverAll(ctx context.Context) error {
	return o.forEachSite(ctx, "discover", func(ctx context.Context, id string) error {
		_, err := o.Discover(ctx, id)
		return err
	})
}

func (o *Orchestrator) forEachSite(ctx context.Context, kind string, fn func(context.Context, string) error) error {
	if o.IsPaused() {
		log.Printf("Scraper is paused, skipping %s run", kind)
		return nil
	}

	for _, id := range o.GetSiteIDs() {
		if err := fn(ctx, id); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Error running %s for site %s: %v", kind, id, err)
		}
	}
	return nil
}

func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := cmd.ParseParams()
	if err != nil {
		return fmt.Errorf("command params: %w", err)
	}

	switch cmd.Command {
	case models.CmdScrapeNow, models.CmdDiscoverNow:
		if params.Site != "" && o.IsPaused() {
			return ErrPaused
		}
	}

	switch cmd.Command {
	case models.CmdScrapeNow:
		if params.Site != "" {
			_, err := o.Scrape(ctx, params.Site)
			return err
		}
		return o.RunAll(ctx)
	case models.CmdDiscoverNow:
		if params.Site != "" {
			_, err := o.Discover(ctx, params.Site)
			return err
		}
		return o.DiscoverAll(ctx)
	case models.CmdPause:
		o.setPaused(true)
		log.Println("Scraper paused")
	case models.CmdResume:
		o.setPaused(false)
		log.Println("Scraper resumed")
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}

	return nil
}

func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *Orchestrator) setPaused(p bool) {
	o.mu.Lock()
	o.paused = p
	o.mu.Unlock()
}

func (o *Orchestrator) GetSiteIDs() []string {
	ids := make([]string, 0, len(o.sites))
	for id := range o.sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (o *Orchestrator) location() *time.Location {
	if o.cfg.Location != nil {
		return o.cfg.Location
	}
	return time.UTC
}

// eventsForSite keeps events whose URL belongs to site. URL-less events are
// attributed to the only site when there is just one.
func eventsForSite(events []models.Event, site *config.SiteConfig, siteCount int) []models.Event {
	var out []models.Event
	for _, e := range events {
		if strings.HasPrefix(e.URL, site.BaseURL) || (e.URL == "" && siteCount == 1) {
			out = append(out, e)
		}
	}
	return out
}

func (o *Orchestrator) startRun(siteID string, kind models.RunKind) *models.CycleRun {
	run := &models.CycleRun{
		SiteID:    siteID,
		Kind:      kind,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if o.ops != nil {
		id, err := o.ops.CreateRun(run)
		if err != nil {
			log.Printf("Warning: failed to create run record: %v", err)
		} else {
			run.ID = id
		}
	}
	o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Starting %s", kind), siteID)
	return run
}

func (o *Orchestrator) finishRun(run *models.CycleRun, status models.RunStatus, started time.Time) {
	now := time.Now()
	run.FinishedAt = &now
	run.Status = status
	if o.ops != nil && run.ID != 0 {
		if err := o.ops.UpdateRun(run); err != nil {
			log.Printf("Warning: failed to update run %d: %v", run.ID, err)
		}
	}
	o.metrics.ObserveCycle(run.SiteID, string(run.Kind), string(status), started)
}

func (o *Orchestrator) failRun(run *models.CycleRun, started time.Time, message string) {
	o.log(run.ID, models.LogLevelError, message, run.SiteID)
	o.finishRun(run, models.RunStatusFailed, started)
}

// abortRun closes a run that ended before persistence.
func (o *Orchestrator) abortRun(run *models.CycleRun, started time.Time, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		o.log(run.ID, models.LogLevelWarn, "Cancelled, nothing persisted", run.SiteID)
		o.finishRun(run, models.RunStatusCancelled, started)
		return
	}
	o.failRun(run, started, fmt.Sprintf("Aborted: %v", err))
}

func (o *Orchestrator) log(runID int64, level models.LogLevel, message, siteID string) {
	log.Printf("[%s] %s: %s", level, siteID, message)
	if o.ops == nil {
		return
	}
	var ref *int64
	if runID != 0 {
		ref = &runID
	}
	o.ops.Log(ref, level, message, siteID)
}
