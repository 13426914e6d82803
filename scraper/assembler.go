package scraper

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/extract"
	"crowdvolt_tracker/models"
)

// CycleResult is the output of one scrape cycle. Every active target has a
// snapshot; skipped targets carry no quotes.
type CycleResult struct {
	CycleID     uuid.UUID
	Timestamp   time.Time
	Snapshots   []models.Snapshot
	Refreshed   []models.Event
	Active      int
	Scraped     int
	Skipped     int
	FetchErrors int
	Quotes      int
}

// Rows flattens the cycle's snapshots for persistence.
func (r *CycleResult) Rows() []models.SnapshotRow {
	return models.FlattenSnapshots(r.Snapshots)
}

type Assembler struct {
	site    *config.SiteConfig
	fetcher Fetcher
	pause   PauseFunc
	now     func() time.Time
}

func NewAssembler(site *config.SiteConfig, fetcher Fetcher) *Assembler {
	return &Assembler{
		site:    site,
		fetcher: fetcher,
		pause:   Sleep,
		now:     time.Now,
	}
}

type targetOutcome struct {
	quotes    []models.PriceQuote
	refreshed *models.Event
	fetchErr  bool
}

// Run scrapes every active event once. It returns ErrNoActiveTargets before
// fetching anything when no event is active, and the context error (with no
// result) when cancelled mid-cycle.
func (a *Assembler) Run(ctx context.Context, events []models.Event) (*CycleResult, error) {
	now := a.now()
	active := models.ActiveEvents(events, now)
	if len(active) == 0 {
		return nil, ErrNoActiveTargets
	}

	result := &CycleResult{
		CycleID:   uuid.New(),
		Timestamp: now.UTC(),
		Active:    len(active),
	}
	log.Printf("Scrape: cycle %s: %d active targets", result.CycleID, len(active))

	outcomes := make([]targetOutcome, len(active))
	err := runPaced(ctx, len(active), a.site.ScrapeWorkers, a.site.ScrapeDelay, a.pause, func(ctx context.Context, i int) {
		outcomes[i] = a.scrapeOne(ctx, &active[i])
	})
	if err != nil {
		return nil, err
	}

	for i, out := range outcomes {
		event := active[i]
		result.Snapshots = append(result.Snapshots, models.Snapshot{
			EventSlug: event.Slug,
			CycleID:   result.CycleID,
			Timestamp: result.Timestamp,
			Quotes:    out.quotes,
		})

		switch {
		case out.fetchErr:
			result.FetchErrors++
			result.Skipped++
		case len(out.quotes) == 0:
			result.Skipped++
		default:
			result.Scraped++
			result.Quotes += len(out.quotes)
		}

		if out.refreshed != nil {
			result.Refreshed = append(result.Refreshed, *out.refreshed)
		}
	}

	log.Printf("Scrape: cycle %s done: %d scraped, %d skipped (%d fetch errors), %d quotes",
		result.CycleID, result.Scraped, result.Skipped, result.FetchErrors, result.Quotes)
	return result, nil
}

func (a *Assembler) scrapeOne(ctx context.Context, event *models.Event) targetOutcome {
	url := event.URL
	if url == "" {
		url = a.site.EventURL(event.Slug)
	}

	markup, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		log.Printf("Scrape: %s: %v", event.Slug, err)
		return targetOutcome{fetchErr: true}
	}

	extracted := extract.Prices(markup)
	if extracted.Empty() {
		log.Printf("Scrape: %s: no price data", event.Slug)
		return targetOutcome{}
	}
	log.Printf("Scrape: %s: %d ticket types (%s)", event.Slug, len(extracted.Quotes), extracted.Strategy)

	return targetOutcome{
		quotes:    extracted.Quotes,
		refreshed: refreshEvent(event, extracted, a.now()),
	}
}

// refreshEvent returns an updated copy of event when the page's advisory
// metadata differs from what is stored, or nil.
func refreshEvent(event *models.Event, extracted *models.ExtractionResult, now time.Time) *models.Event {
	changed := false
	updated := *event

	if extracted.Name != "" && extracted.Name != event.Name {
		updated.Name = extracted.Name
		changed = true
	}
	if extracted.Venue != "" && extracted.Venue != event.Venue {
		updated.Venue = extracted.Venue
		changed = true
	}
	if !changed {
		return nil
	}
	updated.UpdatedAt = now.UTC()
	return &updated
}
