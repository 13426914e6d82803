package scraper

import (
	"context"
	"log"
	"time"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/extract"
	"crowdvolt_tracker/models"
	"crowdvolt_tracker/normalize"
)

// DiscoveryResult is the output of one discovery pass.
type DiscoveryResult struct {
	Accepted   []models.Event
	Candidates int
	Rejected   int
	Failed     int
}

// Enumerator turns candidate slugs into events for the configured region.
type Enumerator struct {
	site    *config.SiteConfig
	fetcher Fetcher
	loc     *time.Location
	pause   PauseFunc
	now     func() time.Time
}

func NewEnumerator(site *config.SiteConfig, fetcher Fetcher, loc *time.Location) *Enumerator {
	if loc == nil {
		loc = time.UTC
	}
	return &Enumerator{
		site:    site,
		fetcher: fetcher,
		loc:     loc,
		pause:   Sleep,
		now:     time.Now,
	}
}

type candidateOutcome struct {
	event    *models.Event
	rejected bool
	failed   bool
}

// Run fetches each candidate's page and keeps those whose region tag equals
// the site's region exactly. An empty site region accepts every candidate.
// It returns ErrNoTargetsDiscovered, along with the counts, when nothing is
// accepted.
func (e *Enumerator) Run(ctx context.Context, slugs []string) (*DiscoveryResult, error) {
	result := &DiscoveryResult{Candidates: len(slugs)}
	ref := e.now().In(e.loc)

	outcomes := make([]candidateOutcome, len(slugs))
	err := runPaced(ctx, len(slugs), 1, e.site.DiscoveryDelay, e.pause, func(ctx context.Context, i int) {
		outcomes[i] = e.inspect(ctx, slugs[i], ref)
	})
	if err != nil {
		return nil, err
	}

	for _, out := range outcomes {
		switch {
		case out.failed:
			result.Failed++
		case out.rejected:
			result.Rejected++
		case out.event != nil:
			result.Accepted = append(result.Accepted, *out.event)
		}
	}

	log.Printf("Discover: %d candidates, %d accepted, %d other regions, %d failed",
		result.Candidates, len(result.Accepted), result.Rejected, result.Failed)

	if len(result.Accepted) == 0 {
		return result, ErrNoTargetsDiscovered
	}
	return result, nil
}

func (e *Enumerator) inspect(ctx context.Context, slug string, ref time.Time) candidateOutcome {
	url := e.site.EventURL(slug)
	markup, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		log.Printf("Discover: %s: %v", slug, err)
		return candidateOutcome{failed: true}
	}

	page := extract.Page(markup)
	if e.site.Region != "" && page.Region != e.site.Region {
		return candidateOutcome{rejected: true}
	}

	event := &models.Event{
		Slug:      slug,
		Name:      page.Name,
		Venue:     page.Venue,
		EventDate: normalize.EventDate(page.DateText, ref),
		Region:    page.Region,
		URL:       url,
		UpdatedAt: ref.UTC(),
	}
	if event.Name == "" {
		event.Name = slug
	}

	log.Printf("Discover: accepted %s (%s @ %s)", slug, event.Name, event.Venue)
	return candidateOutcome{event: event}
}
