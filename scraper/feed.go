package scraper

import (
	"context"
	"fmt"
	"log"
	"strings"

	"crowdvolt_tracker/extract"
)

// Feed yields candidate target slugs for discovery.
type Feed interface {
	Candidates(ctx context.Context) ([]string, error)
}

// SitemapFeed reads a site's sitemap. Index documents are followed one level
// deep; a failing child sitemap is logged and skipped.
type SitemapFeed struct {
	fetcher   Fetcher
	url       string
	eventPath string
}

func NewSitemapFeed(fetcher Fetcher, url, eventPath string) *SitemapFeed {
	return &SitemapFeed{fetcher: fetcher, url: url, eventPath: eventPath}
}

func (f *SitemapFeed) Candidates(ctx context.Context) ([]string, error) {
	root, err := f.load(ctx, f.url)
	if err != nil {
		return nil, err
	}

	slugs := root.Slugs
	seen := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		seen[s] = true
	}

	for _, child := range root.Children {
		sm, err := f.load(ctx, child)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("Discover: skipping child sitemap %s: %v", child, err)
			continue
		}
		for _, s := range sm.Slugs {
			if !seen[s] {
				seen[s] = true
				slugs = append(slugs, s)
			}
		}
	}

	return slugs, nil
}

func (f *SitemapFeed) load(ctx context.Context, url string) (*extract.Sitemap, error) {
	body, err := f.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("sitemap: %w", err)
	}
	return extract.ParseSitemap(strings.NewReader(body), f.eventPath)
}
