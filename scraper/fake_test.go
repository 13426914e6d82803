package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"crowdvolt_tracker/config"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)

	if err := ctx.Err(); err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	page, ok := f.pages[url]
	if !ok {
		return "", &FetchError{URL: url, StatusCode: 404}
	}
	return page, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type pauseRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	onCall func(n int)
}

func (p *pauseRecorder) pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.delays = append(p.delays, d)
	n := len(p.delays)
	p.mu.Unlock()

	if p.onCall != nil {
		p.onCall(n)
	}
	return ctx.Err()
}

func (p *pauseRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.delays)
}

func testSite() *config.SiteConfig {
	site, err := config.ParseSiteConfig([]byte("id: crowdvolt\nbase_url: https://www.crowdvolt.com\nregion: New York\n"))
	if err != nil {
		panic(err)
	}
	return site
}

// pricePage renders an escaped RSC payload with one record per "name:ask:bid"
// triple. Use "null" for an absent price.
func pricePage(eventName, venue string, types ...string) string {
	var records []string
	for i, t := range types {
		parts := strings.Split(t, ":")
		records = append(records, fmt.Sprintf(`{\"id\":%d,\"name\":\"%s\",\"lowest_ask_price\":%s,\"highest_bid_price\":%s}`,
			i+1, parts[0], parts[1], parts[2]))
	}
	return `<html><head><title>` + eventName + ` New York tickets - ` + venue + ` - Fri, February 20 • 10PM | CrowdVolt</title></head><body>` +
		`<script>self.__next_f.push([1,"5:{\"event\":{\"area_name\":\"New York\",\"name\":\"` + eventName +
		`\",\"event_name\":\"` + eventName + `\",\"venue_name\":\"` + venue + `\"},\"tt_data\":{\"types\":[` +
		strings.Join(records, ",") + `]}}"])</script></body></html>`
}

// discoveryPage renders a page carrying only discovery metadata.
func discoveryPage(area, name, venue, date string) string {
	return `<html><head><title>` + name + ` City tickets - ` + venue + ` - ` + date + ` | CrowdVolt</title></head><body>` +
		`<script>self.__next_f.push([1,"{\"area_name\":\"` + area + `\",\"name\":\"` + name + `\"}"])</script></body></html>`
}
