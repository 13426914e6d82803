package scraper

import (
	"io"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/httputil"
)

// NewFetcher picks the page transport configured for a site.
func NewFetcher(siteCfg *config.SiteConfig, clients *httputil.Clients) Fetcher {
	switch siteCfg.Handler {
	case "browser":
		return NewBrowserFetcher(siteCfg)
	default:
		return NewHTTPFetcher(clients.Scraping, siteCfg.UserAgent)
	}
}

// closeFetcher releases fetchers that hold resources, such as a browser.
func closeFetcher(f Fetcher) {
	if c, ok := f.(io.Closer); ok {
		c.Close()
	}
}
