package httputil

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"crowdvolt_tracker/config"
)

const apiTimeout = 30 * time.Second

type Clients struct {
	Scraping *http.Client // optionally proxied, for event pages and sitemaps
	API      *http.Client // direct, for Supabase
}

// NewClients builds the outbound clients. An empty proxy URL means direct.
func NewClients(proxyCfg *config.ProxyConfig, fetchTimeout time.Duration) *Clients {
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
		TLSNextProto:      make(map[string]func(string, *tls.Conn) http.RoundTripper),
	}
	if proxyCfg != nil && proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	if fetchTimeout <= 0 {
		fetchTimeout = config.DefaultFetchTimeout
	}

	return &Clients{
		Scraping: &http.Client{
			Timeout:   fetchTimeout,
			Transport: transport,
		},
		API: &http.Client{Timeout: apiTimeout},
	}
}
