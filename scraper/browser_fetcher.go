package scraper

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"

	"crowdvolt_tracker/config"
)

// BrowserFetcher renders pages in a persistent Chromium profile. Use it when
// a site serves its payload only to a real browser.
type BrowserFetcher struct {
	cfg         *config.SiteConfig
	pw          *playwright.Playwright
	context     playwright.BrowserContext
	mu          sync.Mutex
	initialized bool
}

func NewBrowserFetcher(cfg *config.SiteConfig) *BrowserFetcher {
	return &BrowserFetcher{cfg: cfg}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	if err := f.ensureBrowser(); err != nil {
		return "", &FetchError{URL: url, Err: err}
	}

	page, err := f.context.NewPage()
	if err != nil {
		return "", &FetchError{URL: url, Err: fmt.Errorf("failed to create page: %w", err)}
	}
	defer page.Close()

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(f.cfg.FetchTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	if resp != nil && resp.Status() != 200 {
		return "", &FetchError{URL: url, StatusCode: resp.Status()}
	}

	content, err := page.Content()
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	return content, nil
}

func (f *BrowserFetcher) ensureBrowser() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}

	var err error
	f.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	cwd, _ := os.Getwd()
	userDataDir := filepath.Join(cwd, "browser_data", f.cfg.ID)
	f.context, err = f.pw.Chromium.LaunchPersistentContext(userDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:  playwright.Bool(true),
		UserAgent: playwright.String(f.cfg.UserAgent),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		f.pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Printf("Browser: started persistent context for %s", f.cfg.ID)
	f.initialized = true
	return nil
}

func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		return nil
	}
	if f.context != nil {
		f.context.Close()
	}
	if f.pw != nil {
		f.pw.Stop()
	}
	f.initialized = false
	return nil
}
