package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Sitemap is a parsed sitemap document. Index documents list child sitemaps
// instead of pages.
type Sitemap struct {
	Slugs    []string
	Children []string
}

// ParseSitemap reads <loc> entries and keeps the slugs of URLs under
// eventPath, deduplicated, in document order.
func ParseSitemap(r io.Reader, eventPath string) (*Sitemap, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}

	sm := &Sitemap{}
	seen := make(map[string]bool)

	doc.Find("sitemap > loc").Each(func(i int, s *goquery.Selection) {
		if loc := strings.TrimSpace(s.Text()); loc != "" {
			sm.Children = append(sm.Children, loc)
		}
	})

	doc.Find("url > loc").Each(func(i int, s *goquery.Selection) {
		slug := SlugFromURL(strings.TrimSpace(s.Text()), eventPath)
		if slug == "" || seen[slug] {
			return
		}
		seen[slug] = true
		sm.Slugs = append(sm.Slugs, slug)
	})

	return sm, nil
}

// SlugFromURL returns the path segment after eventPath, or "" when the URL is
// not an event page.
func SlugFromURL(loc, eventPath string) string {
	idx := strings.LastIndex(loc, eventPath)
	if idx < 0 {
		return ""
	}
	slug := strings.Trim(loc[idx+len(eventPath):], "/")
	if i := strings.IndexAny(slug, "?#"); i >= 0 {
		slug = slug[:i]
	}
	return slug
}
