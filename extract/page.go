package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// EventPage is the event metadata found on a page during discovery.
type EventPage struct {
	Region   string
	Name     string
	Venue    string
	DateText string
}

var (
	areaRegex          = stringField("area_name", 200)
	nameAfterAreaRegex = regexp.MustCompile(`"area_name"\s*:\s*"(?:[^"\\]|\\.){1,200}"\s*,\s*"name"\s*:\s*"((?:[^"\\]|\\.){1,300})"`)
	venueRegex         = stringField("venue", 300)
	dateRegex          = stringField("date", 100)
	titleSuffixRegex   = regexp.MustCompile(`\s*\|[^|]*$`)
)

const titleTicketsSep = " tickets - "

// Page extracts discovery metadata. The <title> ("Artist City tickets -
// Venue - Date | Site") is preferred for venue and date; the RSC payload is
// the fallback.
func Page(markup string) EventPage {
	text := Unescape(markup)

	page := EventPage{
		Region: firstSubmatch(areaRegex, text),
		Name:   firstSubmatch(nameAfterAreaRegex, text),
	}

	title := pageTitle(markup)
	page.Venue, page.DateText = parseTitle(title)

	if page.Venue == "" {
		page.Venue = firstSubmatch(venueRegex, text)
	}
	if page.DateText == "" {
		page.DateText = firstSubmatch(dateRegex, text)
	}
	if page.Name == "" {
		page.Name = nameFromTitle(title)
	}

	return page
}

func pageTitle(markup string) string {
	if len(markup) > MaxMarkupBytes {
		markup = markup[:MaxMarkupBytes]
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// parseTitle splits "X tickets - Venue - Date | Site". The date is always the
// last dash-separated part; venue names may themselves contain " - ".
func parseTitle(title string) (venue, date string) {
	idx := strings.Index(title, titleTicketsSep)
	if idx < 0 {
		return "", ""
	}

	parts := strings.Split(title[idx+len(titleTicketsSep):], " - ")
	if len(parts) >= 2 {
		date = strings.TrimSpace(titleSuffixRegex.ReplaceAllString(parts[len(parts)-1], ""))
		venue = strings.TrimSpace(strings.Join(parts[:len(parts)-1], " - "))
		return venue, date
	}
	return strings.TrimSpace(titleSuffixRegex.ReplaceAllString(parts[0], "")), ""
}

// nameFromTitle drops the trailing city word from "Artist City tickets".
func nameFromTitle(title string) string {
	idx := strings.Index(title, titleTicketsSep)
	if idx < 0 {
		return ""
	}
	head := strings.TrimSpace(title[:idx])
	if cut := strings.LastIndex(head, " "); cut > 0 {
		return head[:cut]
	}
	return head
}
