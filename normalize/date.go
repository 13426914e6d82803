package normalize

import (
	"strings"
	"time"
)

// Tried in order; the first layout that parses wins.
var displayDateLayouts = []string{
	"January 2 3PM",
	"January 2 3:04PM",
	"January 2",
}

// EventDate parses a display date such as "Fri, February 20 • 10PM" relative
// to ref. The year is ref's year, rolled forward when the month has already
// passed; the result is in ref's location. It returns nil when the text
// cannot be parsed.
func EventDate(text string, ref time.Time) *time.Time {
	cleaned := cleanDisplayDate(text)
	if cleaned == "" {
		return nil
	}
	// time.Parse only accepts upper-case meridiem for the "PM" layout.
	cleaned = strings.ToUpper(cleaned)

	for _, layout := range displayDateLayouts {
		parsed, err := time.Parse(layout, cleaned)
		if err != nil {
			continue
		}

		year := ref.Year()
		if parsed.Month() < ref.Month() {
			year++
		}

		t := time.Date(year, parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), 0, 0, ref.Location())
		if t.Month() != parsed.Month() || t.Day() != parsed.Day() {
			// Feb 29 outside a leap year.
			return nil
		}
		return &t
	}

	return nil
}
