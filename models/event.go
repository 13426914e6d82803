package models

import "time"

// Event is a monitored target, keyed by its slug.
type Event struct {
	Slug      string     `json:"slug" db:"slug"`
	Name      string     `json:"name" db:"name"`
	Venue     string     `json:"venue" db:"venue"`
	EventDate *time.Time `json:"event_date,omitempty" db:"event_date"`
	Region    string     `json:"region,omitempty" db:"region"`
	URL       string     `json:"url" db:"url"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ActiveGrace is how long after its start an event is still scraped.
const ActiveGrace = 24 * time.Hour

// IsActive reports whether the event is still due for monitoring at now.
// Events with an unknown date are always active.
func (e *Event) IsActive(now time.Time) bool {
	if e.EventDate == nil {
		return true
	}
	return !e.EventDate.Before(now.Add(-ActiveGrace))
}

// ActiveEvents filters events down to those active at now, preserving order.
func ActiveEvents(events []Event, now time.Time) []Event {
	var active []Event
	for _, e := range events {
		if e.IsActive(now) {
			active = append(active, e)
		}
	}
	return active
}
