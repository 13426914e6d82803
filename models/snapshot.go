package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTicketType labels a summary-level quote with no category name.
const DefaultTicketType = "General Admission"

// PriceQuote is the lowest ask / highest bid pair for one ticket category.
// Nil prices are absent, never zero.
type PriceQuote struct {
	TicketType string   `json:"ticket_type"`
	LowestAsk  *float64 `json:"lowest_ask"`
	HighestBid *float64 `json:"highest_bid"`
}

// ExtractionResult holds the quotes found on one page in first-seen order,
// plus optional advisory metadata.
type ExtractionResult struct {
	Quotes   []PriceQuote `json:"quotes"`
	Name     string       `json:"name,omitempty"`
	Venue    string       `json:"venue,omitempty"`
	Strategy string       `json:"strategy,omitempty"`

	seen map[string]bool
}

// Add appends q unless its ticket type was already recorded.
func (r *ExtractionResult) Add(q PriceQuote) bool {
	if r.seen == nil {
		r.seen = make(map[string]bool)
		for _, existing := range r.Quotes {
			r.seen[existing.TicketType] = true
		}
	}
	if r.seen[q.TicketType] {
		return false
	}
	r.seen[q.TicketType] = true
	r.Quotes = append(r.Quotes, q)
	return true
}

// Quote returns the quote for a ticket type, if present.
func (r *ExtractionResult) Quote(ticketType string) (PriceQuote, bool) {
	for _, q := range r.Quotes {
		if q.TicketType == ticketType {
			return q, true
		}
	}
	return PriceQuote{}, false
}

func (r *ExtractionResult) Empty() bool {
	return len(r.Quotes) == 0
}

// Snapshot is one event's quotes at a cycle timestamp.
type Snapshot struct {
	EventSlug string       `json:"event_slug"`
	CycleID   uuid.UUID    `json:"cycle_id"`
	Timestamp time.Time    `json:"timestamp"`
	Quotes    []PriceQuote `json:"quotes"`
}

// SnapshotRow is the persisted, flattened form of one quote.
type SnapshotRow struct {
	EventSlug  string    `json:"event_slug" db:"event_slug"`
	CycleID    uuid.UUID `json:"cycle_id" db:"cycle_id"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	TicketType string    `json:"ticket_type" db:"ticket_type"`
	LowestAsk  *float64  `json:"lowest_ask" db:"lowest_ask"`
	HighestBid *float64  `json:"highest_bid" db:"highest_bid"`
}

// Rows flattens the snapshot into one row per quote.
func (s *Snapshot) Rows() []SnapshotRow {
	rows := make([]SnapshotRow, 0, len(s.Quotes))
	for _, q := range s.Quotes {
		rows = append(rows, SnapshotRow{
			EventSlug:  s.EventSlug,
			CycleID:    s.CycleID,
			Timestamp:  s.Timestamp,
			TicketType: q.TicketType,
			LowestAsk:  q.LowestAsk,
			HighestBid: q.HighestBid,
		})
	}
	return rows
}

// FlattenSnapshots concatenates the rows of all snapshots.
func FlattenSnapshots(snapshots []Snapshot) []SnapshotRow {
	var rows []SnapshotRow
	for i := range snapshots {
		rows = append(rows, snapshots[i].Rows()...)
	}
	return rows
}
