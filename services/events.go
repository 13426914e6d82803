package services

import (
	"context"
	"time"

	"crowdvolt_tracker/models"
)

// EventSink is the event half of storage.EventStore.
type EventSink interface {
	UpsertEvents(ctx context.Context, events []models.Event) error
	ActiveEvents(ctx context.Context, cutoff time.Time) ([]models.Event, error)
}

// EventService writes discovered and refreshed events in bounded batches.
type EventService struct {
	sink      EventSink
	batchSize int
}

func NewEventService(sink EventSink, batchSize int) *EventService {
	return &EventService{sink: sink, batchSize: batchSize}
}

// Upsert writes events keyed by slug. Duplicate slugs within the call are
// collapsed, last one wins, so no batch carries the same key twice.
func (s *EventService) Upsert(ctx context.Context, events []models.Event) *BatchReport {
	return writeBatches(ctx, "events", dedupeEvents(events), s.batchSize, s.sink.UpsertEvents)
}

// Active returns the events still due for scraping at now.
func (s *EventService) Active(ctx context.Context, now time.Time) ([]models.Event, error) {
	events, err := s.sink.ActiveEvents(ctx, now.Add(-models.ActiveGrace))
	if err != nil {
		return nil, err
	}
	return models.ActiveEvents(events, now), nil
}

func dedupeEvents(events []models.Event) []models.Event {
	index := make(map[string]int, len(events))
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if i, ok := index[e.Slug]; ok {
			out[i] = e
			continue
		}
		index[e.Slug] = len(out)
		out = append(out, e)
	}
	return out
}
