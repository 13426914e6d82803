package models

import (
	"testing"
	"time"
)

func TestEventIsActive(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name string
		date *time.Time
		want bool
	}{
		{"unknown date", nil, true},
		{"future", at(48 * time.Hour), true},
		{"started an hour ago", at(-time.Hour), true},
		{"exactly at grace boundary", at(-ActiveGrace), true},
		{"past grace", at(-ActiveGrace - time.Second), false},
		{"last month", at(-30 * 24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Event{Slug: "x", EventDate: tt.date}
			if got := e.IsActive(now); got != tt.want {
				t.Fatalf("IsActive = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActiveEvents_PreservesOrder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-72 * time.Hour)
	future := now.Add(72 * time.Hour)

	events := []Event{
		{Slug: "a", EventDate: &future},
		{Slug: "b", EventDate: &past},
		{Slug: "c"},
		{Slug: "d", EventDate: &future},
	}

	active := ActiveEvents(events, now)
	if len(active) != 3 {
		t.Fatalf("expected 3 active events, got %d", len(active))
	}
	for i, slug := range []string{"a", "c", "d"} {
		if active[i].Slug != slug {
			t.Fatalf("position %d: expected %s, got %s", i, slug, active[i].Slug)
		}
	}
}
