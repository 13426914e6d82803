package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesRecordedSeries(t *testing.T) {
	m := New()
	m.ObserveCycle("crowdvolt", "scrape", "completed", time.Now().Add(-2*time.Second))
	m.AddTargets("crowdvolt", "scraped", 3)
	m.AddTargets("crowdvolt", "skipped", 1)
	m.AddQuotes("crowdvolt", 7)
	m.AddBatchFailures("crowdvolt", "snapshots", 1)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`tracker_cycles_total{kind="scrape",site="crowdvolt",status="completed"} 1`,
		`tracker_targets_total{outcome="scraped",site="crowdvolt"} 3`,
		`tracker_quotes_total{site="crowdvolt"} 7`,
		`tracker_sink_batch_failures_total{sink="snapshots",site="crowdvolt"} 1`,
		`tracker_last_success_timestamp_seconds{kind="scrape",site="crowdvolt"}`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCycle("s", "scrape", "failed", time.Now())
	m.AddTargets("s", "scraped", 1)
	m.AddQuotes("s", 1)
	m.AddBatchFailures("s", "events", 1)
}
