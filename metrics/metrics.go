package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the tracker's collectors on a private registry so tests can
// create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	targets       *prometheus.CounterVec
	quotes        *prometheus.CounterVec
	batchFailures *prometheus.CounterVec
	lastSuccessTS *prometheus.GaugeVec
	cycleDur      *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}

	m.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "cycles_total",
		Help:      "Completed discover and scrape cycles by status",
	}, []string{"site", "kind", "status"})
	m.targets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "targets_total",
		Help:      "Targets processed by outcome (scraped, skipped, fetch_error, accepted, rejected)",
	}, []string{"site", "outcome"})
	m.quotes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "quotes_total",
		Help:      "Price quotes extracted",
	}, []string{"site"})
	m.batchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "sink_batch_failures_total",
		Help:      "Sink batches that failed to write",
	}, []string{"site", "sink"})
	m.lastSuccessTS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tracker",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful cycle",
	}, []string{"site", "kind"})
	m.cycleDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracker",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one cycle",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"site", "kind"})

	m.Registry.MustRegister(
		m.cycles, m.targets, m.quotes,
		m.batchFailures, m.lastSuccessTS, m.cycleDur,
	)
	return m
}

// ObserveCycle records the end of a cycle. A nil receiver is a no-op.
func (m *Metrics) ObserveCycle(site, kind, status string, started time.Time) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(site, kind, status).Inc()
	m.cycleDur.WithLabelValues(site, kind).Observe(time.Since(started).Seconds())
	if status == "completed" {
		m.lastSuccessTS.WithLabelValues(site, kind).Set(float64(time.Now().Unix()))
	}
}

func (m *Metrics) AddTargets(site, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.targets.WithLabelValues(site, outcome).Add(float64(n))
}

func (m *Metrics) AddQuotes(site string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.quotes.WithLabelValues(site).Add(float64(n))
}

func (m *Metrics) AddBatchFailures(site, sink string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchFailures.WithLabelValues(site, sink).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /healthz on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Metrics: listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
