package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/httputil"
	"crowdvolt_tracker/logging"
	"crowdvolt_tracker/metrics"
	"crowdvolt_tracker/models"
	"crowdvolt_tracker/scheduler"
	"crowdvolt_tracker/scraper"
	"crowdvolt_tracker/storage"
)

var (
	flagSite  string
	flagLimit int
	flagRun   int64
)

// app holds the components one command invocation needs.
type app struct {
	cfg     *config.Config
	logFile io.Closer
	ops     *storage.SQLiteStore
	store   storage.EventStore
	orch    *scraper.Orchestrator
	metrics *metrics.Metrics
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crowdvolt-tracker",
		Short: "Track CrowdVolt ticket prices over time",
		Long: `Discovers upcoming events from the CrowdVolt sitemap and records
per-category ask and bid prices for every active event on each cycle.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newScrapeCmd(), newDiscoverCmd(), newDaemonCmd(), newCommandCmd(), newStatusCmd(), newHistoryCmd())
	return cmd
}

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one price snapshot cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if flagSite == "" {
					return a.orch.RunAll(ctx)
				}
				result, err := a.orch.Scrape(ctx, flagSite)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&flagSite, "site", "", "Site ID (default: all sites)")
	return cmd
}

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Enumerate events from the sitemap and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if flagSite == "" {
					return a.orch.DiscoverAll(ctx)
				}
				result, err := a.orch.Discover(ctx, flagSite)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&flagSite, "site", "", "Site ID (default: all sites)")
	return cmd
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run discovery and snapshot cycles on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), runDaemon)
		},
	}
}

// runDaemon blocks until ctx is cancelled by SIGINT or SIGTERM.
func runDaemon(ctx context.Context, a *app) error {
	sched := scheduler.New(a.cfg, a.orch, a.ops)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	if a.cfg.Metrics != "" {
		go func() {
			if err := a.metrics.Serve(ctx, a.cfg.Metrics); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")
	<-ctx.Done()

	log.Println("Shutting down...")
	sched.Stop()
	return nil
}

func newCommandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "command <scrape_now|discover_now|pause|resume>",
		Short:     "Queue a command for a running daemon",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.CmdScrapeNow), string(models.CmdDiscoverNow), string(models.CmdPause), string(models.CmdResume)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdType, err := parseCommandType(args[0])
			if err != nil {
				return err
			}
			ops, err := openOps()
			if err != nil {
				return err
			}
			defer ops.Close()

			var params *models.CommandParams
			if flagSite != "" {
				params = &models.CommandParams{Site: flagSite}
			}
			if err := ops.AddCommand(cmdType, params); err != nil {
				return fmt.Errorf("queueing command: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s\n", cmdType)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagSite, "site", "", "Limit scrape_now or discover_now to one site")
	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent cycle runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := openOps()
			if err != nil {
				return err
			}
			defer ops.Close()

			if flagRun > 0 {
				logs, err := ops.LogsForRun(flagRun)
				if err != nil {
					return err
				}
				writeLogs(cmd.OutOrStdout(), logs)
				return nil
			}

			runs, err := ops.RecentRuns(flagLimit)
			if err != nil {
				return err
			}
			writeRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "Number of runs to show")
	cmd.Flags().Int64Var(&flagRun, "run", 0, "Show the log lines of one run")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <slug>",
		Short: "Print the stored price history of one event (sqlite backend)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := openOps()
			if err != nil {
				return err
			}
			defer ops.Close()

			ctx := cmd.Context()
			event, err := ops.GetEvent(ctx, args[0])
			if err != nil {
				return err
			}
			if event == nil {
				return fmt.Errorf("event %q not found", args[0])
			}
			rows, err := ops.SnapshotsForEvent(ctx, event.Slug)
			if err != nil {
				return err
			}
			writeHistory(cmd.OutOrStdout(), event, rows)
			return nil
		},
	}
}

// openOps opens the ops store without the rest of the component graph.
func openOps() (*storage.SQLiteStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	ops, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening ops store: %w", err)
	}
	return ops, nil
}

func parseCommandType(s string) (models.CommandType, error) {
	switch t := models.CommandType(strings.ToLower(strings.TrimSpace(s))); t {
	case models.CmdScrapeNow, models.CmdDiscoverNow, models.CmdPause, models.CmdResume:
		return t, nil
	default:
		return "", fmt.Errorf("unknown command %q", s)
	}
}

func writeRuns(w io.Writer, runs []models.CycleRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%-5d %-10s %-9s %-10s %s  %8s  targets=%d ok=%d skipped=%d fetch_errors=%d rows=%d\n",
			r.ID, r.SiteID, r.Kind, r.Status, r.StartedAt.Local().Format("2006-01-02 15:04:05"), duration,
			r.TargetsTotal, r.TargetsOK, r.TargetsSkip, r.FetchErrors, r.RowsWritten)
	}
}

func writeLogs(w io.Writer, logs []models.CycleLog) {
	for _, l := range logs {
		fmt.Fprintf(w, "%s [%-5s] %s\n", l.Timestamp.Local().Format("15:04:05"), l.Level, l.Message)
	}
}

func writeHistory(w io.Writer, event *models.Event, rows []models.SnapshotRow) {
	date := "date unknown"
	if event.EventDate != nil {
		date = event.EventDate.Format("Mon Jan 2 2006")
	}
	fmt.Fprintf(w, "%s @ %s (%s)\n", event.Name, event.Venue, date)
	for _, r := range rows {
		fmt.Fprintf(w, "%s  %-24s ask=%-8s bid=%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04"), r.TicketType, formatPrice(r.LowestAsk), formatPrice(r.HighestBid))
	}
}

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp builds the full component graph, runs fn and tears everything down.
func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{}

	logFile, err := logging.Setup(getLogPath())
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		a.logFile = logFile
	}

	cfg, err := config.Load()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	log.Printf("Loaded %d site configs", len(cfg.Sites))
	for id, site := range cfg.Sites {
		log.Printf("  - %s (%s) handler=%s workers=%d", site.Name, id, site.Handler, site.ScrapeWorkers)
	}

	clients := httputil.NewClients(&cfg.Proxy, maxFetchTimeout(cfg))
	if cfg.Proxy.URL != "" {
		log.Printf("Proxy: %s", maskConnectionString(cfg.Proxy.URL))
	}

	a.ops, err = storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening SQLite: %w", err)
	}
	log.Printf("SQLite database: %s", cfg.DBPath)

	a.store, err = storage.Open(ctx, cfg, a.ops, clients.API)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	if cfg.Store.DatabaseURL != "" && cfg.Store.Backend == "postgres" {
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Store.DatabaseURL))
	} else {
		log.Printf("Event store: %s", cfg.Store.Backend)
	}

	a.metrics = metrics.New()
	a.orch = scraper.NewOrchestrator(cfg, a.ops, a.store, clients)
	a.orch.SetMetrics(a.metrics)

	if cfg.S3.Enabled() {
		archiver, err := storage.NewS3Archiver(ctx, cfg.S3)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating S3 archiver: %w", err)
		}
		a.orch.SetArchiver(archiver)
		log.Printf("Archiving cycles to s3://%s", cfg.S3.Bucket)
	}

	return a, nil
}

func (a *app) Close() {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.store != nil && a.store != storage.EventStore(a.ops) {
		if err := a.store.Close(); err != nil {
			log.Printf("Closing event store: %v", err)
		}
	}
	if a.ops != nil {
		a.ops.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// getLogPath reads LOG_FILE before config.Load so load errors reach the file.
func getLogPath() string {
	if p := os.Getenv("LOG_FILE"); p != "" {
		return p
	}
	return "tracker.log"
}

func maxFetchTimeout(cfg *config.Config) time.Duration {
	timeout := config.DefaultFetchTimeout
	for _, site := range cfg.Sites {
		timeout = max(timeout, site.FetchTimeout)
	}
	return timeout
}

// maskConnectionString masks the password in a URL-style connection string.
func maskConnectionString(connStr string) string {
	start := strings.Index(connStr, "://")
	if start < 0 {
		return connStr
	}
	start += 3

	atIdx := strings.Index(connStr[start:], "@")
	if atIdx < 0 {
		return connStr
	}
	atIdx += start

	colonIdx := strings.Index(connStr[start:atIdx], ":")
	if colonIdx < 0 {
		return connStr
	}
	colonIdx += start

	return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
}
