package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is built once per process and passed to every component. Nothing
// mutates it after Load returns.
type Config struct {
	Store     StoreConfig
	Supabase  SupabaseConfig
	DynamoDB  DynamoDBConfig
	S3        S3Config
	Scheduler SchedulerConfig
	Proxy     ProxyConfig
	DBPath    string
	LogFile   string
	Metrics   string
	Location  *time.Location
	Sites     map[string]*SiteConfig
}

type StoreConfig struct {
	Backend     string // sqlite, postgres, supabase, dynamodb
	DatabaseURL string
}

type SupabaseConfig struct {
	URL        string
	ServiceKey string
}

type DynamoDBConfig struct {
	Region         string
	Endpoint       string // Optional: DynamoDB Local
	EventsTable    string
	SnapshotsTable string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type SchedulerConfig struct {
	DiscoverCron string
	ScrapeCron   string
	Interval     time.Duration
}

type ProxyConfig struct {
	URL string
}

// SiteConfig describes one marketplace. Loaded from config/sites/*.yaml.
type SiteConfig struct {
	ID             string        `yaml:"id"`
	Name           string        `yaml:"name"`
	Handler        string        `yaml:"handler"` // http or browser
	BaseURL        string        `yaml:"base_url"`
	SitemapURL     string        `yaml:"sitemap_url"`
	EventPath      string        `yaml:"event_path"`
	Region         string        `yaml:"region"`
	UserAgent      string        `yaml:"user_agent"`
	DiscoveryDelay time.Duration `yaml:"discovery_delay"`
	ScrapeDelay    time.Duration `yaml:"scrape_delay"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	ScrapeWorkers  int           `yaml:"scrape_workers"`
	BatchSize      int           `yaml:"batch_size"`
}

const (
	defaultDiscoveryDelay = 1 * time.Second
	defaultScrapeDelay    = 1500 * time.Millisecond
	DefaultFetchTimeout   = 30 * time.Second
	defaultEventPath      = "/event/"
	defaultUserAgent      = "CrowdVoltNYCTracker/1.0 (personal portfolio project)"
	// MaxBatchSize bounds a single sink request.
	MaxBatchSize = 100
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Store: StoreConfig{
			Backend:     getEnv("STORE_BACKEND", "sqlite"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Supabase: SupabaseConfig{
			URL:        os.Getenv("SUPABASE_URL"),
			ServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		},
		DynamoDB: DynamoDBConfig{
			Region:         getEnv("AWS_REGION", "us-east-1"),
			Endpoint:       os.Getenv("DYNAMODB_ENDPOINT"),
			EventsTable:    getEnv("DYNAMODB_EVENTS_TABLE", "events"),
			SnapshotsTable: getEnv("DYNAMODB_SNAPSHOTS_TABLE", "snapshots"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Scheduler: SchedulerConfig{
			DiscoverCron: os.Getenv("DISCOVER_CRON"),
			ScrapeCron:   os.Getenv("SCRAPE_CRON"),
			Interval:     getEnvDuration("SCRAPE_INTERVAL", 0),
		},
		Proxy:   ProxyConfig{URL: os.Getenv("PROXY_URL")},
		DBPath:  getEnv("DB_PATH", "tracker.db"),
		LogFile: getEnv("LOG_FILE", "tracker.log"),
		Metrics: os.Getenv("METRICS_ADDR"),
		Sites:   make(map[string]*SiteConfig),
	}

	loc, err := time.LoadLocation(getEnv("EVENT_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("event timezone: %w", err)
	}
	cfg.Location = loc

	if err := cfg.loadSiteConfigs(getEnv("SITES_DIR", "config/sites")); err != nil {
		return nil, err
	}
	if len(cfg.Sites) == 0 {
		return nil, fmt.Errorf("no site configs found")
	}

	if workers := getEnvInt("SCRAPE_WORKERS", 0); workers > 0 {
		for _, site := range cfg.Sites {
			site.ScrapeWorkers = workers
		}
	}

	return cfg, nil
}

func (c *Config) loadSiteConfigs(configDir string) error {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		site, err := ParseSiteConfig(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		c.Sites[site.ID] = site
	}

	return nil
}

// ParseSiteConfig decodes a site YAML document and fills in defaults.
func ParseSiteConfig(data []byte) (*SiteConfig, error) {
	var site SiteConfig
	if err := yaml.Unmarshal(data, &site); err != nil {
		return nil, err
	}
	if site.ID == "" {
		return nil, fmt.Errorf("site config missing id")
	}
	if site.BaseURL == "" {
		return nil, fmt.Errorf("site %s: missing base_url", site.ID)
	}
	site.applyDefaults()
	return &site, nil
}

func (s *SiteConfig) applyDefaults() {
	if s.Name == "" {
		s.Name = s.ID
	}
	if s.Handler == "" {
		s.Handler = "http"
	}
	if s.EventPath == "" {
		s.EventPath = defaultEventPath
	}
	if s.SitemapURL == "" {
		s.SitemapURL = s.BaseURL + "/sitemap.xml"
	}
	if s.UserAgent == "" {
		s.UserAgent = defaultUserAgent
	}
	if s.DiscoveryDelay <= 0 {
		s.DiscoveryDelay = defaultDiscoveryDelay
	}
	if s.ScrapeDelay <= 0 {
		s.ScrapeDelay = defaultScrapeDelay
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = DefaultFetchTimeout
	}
	if s.ScrapeWorkers <= 0 {
		s.ScrapeWorkers = 1
	}
	if s.BatchSize <= 0 || s.BatchSize > MaxBatchSize {
		s.BatchSize = MaxBatchSize
	}
}

// EventURL builds the page URL for an event slug.
func (s *SiteConfig) EventURL(slug string) string {
	return s.BaseURL + s.EventPath + slug
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
