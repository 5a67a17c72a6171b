package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds scraper configuration.
type Config struct {
	SiteBaseURL     string `env:"SCRAPER_SITE_BASE_URL"`
	ForumBaseURL    string `env:"SCRAPER_FORUM_BASE_URL"`
	RanksURL        string `env:"SCRAPER_RANKS_URL"`
	ModesURL        string `env:"SCRAPER_MODES_URL"`
	WeaponsURL      string `env:"SCRAPER_WEAPONS_URL"`
	ForumListingURL string `env:"SCRAPER_FORUM_LISTING_URL"`

	UserAgent        string        `env:"SCRAPER_USER_AGENT"`
	Accept           string        `env:"SCRAPER_ACCEPT"`
	DetailTimeout    time.Duration `env:"SCRAPER_DETAIL_TIMEOUT"`
	ListingTimeout   time.Duration `env:"SCRAPER_LISTING_TIMEOUT"`
	EventDelay       time.Duration `env:"SCRAPER_EVENT_DELAY"`
	HostRPS          float64       `env:"SCRAPER_HOST_RPS"` // 0 disables per-host limiting
	RankRetries      int           `env:"SCRAPER_RANK_RETRIES"`
	RetryBackoff     time.Duration `env:"SCRAPER_RETRY_BACKOFF"`
	RetryBackoffMax  time.Duration `env:"SCRAPER_RETRY_BACKOFF_MAX"`
	MaxBodySize      int           `env:"SCRAPER_MAX_BODY_SIZE"`
	RespectRobotsTxt bool          `env:"SCRAPER_RESPECT_ROBOTS"`

	AssetDir     string `env:"SCRAPER_ASSET_DIR"`
	AssetPrefix  string `env:"SCRAPER_ASSET_PREFIX"`
	ProfilesFile string `env:"SCRAPER_PROFILES_FILE"`

	OutputFile    string `env:"SCRAPER_OUTPUT"`
	OutputFormat  string `env:"SCRAPER_FORMAT"` // json, csv, dual or markdown
	Workers       int    `env:"SCRAPER_WORKERS"`
	BatchSize     int    `env:"SCRAPER_BATCH_SIZE"`
	DedupeMaxSize int    `env:"SCRAPER_DEDUPE_MAX_SIZE"`

	MetricsAddr string `env:"SCRAPER_METRICS_ADDR"`
	APIAddr     string `env:"SCRAPER_API_ADDR"`
	Verbose     bool   `env:"SCRAPER_VERBOSE"`
}

// DefaultConfig returns conservative defaults for the game site and its forum.
func DefaultConfig() *Config {
	return &Config{
		SiteBaseURL:      "https://game.example.com",
		ForumBaseURL:     "https://forum.example.com",
		RanksURL:         "https://game.example.com/ranks",
		ModesURL:         "https://game.example.com/modes",
		WeaponsURL:       "https://game.example.com/weapons",
		ForumListingURL:  "https://forum.example.com/categories/announcements",
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Accept:           "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		DetailTimeout:    15 * time.Second,
		ListingTimeout:   45 * time.Second,
		EventDelay:       500 * time.Millisecond,
		RankRetries:      1,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		MaxBodySize:      10 * 1024 * 1024,
		RespectRobotsTxt: false,
		AssetDir:         "public/assets",
		AssetPrefix:      "/assets/",
		OutputFile:       "output/scrape.jsonl",
		OutputFormat:     "json",
		Workers:          2,
		BatchSize:        32,
		DedupeMaxSize:    10000,
		MetricsAddr:      "",
		APIAddr:          ":8080",
		Verbose:          false,
	}
}

// Load returns DefaultConfig overridden by the process environment.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional

	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment config: %w", err)
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	urls := []struct {
		name  string
		value string
	}{
		{"site base URL", c.SiteBaseURL},
		{"forum base URL", c.ForumBaseURL},
		{"ranks URL", c.RanksURL},
		{"modes URL", c.ModesURL},
		{"weapons URL", c.WeaponsURL},
		{"forum listing URL", c.ForumListingURL},
	}
	for _, u := range urls {
		if err := validateAbsolute(u.name, u.value); err != nil {
			return err
		}
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.DetailTimeout <= 0 {
		return fmt.Errorf("detail timeout must be positive")
	}
	if c.ListingTimeout <= 0 {
		return fmt.Errorf("listing timeout must be positive")
	}
	if c.EventDelay < 0 {
		return fmt.Errorf("event delay cannot be negative")
	}
	if c.HostRPS < 0 {
		return fmt.Errorf("host rps cannot be negative")
	}
	if c.RankRetries < 0 {
		return fmt.Errorf("rank retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.MaxBodySize <= 0 {
		return fmt.Errorf("max body size must be positive")
	}
	if !strings.HasPrefix(c.AssetPrefix, "/") {
		return fmt.Errorf("asset prefix must start with /")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "json", "csv", "dual", "markdown":
	default:
		return fmt.Errorf("output format must be json, csv, dual, or markdown")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}

func validateAbsolute(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be absolute", name)
	}
	return nil
}
