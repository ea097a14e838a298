package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	TelegramToken string `yaml:"telegram_token"`
	ChatID        int64  `yaml:"chat_id"`
	DryRun        bool   `yaml:"dry_run"`
	Attribution   bool   `yaml:"attribution"`

	IntervalMinutes int    `yaml:"interval_minutes"`
	ImageSize       int    `yaml:"image_size"`
	CandidateLimit  int    `yaml:"candidate_limit"`
	UserAgent       string `yaml:"user_agent"`
	CommonsAPIURL   string `yaml:"commons_api_url"`
	ThumbnailAPIURL string `yaml:"thumbnail_api_url"`
	FirehoseURL     string `yaml:"firehose_url"`

	SampleLimit int `yaml:"sample_limit"`
	CacheLimit  int `yaml:"cache_limit"`
	TagBudget   int `yaml:"tag_budget"`

	FetchTimeoutSecs   int   `yaml:"fetch_timeout_secs"`
	AttemptTimeoutSecs int   `yaml:"attempt_timeout_secs"`
	IngestTimeoutSecs  int   `yaml:"ingest_timeout_secs"`
	MaxImageBytes      int64 `yaml:"max_image_bytes"`
	RecencyWindowHours int   `yaml:"recency_window_hours"`

	DBPath      string `yaml:"db_path"`
	JournalPath string `yaml:"journal_path"`
	LogLevel    string `yaml:"log_level"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("COMMONS_BOT_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

func applyDefaults(cfg *Config) {
	if cfg.IntervalMinutes == 0 {
		cfg.IntervalMinutes = 10
	}
	if cfg.ImageSize == 0 {
		cfg.ImageSize = 500
	}
	if cfg.CandidateLimit == 0 {
		cfg.CandidateLimit = 10
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "CommonsTagBot/1.0 (+https://commons.wikimedia.org)"
	}
	if cfg.CommonsAPIURL == "" {
		cfg.CommonsAPIURL = "https://commons.wikimedia.org"
	}
	if cfg.ThumbnailAPIURL == "" {
		cfg.ThumbnailAPIURL = "https://tools.wmflabs.org"
	}
	if cfg.FirehoseURL == "" {
		cfg.FirehoseURL = "wss://jetstream2.us-east.bsky.network/subscribe?wantedCollections=app.bsky.feed.post"
	}
	if cfg.SampleLimit == 0 {
		cfg.SampleLimit = 20
	}
	if cfg.CacheLimit == 0 {
		cfg.CacheLimit = 100
	}
	if cfg.TagBudget == 0 {
		cfg.TagBudget = 100
	}
	if cfg.FetchTimeoutSecs == 0 {
		cfg.FetchTimeoutSecs = 10
	}
	if cfg.AttemptTimeoutSecs == 0 {
		cfg.AttemptTimeoutSecs = 30
	}
	if cfg.IngestTimeoutSecs == 0 {
		cfg.IngestTimeoutSecs = 60
	}
	if cfg.MaxImageBytes == 0 {
		cfg.MaxImageBytes = 5 << 20
	}
	if cfg.RecencyWindowHours == 0 {
		cfg.RecencyWindowHours = 7 * 24
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./commons-bot.db"
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = "./log.txt"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if dbPath := os.Getenv("COMMONS_BOT_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if token := os.Getenv("COMMONS_BOT_TELEGRAM_TOKEN"); token != "" {
		cfg.TelegramToken = token
	}
}

func validate(cfg *Config) error {
	if !cfg.DryRun {
		if cfg.TelegramToken == "" {
			return fmt.Errorf("telegram_token is required unless dry_run is set")
		}
		if cfg.ChatID == 0 {
			return fmt.Errorf("chat_id is required unless dry_run is set")
		}
	}

	positive := map[string]int{
		"interval_minutes":     cfg.IntervalMinutes,
		"image_size":           cfg.ImageSize,
		"candidate_limit":      cfg.CandidateLimit,
		"sample_limit":         cfg.SampleLimit,
		"cache_limit":          cfg.CacheLimit,
		"tag_budget":           cfg.TagBudget,
		"fetch_timeout_secs":   cfg.FetchTimeoutSecs,
		"attempt_timeout_secs": cfg.AttemptTimeoutSecs,
		"ingest_timeout_secs":  cfg.IngestTimeoutSecs,
		"recency_window_hours": cfg.RecencyWindowHours,
	}
	for name, v := range positive {
		if v < 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if cfg.MaxImageBytes < 0 {
		return fmt.Errorf("max_image_bytes must be positive, got %d", cfg.MaxImageBytes)
	}

	for name, raw := range map[string]string{
		"commons_api_url":   cfg.CommonsAPIURL,
		"thumbnail_api_url": cfg.ThumbnailAPIURL,
		"firehose_url":      cfg.FirehoseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	return nil
}
