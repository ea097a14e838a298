package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestLoadDefaults(t *testing.T) {
	configPath := writeConfig(t, `
telegram_token: "test-token"
chat_id: 42
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.IntervalMinutes != 10 {
		t.Errorf("IntervalMinutes = %d, want %d", cfg.IntervalMinutes, 10)
	}
	if cfg.ImageSize != 500 {
		t.Errorf("ImageSize = %d, want %d", cfg.ImageSize, 500)
	}
	if cfg.CandidateLimit != 10 {
		t.Errorf("CandidateLimit = %d, want %d", cfg.CandidateLimit, 10)
	}
	if cfg.SampleLimit != 20 {
		t.Errorf("SampleLimit = %d, want %d", cfg.SampleLimit, 20)
	}
	if cfg.CacheLimit != 100 {
		t.Errorf("CacheLimit = %d, want %d", cfg.CacheLimit, 100)
	}
	if cfg.TagBudget != 100 {
		t.Errorf("TagBudget = %d, want %d", cfg.TagBudget, 100)
	}
	if cfg.FetchTimeoutSecs != 10 {
		t.Errorf("FetchTimeoutSecs = %d, want %d", cfg.FetchTimeoutSecs, 10)
	}
	if cfg.AttemptTimeoutSecs != 30 {
		t.Errorf("AttemptTimeoutSecs = %d, want %d", cfg.AttemptTimeoutSecs, 30)
	}
	if cfg.IngestTimeoutSecs != 60 {
		t.Errorf("IngestTimeoutSecs = %d, want %d", cfg.IngestTimeoutSecs, 60)
	}
	if cfg.MaxImageBytes != 5<<20 {
		t.Errorf("MaxImageBytes = %d, want %d", cfg.MaxImageBytes, 5<<20)
	}
	if cfg.RecencyWindowHours != 168 {
		t.Errorf("RecencyWindowHours = %d, want %d", cfg.RecencyWindowHours, 168)
	}
	if cfg.CommonsAPIURL != "https://commons.wikimedia.org" {
		t.Errorf("CommonsAPIURL = %q", cfg.CommonsAPIURL)
	}
	if cfg.ThumbnailAPIURL != "https://tools.wmflabs.org" {
		t.Errorf("ThumbnailAPIURL = %q", cfg.ThumbnailAPIURL)
	}
	if cfg.DBPath != "./commons-bot.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "./commons-bot.db")
	}
	if cfg.JournalPath != "./log.txt" {
		t.Errorf("JournalPath = %q, want %q", cfg.JournalPath, "./log.txt")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoadOverrideDefaults(t *testing.T) {
	configPath := writeConfig(t, `
telegram_token: "test-token"
chat_id: -100123
attribution: true
interval_minutes: 30
image_size: 800
sample_limit: 5
cache_limit: 50
tag_budget: 60
fetch_timeout_secs: 3
db_path: "/data/bot.db"
journal_path: "/data/log.txt"
log_level: "debug"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ChatID != -100123 {
		t.Errorf("ChatID = %d, want %d", cfg.ChatID, -100123)
	}
	if !cfg.Attribution {
		t.Error("Attribution = false, want true")
	}
	if cfg.IntervalMinutes != 30 {
		t.Errorf("IntervalMinutes = %d, want %d", cfg.IntervalMinutes, 30)
	}
	if cfg.ImageSize != 800 {
		t.Errorf("ImageSize = %d, want %d", cfg.ImageSize, 800)
	}
	if cfg.SampleLimit != 5 {
		t.Errorf("SampleLimit = %d, want %d", cfg.SampleLimit, 5)
	}
	if cfg.CacheLimit != 50 {
		t.Errorf("CacheLimit = %d, want %d", cfg.CacheLimit, 50)
	}
	if cfg.TagBudget != 60 {
		t.Errorf("TagBudget = %d, want %d", cfg.TagBudget, 60)
	}
	if cfg.FetchTimeoutSecs != 3 {
		t.Errorf("FetchTimeoutSecs = %d, want %d", cfg.FetchTimeoutSecs, 3)
	}
	if cfg.DBPath != "/data/bot.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/data/bot.db")
	}
	if cfg.JournalPath != "/data/log.txt" {
		t.Errorf("JournalPath = %q, want %q", cfg.JournalPath, "/data/log.txt")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadMissingTelegramToken(t *testing.T) {
	configPath := writeConfig(t, `
chat_id: 42
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for missing telegram_token")
	}
}

func TestLoadMissingChatID(t *testing.T) {
	configPath := writeConfig(t, `
telegram_token: "test-token"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for missing chat_id")
	}
}

func TestLoadDryRunNeedsNoCredentials(t *testing.T) {
	configPath := writeConfig(t, `
dry_run: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.DryRun {
		t.Error("DryRun = false, want true")
	}
}

func TestLoadRejectsNegativeLimits(t *testing.T) {
	tests := []struct {
		name  string
		field string
	}{
		{"interval", "interval_minutes: -1"},
		{"sample limit", "sample_limit: -5"},
		{"cache limit", "cache_limit: -100"},
		{"budget", "tag_budget: -1"},
		{"max image bytes", "max_image_bytes: -1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, "dry_run: true\n"+tt.field+"\n")
			if _, err := Load(configPath); err == nil {
				t.Errorf("expected error for %q", tt.field)
			}
		})
	}
}

func TestLoadRejectsRelativeURL(t *testing.T) {
	configPath := writeConfig(t, `
dry_run: true
commons_api_url: "commons.wikimedia.org"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected error for URL without scheme")
	}
}

func TestLoadInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
dry_run: true
log_level: "verbose"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected error for invalid log_level")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `invalid: yaml: content:`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestEnvironmentVariableOverride(t *testing.T) {
	configPath := writeConfig(t, `
telegram_token: "file-token"
chat_id: 42
db_path: "/original/path.db"
`)

	t.Setenv("COMMONS_BOT_DB", "/override/path.db")
	t.Setenv("COMMONS_BOT_TELEGRAM_TOKEN", "env-token")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "/override/path.db" {
		t.Errorf("DBPath = %q, want %q (from env)", cfg.DBPath, "/override/path.db")
	}
	if cfg.TelegramToken != "env-token" {
		t.Errorf("TelegramToken = %q, want %q (from env)", cfg.TelegramToken, "env-token")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("COMMONS_BOT_CONFIG", "")
	path := GetConfigPath()
	if path != "./config.yaml" {
		t.Errorf("GetConfigPath() = %q, want %q", path, "./config.yaml")
	}

	t.Setenv("COMMONS_BOT_CONFIG", "/custom/config.yaml")
	path = GetConfigPath()
	if path != "/custom/config.yaml" {
		t.Errorf("GetConfigPath() = %q, want %q", path, "/custom/config.yaml")
	}
}
