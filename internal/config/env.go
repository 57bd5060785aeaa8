package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// DocumentConfig describes the PDF to serve and how to render it.
type DocumentConfig struct {
	// Ref is a path, file://, http(s):// or s3:// reference.
	Ref      string
	Password string
	DPI      int
	Quality  int
	// ColorMode is "rgb" or "gray".
	ColorMode string
	// SplitPages shows each physical page as two facing half-page slots.
	SplitPages bool
	// InlineMaxBytes caps inline data-URL payloads; larger renders spill to disk.
	InlineMaxBytes int
}

// SchedulerConfig tunes the preload policy.
type SchedulerConfig struct {
	Window          int
	Ahead           int
	BatchSize       int
	BackgroundDelay time.Duration
	MaxRenders      int
}

// WebConfig defines the HTTP surface.
type WebConfig struct {
	Port string
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Document  DocumentConfig
	Scheduler SchedulerConfig
	Web       WebConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/flipbook.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_flipbook",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	// Document defaults
	cfg.Document = DocumentConfig{
		Ref:            getEnv("DOC_REF", ""),
		Password:       getEnv("DOC_PASSWORD", ""),
		DPI:            parseInt(getEnv("DOC_DPI", "144"), 144),
		Quality:        parseInt(getEnv("DOC_QUALITY", "85"), 85),
		ColorMode:      strings.ToLower(getEnv("DOC_COLOR_MODE", "rgb")),
		SplitPages:     parseBool(getEnv("DOC_SPLIT_PAGES", "0")),
		InlineMaxBytes: parseInt(getEnv("DOC_INLINE_MAX_BYTES", "1048576"), 1<<20),
	}

	// Scheduler defaults
	cfg.Scheduler = SchedulerConfig{
		Window:          parseInt(getEnv("SCHED_WINDOW", "2"), 2),
		Ahead:           parseInt(getEnv("SCHED_AHEAD", "1"), 1),
		BatchSize:       parseInt(getEnv("SCHED_BATCH_SIZE", "4"), 4),
		BackgroundDelay: parseDuration(getEnv("SCHED_BACKGROUND_DELAY", "150ms"), 150*time.Millisecond),
		MaxRenders:      parseInt(getEnv("SCHED_MAX_RENDERS", "2"), 2),
	}

	// Web defaults
	cfg.Web = WebConfig{
		Port: getEnv("PORT", "8080"),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
