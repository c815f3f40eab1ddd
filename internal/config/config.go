// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CatalogSourceBackend = "backend"
	CatalogSourceSQLite  = "sqlite"
)

type Config struct {
	HTTPPort string

	BackendBaseURL string
	BackendToken   string
	BackendTimeout time.Duration

	CatalogSource          string
	CatalogDBPath          string
	CatalogScope           string
	CatalogPageSize        int
	CatalogCacheTTL        time.Duration
	CatalogRefreshInterval time.Duration

	RedisAddr     string
	RedisPassword string

	KafkaBrokers       []string
	SettlementTopic    string
	CatalogEventsTopic string
	CatalogEventsGroup string

	RequestTimeout  time.Duration
	CommitTimeout   time.Duration
	ShutdownTimeout time.Duration
	SessionIdleTTL  time.Duration

	LogLevel       string
	LogDevelopment bool
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		BackendBaseURL:  getEnv("BACKEND_BASE_URL", "http://localhost:8000/api"),
		BackendToken:    getEnv("BACKEND_TOKEN", ""),
		CatalogSource:   strings.ToLower(getEnv("CATALOG_SOURCE", CatalogSourceBackend)),
		CatalogDBPath:   getEnv("CATALOG_DB_PATH", "./catalog.db"),
		CatalogScope:    getEnv("CATALOG_SCOPE", "default"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "")),
		SettlementTopic: getEnv("SETTLEMENT_TOPIC", "pos-settlements"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	cfg.CatalogEventsTopic = getEnv("CATALOG_EVENTS_TOPIC", "catalog-updates")
	cfg.CatalogEventsGroup = getEnv("CATALOG_EVENTS_GROUP", defaultEventsGroup())

	var err error
	if cfg.CatalogPageSize, err = getInt("CATALOG_PAGE_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.LogDevelopment, err = getBool("LOG_DEVELOPMENT", false); err != nil {
		return nil, err
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"BACKEND_TIMEOUT", 10 * time.Second, &cfg.BackendTimeout},
		{"CATALOG_CACHE_TTL", 15 * time.Minute, &cfg.CatalogCacheTTL},
		{"CATALOG_REFRESH_INTERVAL", time.Minute, &cfg.CatalogRefreshInterval},
		{"REQUEST_TIMEOUT", 10 * time.Second, &cfg.RequestTimeout},
		{"COMMIT_TIMEOUT", 15 * time.Second, &cfg.CommitTimeout},
		{"SHUTDOWN_TIMEOUT", 10 * time.Second, &cfg.ShutdownTimeout},
		{"SESSION_IDLE_TTL", 8 * time.Hour, &cfg.SessionIdleTTL},
	}
	for _, d := range durations {
		if *d.dest, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.CatalogSource {
	case CatalogSourceBackend, CatalogSourceSQLite:
	default:
		return fmt.Errorf("CATALOG_SOURCE must be %q or %q, got %q", CatalogSourceBackend, CatalogSourceSQLite, c.CatalogSource)
	}
	if c.CatalogPageSize <= 0 {
		return fmt.Errorf("CATALOG_PAGE_SIZE must be positive, got %d", c.CatalogPageSize)
	}
	if c.BackendBaseURL == "" {
		return errors.New("BACKEND_BASE_URL is required to commit transactions")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

// defaultEventsGroup is unique per host so every instance sees every
// catalog event.
func defaultEventsGroup() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "pos-session"
	}
	return "pos-session-" + host
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
