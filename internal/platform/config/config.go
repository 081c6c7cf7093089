// Package config loads application configuration from environment
// variables. All variables use the STUDYQ_ prefix; a .env file in the
// working directory is picked up when present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Content  ContentConfig
	Progress ProgressConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL settings for the remote progress store.
// An empty URL disables the remote store entirely.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis settings for the local progress cache. An empty
// URL falls back to the file-backed cache.
type CacheConfig struct {
	URL string
}

// ContentConfig holds course content settings. Source is an HTTP base URL
// or a local directory holding <courseId>.json documents.
type ContentConfig struct {
	Source      string
	CatalogPath string
}

// ProgressConfig holds the file-backed local cache location.
type ProgressConfig struct {
	Dir string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("STUDYQ_SERVER_PORT", 8080),
			Host: envStr("STUDYQ_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("STUDYQ_DATABASE_URL", ""),
			MaxConns: envInt("STUDYQ_DATABASE_MAX_CONNS", 10),
			MinConns: envInt("STUDYQ_DATABASE_MIN_CONNS", 2),
		},
		Cache: CacheConfig{
			URL: envStr("STUDYQ_CACHE_URL", ""),
		},
		Content: ContentConfig{
			Source:      envStr("STUDYQ_CONTENT_SOURCE", "./content"),
			CatalogPath: envStr("STUDYQ_CONTENT_CATALOG", ""),
		},
		Progress: ProgressConfig{
			Dir: envStr("STUDYQ_PROGRESS_DIR", "./data/progress"),
		},
		Log: LogConfig{
			Level:  envStr("STUDYQ_LOG_LEVEL", "info"),
			Format: envStr("STUDYQ_LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("STUDYQ_SERVER_PORT must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Content.Source == "" {
		return fmt.Errorf("STUDYQ_CONTENT_SOURCE is required")
	}
	if c.Cache.URL == "" && c.Progress.Dir == "" {
		return fmt.Errorf("no local progress store configured")
	}
	return nil
}

// HasRemoteStore reports whether a remote progress store is configured.
func (c *Config) HasRemoteStore() bool {
	return c.Database.URL != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
