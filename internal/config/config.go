// Package config handles client configuration loading from an optional YAML
// file and environment variables. It provides a centralized Config struct
// used by the peablog command.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Storage backends for the persisted credential.
const (
	StorageFile   = "file"
	StorageValkey = "valkey"
	StorageMemory = "memory"
)

// Config holds all client configuration values.
type Config struct {
	// Content service
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout"`
	Env     string        `yaml:"env"` // "development", "production", "testing"

	// Durable storage
	Storage    string `yaml:"storage"`
	StateDir   string `yaml:"state_dir"`
	StorageKey string `yaml:"storage_key"` // seals the file store when set
	Profile    string `yaml:"profile"`

	// Valkey (Redis-compatible store)
	ValkeyHost     string `yaml:"valkey_host"`
	ValkeyPort     string `yaml:"valkey_port"`
	ValkeyPassword string `yaml:"valkey_password"`
	ValkeyDB       int    `yaml:"valkey_db"`

	// Outgoing request throttling; 0 disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	Timezone    string `yaml:"timezone"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // "text" or "json"
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads the optional YAML file named by PEABLOG_CONFIG (default
// <state dir>/config.yaml), then applies environment variables on top of it.
// A missing default file is not an error; a missing explicit one is.
func Load() (*Config, error) {
	cfg := &Config{
		APIURL:     "http://localhost:8080/api",
		Timeout:    10 * time.Second,
		Env:        "development",
		Storage:    StorageFile,
		StateDir:   defaultStateDir(),
		Profile:    "default",
		ValkeyHost: "localhost",
		ValkeyPort: "6379",
		RateBurst:  1,
		LogLevel:   "info",
		LogFormat:  "text",
	}

	path, explicit := os.LookupEnv("PEABLOG_CONFIG")
	if !explicit || path == "" {
		path = filepath.Join(envOrDefault("PEABLOG_STATE_DIR", cfg.StateDir), "config.yaml")
		explicit = false
	}
	if err := cfg.readFile(path, explicit); err != nil {
		return nil, err
	}

	cfg.APIURL = envOrDefault("PEABLOG_API_URL", cfg.APIURL)
	cfg.Env = envOrDefault("PEABLOG_ENV", cfg.Env)
	cfg.Storage = envOrDefault("PEABLOG_STORAGE", cfg.Storage)
	cfg.StateDir = envOrDefault("PEABLOG_STATE_DIR", cfg.StateDir)
	cfg.StorageKey = envOrDefault("PEABLOG_STORAGE_KEY", cfg.StorageKey)
	cfg.Profile = envOrDefault("PEABLOG_PROFILE", cfg.Profile)
	cfg.ValkeyHost = envOrDefault("VALKEY_HOST", cfg.ValkeyHost)
	cfg.ValkeyPort = envOrDefault("VALKEY_PORT", cfg.ValkeyPort)
	cfg.ValkeyPassword = envOrDefault("VALKEY_PASSWORD", cfg.ValkeyPassword)
	cfg.Timezone = envOrDefault("PEABLOG_TIMEZONE", cfg.Timezone)
	cfg.LogLevel = envOrDefault("PEABLOG_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("PEABLOG_LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsAddr = envOrDefault("PEABLOG_METRICS_ADDR", cfg.MetricsAddr)

	var err error
	if v := os.Getenv("PEABLOG_TIMEOUT"); v != "" {
		if cfg.Timeout, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("PEABLOG_TIMEOUT: %w", err)
		}
	}
	if v := os.Getenv("VALKEY_DB"); v != "" {
		if cfg.ValkeyDB, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("VALKEY_DB: %w", err)
		}
	}
	if v := os.Getenv("PEABLOG_RATE_LIMIT"); v != "" {
		if cfg.RateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("PEABLOG_RATE_LIMIT: %w", err)
		}
	}
	if v := os.Getenv("PEABLOG_RATE_BURST"); v != "" {
		if cfg.RateBurst, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("PEABLOG_RATE_BURST: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid api url %q", c.APIURL)
	}
	if c.Env == "production" && u.Scheme != "https" {
		return fmt.Errorf("PEABLOG_API_URL must use https in production")
	}
	switch c.Storage {
	case StorageFile, StorageValkey, StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

// StatePath returns the file backing the file storage backend.
func (c *Config) StatePath() string {
	return filepath.Join(c.StateDir, c.Profile+".json")
}

// Location resolves Timezone, falling back to the local zone when empty.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Limiter returns the outgoing request limiter, or nil when throttling is off.
func (c *Config) Limiter() *rate.Limiter {
	if c.RateLimit <= 0 {
		return nil
	}
	burst := c.RateBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.RateLimit), burst)
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsDev returns true if the client is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "peablog")
	}
	return ".peablog"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
