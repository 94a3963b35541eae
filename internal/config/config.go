// Package config provides application configuration loaded from environment
// variables with defaults and validation.
package config

import (
	"encoding/hex"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	BaseURL           string // public base URL used to build endpoint URLs
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// Logging
	LogLevel  string // debug|info|warn|error
	LogPretty bool   // pretty console logs in dev

	// Storage
	DatabasePath string
	// RetentionCap is the maximum number of captured requests kept per
	// endpoint. Older rows are evicted when a new capture would exceed it.
	RetentionCap int

	// Sessions
	SessionTTL   time.Duration
	CookieSecret string // HMAC key for the session cookie

	// EncryptionKey is the AES-256 key for payload encryption at rest,
	// hex encoded (64 characters).
	EncryptionKey string
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		BaseURL:           strings.TrimRight(getenv("BASE_URL", "http://localhost:8080"), "/"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		DatabasePath: getenv("DATABASE_PATH", "hookbin.db"),
		RetentionCap: getint("MAX_REQUESTS_PER_ENDPOINT", 100),

		SessionTTL:   getdur("SESSION_TTL", 24*time.Hour),
		CookieSecret: getenv("COOKIE_SECRET", ""),

		EncryptionKey: getenv("ENCRYPTION_KEY", ""),
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return cfg, errors.New("DATABASE_PATH must not be empty")
	}
	if cfg.RetentionCap < 1 {
		return cfg, errors.New("MAX_REQUESTS_PER_ENDPOINT must be >= 1")
	}
	if cfg.SessionTTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if cfg.CookieSecret == "" {
		return cfg, errors.New("COOKIE_SECRET is required")
	}
	if raw, err := hex.DecodeString(cfg.EncryptionKey); err != nil || len(raw) != 32 {
		return cfg, errors.New("ENCRYPTION_KEY must be 64 hex characters (a 32-byte AES key)")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
