// Package config provides configuration loading for objectstore services:
// environment variables (with .env support), YAML files, and typed env-decoding.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level runtime configuration for an objectstore process.
// Fields are populated via envdecode tags; see LoadFromEnv.
type Config struct {
	Environment string `env:"OBJECTSTORE_ENV,default=development"`

	HTTPAddr string `env:"OBJECTSTORE_HTTP_ADDR,default=:8080"`

	DatabaseDSN        string `env:"OBJECTSTORE_DATABASE_DSN,required"`
	DatabaseMaxConns   int    `env:"OBJECTSTORE_DATABASE_MAX_CONNS,default=20"`
	DatabaseMaxIdle    int    `env:"OBJECTSTORE_DATABASE_MAX_IDLE,default=5"`
	DatabaseMigrations string `env:"OBJECTSTORE_DATABASE_MIGRATIONS,default=./migrations"`

	RedisAddr string `env:"OBJECTSTORE_REDIS_ADDR,default="`
	CacheTTL  time.Duration `env:"OBJECTSTORE_CACHE_TTL,default=30s"`

	JWTSigningKey string `env:"OBJECTSTORE_JWT_SIGNING_KEY,required"`
	JWTIssuer     string `env:"OBJECTSTORE_JWT_ISSUER,default=objectstore"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	MetricsEnabled bool `env:"OBJECTSTORE_METRICS_ENABLED,default=true"`

	NotificationChannel string `env:"OBJECTSTORE_NOTIFY_CHANNEL,default=object_events"`
}

// LoadFromEnv loads a .env file if present (ignored if absent), then decodes
// the process environment into a Config via envdecode struct tags.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// LoadYAML reads a YAML file and overlays it onto a zero-value Config.
// Used for non-secret, checked-in configuration (timeouts, feature toggles);
// secrets still come from the environment via LoadFromEnv.
func LoadYAML(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// =============================================================================
// Generic environment helpers (used outside the typed Config, e.g. by tests
// and by packages that must not import Config directly).
// =============================================================================

// GetEnv retrieves an environment variable with optional default.
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvBool retrieves a boolean environment variable with optional default.
// Accepts: "true", "1", "yes", "y" (case-insensitive) as true.
func GetEnvBool(key string, defaultValue bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	lower := strings.ToLower(val)
	return lower == "true" || lower == "1" || lower == "yes" || lower == "y"
}

// GetEnvInt retrieves an integer environment variable with optional default.
func GetEnvInt(key string, defaultValue int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseEnvDuration parses a duration from the environment variable with the given key.
func ParseEnvDuration(key string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// SplitAndTrimCSV splits a CSV string and trims each part. Empty values are filtered out.
func SplitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ParseDurationOrDefault parses a duration string or returns the default.
func ParseDurationOrDefault(raw string, defaultDuration time.Duration) time.Duration {
	if raw == "" {
		return defaultDuration
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return parsed
	}
	return defaultDuration
}
