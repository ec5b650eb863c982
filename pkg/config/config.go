package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Only this package reads environment variables.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Pipeline
	StorageRoot string // partition store root directory
	RulesDir    string // validation rule set directory (YAML, one file per dataset)

	// Report archive (optional)
	Database DatabaseConfig

	// Collection checkpoints (optional)
	Redis RedisConfig

	// Data providers
	PJM  PJMConfig
	NOAA NOAAConfig
	EIA  EIAConfig

	// Shared retry policy for provider requests
	Retry RetryConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration for the quality-report
// archive. The archive is disabled when URL is empty.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether the report archive is configured.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// RedisConfig holds Redis configuration for collection checkpoints.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// RateLimitConfig bounds outbound requests to one provider.
type RateLimitConfig struct {
	Limit  int           // requests allowed per window
	Window time.Duration // sliding window duration
	Burst  int           // burst allowance
}

// RetryConfig holds the provider request retry policy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	JitterFrac  float64 // jitter as a fraction of the computed delay, [0,1]
	MaxDelay    time.Duration
}

// PJMConfig holds PJM Data Miner API configuration.
type PJMConfig struct {
	BaseURL         string
	SubscriptionKey string
	RowCount        int // page size for offset pagination
	Workers         int // concurrent sub-range fetches
	RateLimit       RateLimitConfig
}

// NOAAConfig holds NOAA Climate Data Online API configuration.
type NOAAConfig struct {
	BaseURL   string
	Token     string
	Stations  []string // GHCND station ids to iterate per window
	PageLimit int
	Workers   int
	RateLimit RateLimitConfig
}

// EIAConfig holds EIA v2 API configuration.
type EIAConfig struct {
	BaseURL   string
	APIKey    string
	Series    []string // fuel series facet values
	Regions   []string // region facet values
	Workers   int
	RateLimit RateLimitConfig
}

// Load reads configuration from environment variables.
// Only this function calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		StorageRoot: getEnv("STORAGE_ROOT", "data/partitions"),
		RulesDir:    getEnv("RULES_DIR", "config/rules"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		PJM: PJMConfig{
			BaseURL:         getEnv("PJM_BASE_URL", "https://api.pjm.com/api/v1"),
			SubscriptionKey: getEnv("PJM_SUBSCRIPTION_KEY", ""),
			RowCount:        getEnvAsInt("PJM_ROW_COUNT", 50000),
			Workers:         getEnvAsInt("PJM_WORKERS", 2),
			RateLimit: RateLimitConfig{
				Limit:  getEnvAsInt("PJM_RATE_LIMIT", 6),
				Window: getEnvAsDuration("PJM_RATE_WINDOW", "1m"),
				Burst:  getEnvAsInt("PJM_RATE_BURST", 1),
			},
		},

		NOAA: NOAAConfig{
			BaseURL:   getEnv("NOAA_BASE_URL", "https://www.ncei.noaa.gov/cdo-web/api/v2"),
			Token:     getEnv("NOAA_TOKEN", ""),
			Stations:  getEnvAsList("NOAA_STATIONS", "GHCND:USW00013739"),
			PageLimit: getEnvAsInt("NOAA_PAGE_LIMIT", 1000),
			Workers:   getEnvAsInt("NOAA_WORKERS", 2),
			RateLimit: RateLimitConfig{
				Limit:  getEnvAsInt("NOAA_RATE_LIMIT", 5),
				Window: getEnvAsDuration("NOAA_RATE_WINDOW", "1s"),
				Burst:  getEnvAsInt("NOAA_RATE_BURST", 1),
			},
		},

		EIA: EIAConfig{
			BaseURL: getEnv("EIA_BASE_URL", "https://api.eia.gov/v2"),
			APIKey:  getEnv("EIA_API_KEY", ""),
			Series:  getEnvAsList("EIA_SERIES", "NG,COAL"),
			Regions: getEnvAsList("EIA_REGIONS", "PJM"),
			Workers: getEnvAsInt("EIA_WORKERS", 2),
			RateLimit: RateLimitConfig{
				Limit:  getEnvAsInt("EIA_RATE_LIMIT", 5),
				Window: getEnvAsDuration("EIA_RATE_WINDOW", "1s"),
				Burst:  getEnvAsInt("EIA_RATE_BURST", 1),
			},
		},

		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 4),
			BaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", "500ms"),
			Multiplier:  getEnvAsFloat("RETRY_MULTIPLIER", 2.0),
			JitterFrac:  getEnvAsFloat("RETRY_JITTER_FRAC", 0.2),
			MaxDelay:    getEnvAsDuration("RETRY_MAX_DELAY", "30s"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks required configuration values.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.StorageRoot == "" {
		return fmt.Errorf("STORAGE_ROOT is required")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if c.Retry.Multiplier < 1.0 {
		return fmt.Errorf("RETRY_MULTIPLIER must be >= 1.0")
	}
	if c.Retry.JitterFrac < 0 || c.Retry.JitterFrac > 1 {
		return fmt.Errorf("RETRY_JITTER_FRAC must be in [0,1]")
	}

	for _, rl := range []struct {
		name string
		cfg  RateLimitConfig
	}{
		{"PJM", c.PJM.RateLimit},
		{"NOAA", c.NOAA.RateLimit},
		{"EIA", c.EIA.RateLimit},
	} {
		if rl.cfg.Limit < 1 || rl.cfg.Window <= 0 {
			return fmt.Errorf("%s rate limit requires a positive limit and window", rl.name)
		}
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsList(key string, defaultValue string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
