// Package config loads the settings of the pcs server and commands from the
// environment, after loading a .env file when one exists.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/etnz/portfolio-tracker/logger"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Config holds application configuration
type Config struct {
	DB               string // sqlite database path
	Port             int
	LogLevel         string
	LogPretty        bool
	CacheTTL         time.Duration // zero disables the holdings cache
	CacheCleanup     time.Duration
	SnapshotAttempts int
	AppendAttempts   int
	AutoTradeCash    bool
	WarmSchedule     string // cron spec, empty disables warming
	CORSOrigins      []string
	Portfolio        string // default portfolio of the commands
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	defaults := portfolio.DefaultOptions()
	cfg := &Config{
		DB:               getEnv("PCS_DB", "portfolio.db"),
		Port:             getEnvAsInt("PCS_PORT", 8080),
		LogLevel:         getEnv("PCS_LOG_LEVEL", "info"),
		LogPretty:        getEnvAsBool("PCS_LOG_PRETTY", false),
		CacheTTL:         getEnvAsDuration("PCS_CACHE_TTL", defaults.CacheTTL),
		CacheCleanup:     getEnvAsDuration("PCS_CACHE_CLEANUP", defaults.CacheCleanup),
		SnapshotAttempts: getEnvAsInt("PCS_SNAPSHOT_ATTEMPTS", defaults.SnapshotAttempts),
		AppendAttempts:   getEnvAsInt("PCS_APPEND_ATTEMPTS", defaults.AppendAttempts),
		AutoTradeCash:    getEnvAsBool("PCS_AUTO_TRADE_CASH", defaults.AutoTradeCash),
		WarmSchedule:     getEnv("PCS_WARM_SCHEDULE", "@every 15m"),
		CORSOrigins:      getEnvAsList("PCS_CORS_ORIGINS", []string{"*"}),
		Portfolio:        getEnv("PCS_PORTFOLIO", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out of range values.
func (c *Config) Validate() error {
	switch {
	case c.DB == "":
		return fmt.Errorf("PCS_DB is required")
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("PCS_PORT must be in [1, 65535], got %d", c.Port)
	case c.CacheTTL < 0:
		return fmt.Errorf("PCS_CACHE_TTL must not be negative, got %s", c.CacheTTL)
	case c.CacheCleanup < 0:
		return fmt.Errorf("PCS_CACHE_CLEANUP must not be negative, got %s", c.CacheCleanup)
	case c.SnapshotAttempts < 1:
		return fmt.Errorf("PCS_SNAPSHOT_ATTEMPTS must be at least 1, got %d", c.SnapshotAttempts)
	case c.AppendAttempts < 1:
		return fmt.Errorf("PCS_APPEND_ATTEMPTS must be at least 1, got %d", c.AppendAttempts)
	}
	if c.WarmSchedule != "" {
		if _, err := cron.ParseStandard(c.WarmSchedule); err != nil {
			return fmt.Errorf("invalid PCS_WARM_SCHEDULE %q: %w", c.WarmSchedule, err)
		}
	}
	return nil
}

// Logger builds the logger configured by c.
func (c *Config) Logger() zerolog.Logger {
	return logger.New(logger.Config{Level: c.LogLevel, Pretty: c.LogPretty})
}

// EngineOptions returns the engine options configured by c.
func (c *Config) EngineOptions(log zerolog.Logger) portfolio.Options {
	return portfolio.Options{
		SnapshotAttempts: c.SnapshotAttempts,
		AppendAttempts:   c.AppendAttempts,
		AutoTradeCash:    c.AutoTradeCash,
		CacheTTL:         c.CacheTTL,
		CacheCleanup:     c.CacheCleanup,
		Logger:           log,
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var res []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			res = append(res, v)
		}
	}
	return res
}
