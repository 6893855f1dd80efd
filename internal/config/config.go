// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/saxo-portfolio/internal/modules/market_hours"
	"github.com/aristath/saxo-portfolio/internal/modules/settings"
	"github.com/joho/godotenv"
)

// Token store backends
const (
	TokenStoreSQLite = "sqlite"
	TokenStoreRedis  = "redis"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the database (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int

	AppKey      string
	AppSecret   string
	RedirectURI string
	AccountKey  string // Identifies the stored token record
	Timezone    string // Market-hours timezone, or "any"

	// Endpoint overrides for the simulation environment; empty uses the live defaults
	APIBaseURL   string
	AuthorizeURL string
	TokenURL     string

	TokenStore string
	Redis      RedisConfig
}

// RedisConfig holds the Redis token store connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SAXO_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:     absDataDir,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", true),
		Port:        getEnvAsInt("GO_PORT", 8001),
		AppKey:      getEnv("SAXO_APP_KEY", ""),
		AppSecret:   getEnv("SAXO_APP_SECRET", ""),
		RedirectURI: getEnv("SAXO_REDIRECT_URI", ""),
		AccountKey:  getEnv("SAXO_ACCOUNT_KEY", "default"),
		Timezone:    getEnv("SAXO_TIMEZONE", "America/New_York"),
		TokenStore:  strings.ToLower(getEnv("TOKEN_STORE", TokenStoreSQLite)),

		APIBaseURL:   getEnv("SAXO_API_BASE_URL", ""),
		AuthorizeURL: getEnv("SAXO_AUTHORIZE_URL", ""),
		TokenURL:     getEnv("SAXO_TOKEN_URL", ""),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the sqlite file inside DataDir
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

// UpdateFromSettings updates configuration from settings database.
// Non-empty settings DB values take precedence over environment variables.
func (c *Config) UpdateFromSettings(settingsRepo *settings.Repository) error {
	overrides := []struct {
		key    string
		target *string
	}{
		{settings.KeyAppKey, &c.AppKey},
		{settings.KeyAppSecret, &c.AppSecret},
		{settings.KeyRedirectURI, &c.RedirectURI},
		{settings.KeyTimezone, &c.Timezone},
		{settings.KeyLogLevel, &c.LogLevel},
	}

	for _, o := range overrides {
		value, err := settingsRepo.Get(o.key)
		if err != nil {
			return fmt.Errorf("failed to get %s from settings: %w", o.key, err)
		}
		if value != nil && *value != "" {
			*o.target = *value
		}
	}

	return c.Validate()
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if !market_hours.IsSupported(c.Timezone) {
		return fmt.Errorf("unsupported timezone %q (use %q or one of %s)",
			c.Timezone, market_hours.Any, strings.Join(market_hours.Timezones(), ", "))
	}
	switch c.TokenStore {
	case TokenStoreSQLite:
	case TokenStoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis token store")
		}
	default:
		return fmt.Errorf("unknown token store %q", c.TokenStore)
	}
	if c.AccountKey == "" {
		return fmt.Errorf("account key must not be empty")
	}

	// App credentials may arrive later through the settings API
	return nil
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
