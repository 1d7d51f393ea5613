// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/basket/internal/domain"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir          string          // Base directory for all databases (always absolute)
	Port             int             // HTTP API port
	LogLevel         string          // debug, info, warn, error
	DevMode          bool            // Pretty logging, relaxed CORS
	BaseCurrency     domain.Currency // Default accumulation currency for new baskets
	ConnectorURL     string          // Position connector HTTP base URL
	ConnectorWSURL   string          // Connector account-update stream URL (empty disables)
	RateCurrencies   []string        // Currencies kept warm by the rate sync job
	RateSyncSpec     string          // Cron spec for exchange-rate sync
	SnapshotSpec     string          // Cron spec for valuation snapshots
	CacheCleanupSpec string          // Cron spec for client data cache cleanup
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("BASKET_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	port := 8090
	if portStr := os.Getenv("BASKET_PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid BASKET_PORT %q: %w", portStr, err)
		}
		port = p
	}

	cfg := &Config{
		DataDir:          absDataDir,
		Port:             port,
		LogLevel:         getEnv("BASKET_LOG_LEVEL", "info"),
		DevMode:          os.Getenv("BASKET_DEV_MODE") == "true",
		BaseCurrency:     domain.Currency(getEnv("BASKET_BASE_CURRENCY", "USD")),
		ConnectorURL:     getEnv("CONNECTOR_URL", "http://localhost:8091"),
		ConnectorWSURL:   os.Getenv("CONNECTOR_WS_URL"),
		RateCurrencies:   splitList(getEnv("RATE_CURRENCIES", "USD,EUR,GBP")),
		RateSyncSpec:     getEnv("RATE_SYNC_SPEC", "@every 15m"),
		SnapshotSpec:     getEnv("SNAPSHOT_SPEC", "@every 5m"),
		CacheCleanupSpec: getEnv("CACHE_CLEANUP_SPEC", "@daily"),
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if the
// variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
