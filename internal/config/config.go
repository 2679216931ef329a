package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DBType            string // mysql, postgres, sqlite, sqlserver, etc.
	DBHost            string
	DBPort            string
	DBDatabase        string
	DBUser            string
	DBPassword        string
	DBConnectionLimit int

	// Airtable configuration
	AirtableAPIURL string

	// Webhook ingress
	WebhookSecret string

	// Sync tuning
	SyncBatchSize  int
	SyncBatchDelay time.Duration
	SyncPageDelay  time.Duration
	SyncRetryDelay time.Duration
	MaxSyncRetries int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "3000"),
		DBType:            getEnv("DB_TYPE", "mysql"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "3306"),
		DBDatabase:        getEnv("DB_DATABASE", ""),
		DBUser:            getEnv("DB_USER", ""),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBConnectionLimit: getEnvAsInt("DB_CONNECTION_LIMIT", 5),
		AirtableAPIURL:    getEnv("AIRTABLE_API_URL", "https://api.airtable.com"),
		WebhookSecret:     getEnv("WEBHOOK_SECRET", ""),
		SyncBatchSize:     getEnvAsInt("SYNC_BATCH_SIZE", 10),
		SyncBatchDelay:    getEnvAsDuration("SYNC_BATCH_DELAY", 100*time.Millisecond),
		SyncPageDelay:     getEnvAsDuration("SYNC_PAGE_DELAY", 200*time.Millisecond),
		SyncRetryDelay:    getEnvAsDuration("SYNC_RETRY_DELAY", 50*time.Millisecond),
		MaxSyncRetries:    getEnvAsInt("MAX_SYNC_RETRIES", 3),
	}

	// Validate required fields
	if cfg.DBDatabase == "" {
		return nil, fmt.Errorf("DB_DATABASE is required")
	}
	if cfg.DBUser == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
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

// getEnvAsDuration gets an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
