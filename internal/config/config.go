// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for the journal database (always absolute)
	Port          int
	DevMode       bool
	LogLevel      string
	WebhookSecret string // Shared secret the execution agent sends with every event

	// Trash retention
	TrashRetention time.Duration // How long trashed trades are kept before purge
	PurgeInterval  time.Duration // Minimum interval between purge runs

	// Object storage (screenshot deletion). Optional: when unset, screenshot
	// cleanup is skipped and rows are purged anyway.
	S3 *S3Config
}

// S3Config holds credentials for the S3-compatible bucket that stores trade
// screenshots.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRADEBOOK_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		Port:           getEnvAsInt("GO_PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
		TrashRetention: time.Duration(getEnvAsInt("TRASH_RETENTION_DAYS", 30)) * 24 * time.Hour,
		PurgeInterval:  time.Duration(getEnvAsInt("PURGE_INTERVAL_HOURS", 24)) * time.Hour,
		S3:             loadS3Config(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.TrashRetention <= 0 {
		return fmt.Errorf("trash retention must be positive, got %s", c.TrashRetention)
	}
	if c.PurgeInterval <= 0 {
		return fmt.Errorf("purge interval must be positive, got %s", c.PurgeInterval)
	}
	return nil
}

// loadS3Config loads object storage settings; returns nil when no bucket is
// configured so callers can treat screenshot cleanup as disabled.
func loadS3Config() *S3Config {
	bucket := getEnv("S3_BUCKET", "")
	if bucket == "" {
		return nil
	}

	return &S3Config{
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		Region:          getEnv("S3_REGION", "auto"),
		Bucket:          bucket,
		AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
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
