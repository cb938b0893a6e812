// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/brokerwatch/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the database and backup staging (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	CORSAllowedOrigins []string // empty allows any origin

	TokenRefreshThreshold time.Duration
	Loops                 LoopConfig

	BrokerRequestsPerSecond float64
	BrokerTimeout           time.Duration
	KISPaperURL             string
	KISLiveURL              string
	LSPaperURL              string
	LSLiveURL               string

	CredentialKey string // empty stores secrets in plaintext

	MarketHolidays []string // extra KRX closures (YYYY-MM-DD) on top of the built-in calendar

	NotifyCooldown time.Duration

	MaintenanceSchedule string
	Backup              BackupConfig
}

// LoopConfig holds the background loop timings
type LoopConfig struct {
	Tick                  time.Duration
	TokenInterval         time.Duration
	BalanceInterval       time.Duration
	IntradayEnabled       bool
	IntradayInterval      time.Duration
	DailyTradesSchedule   string
	DailyTradesWindowDays int
}

// BackupConfig holds offsite backup settings
type BackupConfig struct {
	Enabled         bool
	Schedule        string
	Keep            int
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("BROKERWATCH_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: utils.ParseCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		TokenRefreshThreshold: getEnvAsDuration("TOKEN_REFRESH_THRESHOLD", 30*time.Minute),
		Loops: LoopConfig{
			Tick:                  getEnvAsDuration("LOOP_TICK", 5*time.Second),
			TokenInterval:         getEnvAsDuration("TOKEN_CHECK_INTERVAL", 60*time.Second),
			BalanceInterval:       getEnvAsDuration("BALANCE_CHECK_INTERVAL", 60*time.Second),
			IntradayEnabled:       getEnvAsBool("INTRADAY_ENABLED", true),
			IntradayInterval:      getEnvAsDuration("INTRADAY_INTERVAL", 20*time.Second),
			DailyTradesSchedule:   getEnv("DAILY_TRADES_SCHEDULE", "0 0 3 * * *"),
			DailyTradesWindowDays: getEnvAsInt("DAILY_TRADES_WINDOW_DAYS", 7),
		},

		BrokerRequestsPerSecond: getEnvAsFloat("BROKER_REQUESTS_PER_SECOND", 15),
		BrokerTimeout:           getEnvAsDuration("BROKER_TIMEOUT", 10*time.Second),
		KISPaperURL:             getEnv("KIS_PAPER_URL", ""),
		KISLiveURL:              getEnv("KIS_LIVE_URL", ""),
		LSPaperURL:              getEnv("LS_PAPER_URL", ""),
		LSLiveURL:               getEnv("LS_LIVE_URL", ""),

		CredentialKey:  getEnv("CREDENTIAL_KEY", ""),
		MarketHolidays: utils.ParseCSV(getEnv("MARKET_HOLIDAYS", "")),
		NotifyCooldown: getEnvAsDuration("NOTIFY_COOLDOWN", 30*time.Minute),

		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 30 2 * * *"),
		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 4 * * *"),
			Keep:            getEnvAsInt("BACKUP_KEEP", 14),
			Bucket:          getEnv("S3_BUCKET", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "auto"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("S3_PREFIX", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	var problems []string
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT %d out of range", c.Port))
	}
	if c.TokenRefreshThreshold <= 0 {
		problems = append(problems, "TOKEN_REFRESH_THRESHOLD must be positive")
	}
	if c.Loops.Tick <= 0 || c.Loops.TokenInterval <= 0 || c.Loops.BalanceInterval <= 0 || c.Loops.IntradayInterval <= 0 {
		problems = append(problems, "loop intervals must be positive")
	}
	if c.Loops.DailyTradesWindowDays < 1 {
		problems = append(problems, "DAILY_TRADES_WINDOW_DAYS must be at least 1")
	}
	if c.BrokerRequestsPerSecond < 0 {
		problems = append(problems, "BROKER_REQUESTS_PER_SECOND must not be negative")
	}
	if c.Backup.Enabled {
		if c.Backup.Bucket == "" {
			problems = append(problems, "S3_BUCKET is required when BACKUP_ENABLED")
		}
		if (c.Backup.AccessKeyID == "") != (c.Backup.SecretAccessKey == "") {
			problems = append(problems, "S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
		}
		if c.Backup.Keep < 1 {
			problems = append(problems, "BACKUP_KEEP must be at least 1")
		}
	}
	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
