// Package config provides application configuration management.
// It loads settings from environment variables (optionally from a .env
// file) and validates them for server or warmup mode.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ValidationMode selects which settings are required.
type ValidationMode int

const (
	// ServerMode requires LINE credentials.
	ServerMode ValidationMode = iota
	// WarmupMode only needs data and scraper settings.
	WarmupMode
)

// String returns the mode name.
func (m ValidationMode) String() string {
	if m == WarmupMode {
		return "warmup"
	}
	return "server"
}

// Config holds all application configuration
type Config struct {
	// LINE Bot Configuration
	LineChannelToken  string
	LineChannelSecret string

	// Metrics Authentication
	MetricsUsername string // Username for /metrics Basic Auth (default: "prometheus")
	MetricsPassword string // Password for /metrics Basic Auth (empty = no auth)

	// Server Configuration
	Port            string
	LogLevel        string
	ServerName      string
	ShutdownTimeout time.Duration

	// Data Configuration
	DataDir string

	// Scraper Configuration
	ScraperTimeout    time.Duration
	ScraperMaxRetries int
	ScraperBaseURLs   map[string][]string

	// Background tasks
	WarmupGracePeriod      time.Duration // how long the webhook waits for the directory before serving anyway
	StickerRefreshInterval time.Duration

	Directory   DirectoryConfig
	Bot         BotConfig
	R2          R2Config
	Sentry      SentryConfig
	BetterStack BetterStackConfig
}

// BotConfig holds bot-specific configuration
type BotConfig struct {
	WebhookTimeout time.Duration // Timeout for processing one webhook batch

	// Rate Limits (Token Bucket Algorithm)
	UserRateLimitBurst        float64 // Maximum burst tokens per user (default: 15)
	UserRateLimitRefillPerSec float64 // Tokens refilled per second (default: 0.1 = 1 per 10s)
	GlobalRateLimitRPS        float64 // Global LINE API calls per second (default: 100)

	// LINE API Constraints
	MaxMessagesPerReply int
	MaxEventsPerWebhook int
	MinReplyTokenLength int
	MaxMessageLength    int
	MaxPostbackDataSize int
}

// Validate checks the bot limits.
func (c *BotConfig) Validate() error {
	var errs []error
	if c.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %v", c.WebhookTimeout))
	}
	if c.UserRateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("USER_RATE_BURST must be positive, got %v", c.UserRateLimitBurst))
	}
	if c.UserRateLimitRefillPerSec <= 0 {
		errs = append(errs, fmt.Errorf("USER_RATE_REFILL must be positive, got %v", c.UserRateLimitRefillPerSec))
	}
	if c.GlobalRateLimitRPS <= 0 {
		errs = append(errs, fmt.Errorf("GLOBAL_RATE_RPS must be positive, got %v", c.GlobalRateLimitRPS))
	}
	if c.MaxMessagesPerReply < 1 || c.MaxMessagesPerReply > LINEMaxMessagesPerReply {
		errs = append(errs, fmt.Errorf("max messages per reply must be 1-%d, got %d", LINEMaxMessagesPerReply, c.MaxMessagesPerReply))
	}
	if c.MaxEventsPerWebhook < 1 {
		errs = append(errs, fmt.Errorf("max events per webhook must be positive, got %d", c.MaxEventsPerWebhook))
	}
	return errors.Join(errs...)
}

// R2Config configures the Cloudflare R2 snapshot feature.
type R2Config struct {
	Enabled         bool
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	SnapshotKey     string
	LockKey         string
	LockTTL         time.Duration
}

// Endpoint returns the S3-compatible endpoint for the account.
func (c *R2Config) Endpoint() string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

// Validate checks R2 settings when the feature is enabled.
func (c *R2Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	for key, value := range map[string]string{
		EnvR2AccountID:       c.AccountID,
		EnvR2AccessKeyID:     c.AccessKeyID,
		EnvR2SecretAccessKey: c.SecretAccessKey,
		EnvR2BucketName:      c.BucketName,
	} {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required when R2 is enabled", key))
		}
	}
	if c.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvR2LockTTL, c.LockTTL))
	}
	return errors.Join(errs...)
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Token       string
	Host        string
	Environment string
	SampleRate  float64
}

// BetterStackConfig configures log shipping.
type BetterStackConfig struct {
	Token    string
	Endpoint string
}

// Load reads configuration for server mode.
func Load() (*Config, error) {
	return LoadForMode(ServerMode)
}

// LoadForMode reads configuration from environment variables and validates
// it for mode. A .env file in the working directory is loaded first when
// present.
func LoadForMode(mode ValidationMode) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LineChannelToken:  getEnv(EnvLineChannelAccessToken, ""),
		LineChannelSecret: getEnv(EnvLineChannelSecret, ""),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ServerName:      getEnv(EnvServerName, ""),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),

		DataDir: getEnv(EnvDataDir, getDefaultDataDir()),

		ScraperTimeout:    getDurationEnv(EnvScraperTimeout, ScraperRequest),
		ScraperMaxRetries: getIntEnv(EnvScraperMaxRetries, 5),
		// IP first for faster scraping (avoids DNS lookup)
		ScraperBaseURLs: map[string][]string{
			"lms": {
				"http://120.126.197.52",
				"https://120.126.197.52",
				"https://lms.ntpu.edu.tw",
			},
		},

		WarmupGracePeriod:      getDurationEnv(EnvWarmupGracePeriod, WarmupGracePeriod),
		StickerRefreshInterval: getDurationEnv(EnvStickerRefreshInterval, StickerRefreshInterval),

		Directory: DirectoryConfig{
			FloorYear:       getIntEnv(EnvDirectoryFloorYear, IDDataYearStart),
			CeilingYear:     getIntEnv(EnvDirectoryCeilingYear, IDDataYearEnd),
			TrailingYears:   getIntEnv(EnvDirectoryTrailingYears, 1),
			FanOut:          getIntEnv(EnvDirectoryFanOut, 4),
			RefreshInterval: getDurationEnv(EnvDirectoryRefreshInterval, DirectoryRefreshInterval),
			FetchTimeout:    getDurationEnv(EnvDirectoryFetchTimeout, DirectoryCohortFetch),
		},

		Bot: BotConfig{
			WebhookTimeout:            getDurationEnv(EnvWebhookTimeout, WebhookProcessing),
			UserRateLimitBurst:        getFloatEnv(EnvUserRateBurst, 15.0),
			UserRateLimitRefillPerSec: getFloatEnv(EnvUserRateRefill, 0.1),
			GlobalRateLimitRPS:        getFloatEnv(EnvGlobalRateRPS, 100.0),
			MaxMessagesPerReply:       LINEMaxMessagesPerReply,
			MaxEventsPerWebhook:       100,
			MinReplyTokenLength:       10,
			MaxMessageLength:          LINEMaxTextMessageLength,
			MaxPostbackDataSize:       LINEMaxPostbackDataLength,
		},

		R2: R2Config{
			Enabled:         getBoolEnv(EnvR2Enabled, false),
			AccountID:       getEnv(EnvR2AccountID, ""),
			AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
			SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
			BucketName:      getEnv(EnvR2BucketName, ""),
			SnapshotKey:     getEnv(EnvR2SnapshotKey, "snapshots/directory.db.zst"),
			LockKey:         getEnv(EnvR2LockKey, "locks/directory-publish.json"),
			LockTTL:         getDurationEnv(EnvR2LockTTL, R2LockTTL),
		},

		Sentry: SentryConfig{
			Token:       getEnv(EnvSentryDSNToken, ""),
			Host:        getEnv(EnvSentryHost, ""),
			Environment: getEnv(EnvSentryEnvironment, "production"),
			SampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),
		},

		BetterStack: BetterStackConfig{
			Token:    getEnv(EnvBetterStackToken, ""),
			Endpoint: getEnv(EnvBetterStackEndpoint, "https://in.logs.betterstack.com"),
		},
	}

	if err := cfg.ValidateForMode(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for server mode.
func (c *Config) Validate() error {
	return c.ValidateForMode(ServerMode)
}

// ValidateForMode collects every problem with the configuration for mode.
func (c *Config) ValidateForMode(mode ValidationMode) error {
	var errs []error

	if mode == ServerMode {
		if c.LineChannelToken == "" {
			errs = append(errs, errors.New(EnvLineChannelAccessToken+" is required"))
		}
		if c.LineChannelSecret == "" {
			errs = append(errs, errors.New(EnvLineChannelSecret+" is required"))
		}
		if c.Port == "" {
			errs = append(errs, errors.New(EnvPort+" is required"))
		}
		if err := c.Bot.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("bot config: %w", err))
		}
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New(EnvDataDir+" is required"))
	}
	if c.ScraperTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvScraperTimeout, c.ScraperTimeout))
	}
	if c.ScraperMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvScraperMaxRetries, c.ScraperMaxRetries))
	}
	if err := c.Directory.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("directory config: %w", err))
	}
	if err := c.R2.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("r2 config: %w", err))
	}

	return errors.Join(errs...)
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// SQLitePath returns the path of the directory snapshot database.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "directory.db")
}
