// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Core (Required)
	EnvLineChannelAccessToken = "NTPU_LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "NTPU_LINE_CHANNEL_SECRET"

	// Server
	EnvPort            = "NTPU_PORT"
	EnvLogLevel        = "NTPU_LOG_LEVEL"
	EnvShutdownTimeout = "NTPU_SHUTDOWN_TIMEOUT"
	EnvServerName      = "NTPU_SERVER_NAME"

	// Data
	EnvDataDir = "NTPU_DATA_DIR"

	// Scraper
	EnvScraperTimeout    = "NTPU_SCRAPER_TIMEOUT"
	EnvScraperMaxRetries = "NTPU_SCRAPER_MAX_RETRIES"

	// Directory
	EnvDirectoryFloorYear       = "NTPU_DIRECTORY_FLOOR_YEAR"
	EnvDirectoryCeilingYear     = "NTPU_DIRECTORY_CEILING_YEAR"
	EnvDirectoryTrailingYears   = "NTPU_DIRECTORY_TRAILING_YEARS"
	EnvDirectoryFanOut          = "NTPU_DIRECTORY_FANOUT"
	EnvDirectoryRefreshInterval = "NTPU_DIRECTORY_REFRESH_INTERVAL"
	EnvDirectoryFetchTimeout    = "NTPU_DIRECTORY_FETCH_TIMEOUT"

	// Webhook
	EnvWebhookTimeout = "NTPU_WEBHOOK_TIMEOUT"

	// Rate Limits
	EnvGlobalRateRPS  = "NTPU_GLOBAL_RATE_RPS"
	EnvUserRateBurst  = "NTPU_USER_RATE_BURST"
	EnvUserRateRefill = "NTPU_USER_RATE_REFILL"

	// Background Tasks
	EnvWarmupGracePeriod      = "NTPU_WARMUP_GRACE_PERIOD"
	EnvStickerRefreshInterval = "NTPU_STICKER_REFRESH_INTERVAL"

	// R2 Snapshot Feature
	EnvR2Enabled         = "NTPU_R2_ENABLED"
	EnvR2AccountID       = "NTPU_R2_ACCOUNT_ID"
	EnvR2AccessKeyID     = "NTPU_R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "NTPU_R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "NTPU_R2_BUCKET_NAME"
	EnvR2SnapshotKey     = "NTPU_R2_SNAPSHOT_KEY"
	EnvR2LockKey         = "NTPU_R2_LOCK_KEY"
	EnvR2LockTTL         = "NTPU_R2_LOCK_TTL"

	// Sentry Feature
	EnvSentryDSNToken    = "NTPU_SENTRY_DSN_TOKEN"
	EnvSentryHost        = "NTPU_SENTRY_HOST"
	EnvSentryEnvironment = "NTPU_SENTRY_ENVIRONMENT"
	EnvSentrySampleRate  = "NTPU_SENTRY_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackToken    = "NTPU_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "NTPU_BETTERSTACK_ENDPOINT"

	// Metrics Auth Feature
	EnvMetricsUsername = "NTPU_METRICS_USERNAME"
	EnvMetricsPassword = "NTPU_METRICS_PASSWORD"
)
