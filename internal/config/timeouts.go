// Package config provides centralized timeout constants for the application.
//
// # LINE API Constraints
//
// LINE expects a quick 200 OK for each webhook delivery. Events are
// processed after the response is sent, and the reply token stays valid
// long enough for a slow LMS fetch to finish.
//
// # LMS
//
// The LMS portfolio search is slow and paginated. A whole cohort can take
// tens of seconds, so cohort fetches get their own deadline that is longer
// than a single HTTP request.
package config

import "time"

// Webhook timeouts
const (
	// WebhookProcessing bounds processing of one webhook batch. An on-demand
	// cohort fetch for an uncached year runs inside this window.
	WebhookProcessing = 60 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	WebhookHTTPWrite = 65 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// Scraper timeouts
const (
	// ScraperRequest is the timeout for a single HTTP request to the LMS.
	ScraperRequest = 60 * time.Second

	// ScraperRetryInitial is the initial delay before retrying a failed request.
	// Uses exponential backoff: 4s -> 8s -> 16s -> 32s -> 64s
	ScraperRetryInitial = 4 * time.Second

	// ScraperRateLimit is the minimum delay between consecutive page requests.
	ScraperRateLimit = 2 * time.Second
)

// Directory timeouts
const (
	// DirectoryCohortFetch bounds fetching every page of one cohort.
	DirectoryCohortFetch = 60 * time.Second

	// DirectoryRefreshInterval is the default period between refresh passes.
	DirectoryRefreshInterval = 24 * time.Hour

	// WarmupGracePeriod is how long the webhook answers 503 while the first
	// refresh pass runs. After it elapses the bot serves whatever is loaded.
	WarmupGracePeriod = 3 * time.Minute
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Background job intervals
const (
	// StickerRefreshInterval is how often sticker URLs are refreshed.
	StickerRefreshInterval = 24 * time.Hour

	// StickerFetch bounds one sticker page scrape.
	StickerFetch = 5 * time.Second

	// MetricsUpdateInterval is how often directory gauges are updated.
	MetricsUpdateInterval = 5 * time.Minute

	// RateLimiterCleanupInterval is how often inactive user rate limiters are cleaned.
	RateLimiterCleanupInterval = 5 * time.Minute
)

// R2 snapshot timeouts
const (
	// R2LockTTL is how long a publish lock is honoured before another
	// instance may take it over.
	R2LockTTL = 10 * time.Minute

	// R2Transfer bounds one snapshot upload or download.
	R2Transfer = 2 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	GracefulShutdown = 30 * time.Second
)
