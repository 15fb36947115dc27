package warmup

import (
	"github.com/garyellow/ntpu-directory-bot/internal/config"
	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
	"github.com/garyellow/ntpu-directory-bot/internal/scraper"
	"github.com/garyellow/ntpu-directory-bot/internal/scraper/ntpu"
)

// NewIndex builds the directory index the server and the warmup command
// share: LMS rosters behind client, scoped by cfg. m may be nil.
func NewIndex(cfg config.DirectoryConfig, client *scraper.Client, log *logger.Logger, m *metrics.Metrics) *directory.Index {
	opts := []directory.Option{
		directory.WithLogger(log),
		directory.WithUnreachable(scraper.IsNetworkError),
	}
	if m != nil {
		opts = append(opts, directory.WithMetrics(m))
	}
	return directory.New(ntpu.NewDirectoryFetcher(client), directory.Config{
		FloorYear:      cfg.FloorYear,
		CeilingYear:    cfg.CeilingYear,
		TrailingWindow: cfg.TrailingYears,
		FanOut:         cfg.FanOut,
		FetchTimeout:   cfg.FetchTimeout,
	}, opts...)
}

// NewScraperClient creates the LMS client with the configured timeout,
// retries and mirrors.
func NewScraperClient(cfg *config.Config, m *metrics.Metrics) *scraper.Client {
	opts := []scraper.Option{
		scraper.WithRetryDelay(config.ScraperRetryInitial),
		scraper.WithRequestInterval(config.ScraperRateLimit),
	}
	if m != nil {
		opts = append(opts, scraper.WithMetrics(m, "directory"))
	}
	return scraper.NewClient(cfg.ScraperTimeout, cfg.ScraperMaxRetries, cfg.ScraperBaseURLs, opts...)
}
