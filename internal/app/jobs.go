package app

import (
	"context"
	"errors"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/config"
	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	"github.com/garyellow/ntpu-directory-bot/internal/sentry"
	"github.com/garyellow/ntpu-directory-bot/internal/snapshot"
)

// startBackgroundJobs starts all background goroutines tracked by wg.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() {
		a.readinessState.Follow(ctx, a.index.Ready())
	})
	a.wg.Go(func() {
		a.refreshDirectory(ctx)
	})
	a.wg.Go(func() {
		a.refreshStickers(ctx)
	})
	a.wg.Go(func() {
		a.updateDirectoryMetrics(ctx)
	})
}

// refreshDirectory runs the refresh scheduler until ctx is done.
func (a *Application) refreshDirectory(ctx context.Context) {
	a.logger.Debug("Directory refresh job started")
	defer a.logger.Debug("Directory refresh job stopped")

	a.index.Run(ctx, a.cfg.Directory.RefreshInterval, func(result directory.RefreshResult, err error) {
		a.afterRefresh(ctx, result, err)
	})
}

// afterRefresh persists what a pass fetched and reports pass-level failures.
func (a *Application) afterRefresh(ctx context.Context, result directory.RefreshResult, err error) {
	if err != nil {
		if errors.Is(err, directory.ErrServiceUnreachable) {
			a.logger.WithError(err).Warn("Directory service unreachable")
		} else {
			a.logger.WithError(err).Error("Directory refresh failed")
		}
		sentry.CaptureExceptionWithContext(ctx, err, map[string]string{"job": "directory_refresh"})
	}
	if result.Succeeded == 0 {
		return
	}

	saveCtx := context.WithoutCancel(ctx)
	if err := a.db.SaveDirectory(saveCtx, a.index.Export()); err != nil {
		a.logger.WithError(err).Error("Failed to save directory")
		return
	}
	a.publishSnapshot(saveCtx)
}

// publishSnapshot uploads the saved directory when R2 is enabled. Losing
// the lock race to another instance is expected.
func (a *Application) publishSnapshot(ctx context.Context) {
	if a.snapshots == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(ctx, config.R2Transfer)
	defer cancel()

	etag, err := a.snapshots.Publish(publishCtx, a.db)
	switch {
	case errors.Is(err, snapshot.ErrLockHeld):
		a.logger.Debug("Snapshot publish skipped: another instance holds the lock")
	case err != nil:
		a.logger.WithError(err).Warn("Snapshot publish failed")
	default:
		a.logger.WithField("etag", etag).Info("Snapshot published")
	}
}

// refreshStickers refreshes sender avatars on startup and then periodically.
func (a *Application) refreshStickers(ctx context.Context) {
	a.logger.Debug("Sticker refresh job started")
	defer a.logger.Debug("Sticker refresh job stopped")

	a.performStickerRefresh(ctx)

	interval := a.cfg.StickerRefreshInterval
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.performStickerRefresh(ctx)
		}
	}
}

func (a *Application) performStickerRefresh(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	status := "success"
	if err := a.stickerManager.RefreshStickers(refreshCtx); err != nil {
		status = "error"
		a.logger.WithError(err).Error("Failed to refresh stickers")
	} else {
		a.logger.WithField("count", a.stickerManager.Count()).Info("Sticker refresh complete")
	}
	if a.metrics != nil {
		a.metrics.RecordJob("sticker_refresh", status)
	}
}

// updateDirectoryMetrics periodically records index and limiter gauges.
func (a *Application) updateDirectoryMetrics(ctx context.Context) {
	ticker := time.NewTicker(config.MetricsUpdateInterval)
	defer ticker.Stop()

	a.recordDirectoryMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.recordDirectoryMetrics()
		}
	}
}

func (a *Application) recordDirectoryMetrics() {
	if a.metrics == nil {
		return
	}
	stats := a.index.Stats()
	a.metrics.SetDirectorySize(stats.Entries, stats.Cohorts)
	a.metrics.SetDirectoryReady(stats.Ready)
	if a.userLimiter != nil {
		a.metrics.SetRateLimiterUsers(a.userLimiter.GetActiveCount())
	}
}
