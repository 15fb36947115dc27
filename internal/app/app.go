// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/bot"
	"github.com/garyellow/ntpu-directory-bot/internal/buildinfo"
	"github.com/garyellow/ntpu-directory-bot/internal/config"
	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
	"github.com/garyellow/ntpu-directory-bot/internal/modules/id"
	"github.com/garyellow/ntpu-directory-bot/internal/r2client"
	"github.com/garyellow/ntpu-directory-bot/internal/ratelimit"
	"github.com/garyellow/ntpu-directory-bot/internal/scraper"
	"github.com/garyellow/ntpu-directory-bot/internal/sentry"
	"github.com/garyellow/ntpu-directory-bot/internal/snapshot"
	"github.com/garyellow/ntpu-directory-bot/internal/sticker"
	"github.com/garyellow/ntpu-directory-bot/internal/storage"
	"github.com/garyellow/ntpu-directory-bot/internal/warmup"
	"github.com/garyellow/ntpu-directory-bot/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const projectURL = "https://github.com/garyellow/ntpu-directory-bot"

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	db             *storage.DB
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	scraperClient  *scraper.Client
	index          *directory.Index
	stickerManager *sticker.Manager
	snapshots      *snapshot.Manager // nil unless R2 is enabled
	webhookHandler *webhook.Handler
	userLimiter    *ratelimit.KeyedLimiter
	readinessState *warmup.ReadinessState
	server         *http.Server
	wg             sync.WaitGroup // background jobs
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	log := logger.NewWithOptions(logger.Options{
		Level:               cfg.LogLevel,
		Writer:              os.Stdout,
		BetterStackToken:    cfg.BetterStack.Token,
		BetterStackEndpoint: cfg.BetterStack.Endpoint,
		Async:               logger.AsyncOptions{OnDrop: m.RecordLogDropped},
	})
	log = log.WithField("service", "ntpu-directory-bot")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}
	// ContextHandler picks request, user and chat IDs out of contexts passed
	// to package-level slog calls.
	slog.SetDefault(log.Logger)

	log.WithField("release", buildinfo.Release()).Info("Initializing application...")

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.Sentry.Token,
		Host:        cfg.Sentry.Host,
		Environment: cfg.Sentry.Environment,
		Release:     buildinfo.Release(),
		SampleRate:  cfg.Sentry.SampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed")
	}

	var snapshots *snapshot.Manager
	if cfg.R2.Enabled {
		var err error
		if snapshots, err = newSnapshotManager(ctx, cfg, log, m); err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		restoreSnapshot(ctx, snapshots, cfg.SQLitePath(), log)
	}

	db, err := storage.New(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	scraperClient := warmup.NewScraperClient(cfg, m)
	index := warmup.NewIndex(cfg.Directory, scraperClient, log, m)
	if saved, err := db.LoadDirectory(ctx); err != nil {
		log.WithError(err).Warn("Failed to load saved directory")
	} else {
		index.Restore(saved)
	}

	stickerMgr := sticker.NewManager(db, scraperClient, log)
	if err := stickerMgr.LoadStickers(ctx); err != nil {
		log.WithError(err).Warn("Failed to load stickers from database")
	}

	userLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "user",
		Burst:         cfg.Bot.UserRateLimitBurst,
		RefillRate:    cfg.Bot.UserRateLimitRefillPerSec,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})

	botRegistry := bot.NewRegistry(
		bot.RecoveryMiddleware(log, m, stickerMgr),
		bot.LoggingMiddleware(log),
	)
	botRegistry.Register(id.NewHandler(index, m, log, stickerMgr))

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Registry:    botRegistry,
		UserLimiter: userLimiter,
		Icons:       stickerMgr,
		Logger:      log,
		BotConfig:   &cfg.Bot,
	})

	webhookHandler, err := webhook.NewHandler(webhook.HandlerConfig{
		ChannelSecret: cfg.LineChannelSecret,
		ChannelToken:  cfg.LineChannelToken,
		BotConfig:     &cfg.Bot,
		Metrics:       m,
		Logger:        log,
		Processor:     processor,
		Icons:         stickerMgr,
	})
	if err != nil {
		_ = db.Close()
		userLimiter.Stop()
		return nil, fmt.Errorf("webhook: %w", err)
	}

	app := &Application{
		cfg:            cfg,
		logger:         log,
		db:             db,
		metrics:        m,
		registry:       registry,
		scraperClient:  scraperClient,
		index:          index,
		stickerManager: stickerMgr,
		snapshots:      snapshots,
		webhookHandler: webhookHandler,
		userLimiter:    userLimiter,
		readinessState: warmup.NewReadinessState(cfg.WarmupGracePeriod),
	}

	gin.SetMode(gin.ReleaseMode)
	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.routes(),
		ReadHeaderTimeout: config.WebhookHTTPRead,
		ReadTimeout:       config.WebhookHTTPRead,
		WriteTimeout:      config.WebhookHTTPWrite,
		IdleTimeout:       config.WebhookHTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

func newSnapshotManager(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*snapshot.Manager, error) {
	store, err := r2client.New(ctx, r2client.Config{
		Endpoint:    cfg.R2.Endpoint(),
		AccessKeyID: cfg.R2.AccessKeyID,
		SecretKey:   cfg.R2.SecretAccessKey,
		BucketName:  cfg.R2.BucketName,
	})
	if err != nil {
		return nil, err
	}
	return snapshot.New(store, snapshot.Config{
		SnapshotKey: cfg.R2.SnapshotKey,
		LockKey:     cfg.R2.LockKey,
		LockTTL:     cfg.R2.LockTTL,
		TempDir:     cfg.DataDir,
	}, snapshot.WithLogger(log), snapshot.WithMetrics(m)), nil
}

// restoreSnapshot seeds a fresh data directory from the published snapshot.
// Failures only cost a cold start.
func restoreSnapshot(ctx context.Context, snapshots *snapshot.Manager, dbPath string, log *logger.Logger) {
	restoreCtx, cancel := context.WithTimeout(ctx, config.R2Transfer)
	defer cancel()

	restored, err := snapshots.Restore(restoreCtx, dbPath)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		log.Info("No published snapshot yet, starting cold")
	case err != nil:
		log.WithError(err).Warn("Snapshot restore failed, starting cold")
	case restored:
		log.WithField("path", dbPath).Info("Directory database restored from R2")
	}
}

// Run starts the HTTP server and background jobs and blocks until SIGINT or
// SIGTERM.
//
// Background jobs are stopped and awaited before any resource is closed,
// so a refresh never writes to a closed database.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server error")
			sentry.CaptureException(err)
		}
	}()
}

func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown stops the HTTP server, drains webhook events and closes
// resources. Call it only after background jobs have returned.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Waiting for webhook events to complete...")
	if err := a.webhookHandler.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
	}

	a.logger.Info("Closing resources...")
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}
	if a.userLimiter != nil {
		a.userLimiter.Stop()
	}

	sentry.Flush(2 * time.Second)
	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}

	a.logger.Info("Shutdown complete")
	return nil
}
