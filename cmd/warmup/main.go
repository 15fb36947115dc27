// Command warmup runs one directory refresh pass and writes the SQLite
// snapshot, optionally publishing it to R2, so the server can start warm.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/config"
	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/r2client"
	"github.com/garyellow/ntpu-directory-bot/internal/snapshot"
	"github.com/garyellow/ntpu-directory-bot/internal/sticker"
	"github.com/garyellow/ntpu-directory-bot/internal/storage"
	"github.com/garyellow/ntpu-directory-bot/internal/warmup"
	"github.com/urfave/cli/v3"
)

const defaultTimeout = 2 * time.Hour

func main() {
	cmd := &cli.Command{
		Name:   "warmup",
		Usage:  "Fetch the student directory once and write the local snapshot",
		Action: run,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "floor",
				Usage: "Oldest entry year to load (ROC); 0 keeps the configured value",
			},
			&cli.IntFlag{
				Name:  "ceiling",
				Usage: "Newest entry year to load (ROC); 0 keeps the configured value",
			},
			&cli.IntFlag{
				Name:  "fanout",
				Usage: "Concurrent cohort fetches; 0 keeps the configured value",
			},
			&cli.StringFlag{
				Name:  "modules",
				Usage: "Comma-separated modules to warm (directory,sticker)",
				Value: "directory,sticker",
			},
			&cli.BoolFlag{
				Name:  "reset",
				Usage: "Ignore the saved directory and fetch every cohort",
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Upload the snapshot to R2 afterwards (requires NTPU_R2_ENABLED)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Give up after this long",
				Value: defaultTimeout,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("warmup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.LoadForMode(config.WarmupMode)
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, int(cmd.Int("floor")), int(cmd.Int("ceiling")), int(cmd.Int("fanout"))); err != nil {
		return err
	}
	if cmd.Bool("publish") && !cfg.R2.Enabled {
		return errors.New("--publish requires NTPU_R2_ENABLED=true")
	}

	log := logger.NewWithOptions(logger.Options{
		Level:               cfg.LogLevel,
		Writer:              os.Stdout,
		BetterStackToken:    cfg.BetterStack.Token,
		BetterStackEndpoint: cfg.BetterStack.Endpoint,
	}).WithModule("warmup")
	defer func() { _ = log.Shutdown(context.Background()) }()
	slog.SetDefault(log.Logger)

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	db, err := storage.New(ctx, cfg.SQLitePath())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { _ = db.Close() }()

	client := warmup.NewScraperClient(cfg, nil)
	deps := warmup.Deps{
		Index:    warmup.NewIndex(cfg.Directory, client, log, nil),
		DB:       db,
		Stickers: sticker.NewManager(db, client, log),
	}
	floor, ceiling := deps.Index.Scope()
	log.WithFields(map[string]any{
		"floor":   floor,
		"ceiling": ceiling,
		"fan_out": cfg.Directory.FanOut,
		"path":    cfg.SQLitePath(),
	}).Info("Starting warmup")

	stats, err := warmup.Run(ctx, deps, log, warmup.Options{
		Modules: warmup.ParseModules(cmd.String("modules")),
		Reset:   cmd.Bool("reset"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("✅ Warmup complete: %d students in %d cohorts (%d restored, %d failed), %d stickers\n",
		stats.Entries.Load(), deps.Index.Stats().Cohorts, stats.Restored.Load(), stats.Failed.Load(), stats.Stickers.Load())

	if !cmd.Bool("publish") {
		return nil
	}
	return publish(ctx, cfg, db, log)
}

// applyOverrides replaces directory settings with non-zero flag values and
// re-validates them.
func applyOverrides(cfg *config.Config, floor, ceiling, fanOut int) error {
	if floor > 0 {
		cfg.Directory.FloorYear = floor
	}
	if ceiling > 0 {
		cfg.Directory.CeilingYear = ceiling
	}
	if fanOut > 0 {
		cfg.Directory.FanOut = fanOut
	}
	if err := cfg.Directory.Validate(); err != nil {
		return fmt.Errorf("directory flags: %w", err)
	}
	return nil
}

func publish(ctx context.Context, cfg *config.Config, db *storage.DB, log *logger.Logger) error {
	store, err := r2client.New(ctx, r2client.Config{
		Endpoint:    cfg.R2.Endpoint(),
		AccessKeyID: cfg.R2.AccessKeyID,
		SecretKey:   cfg.R2.SecretAccessKey,
		BucketName:  cfg.R2.BucketName,
	})
	if err != nil {
		return fmt.Errorf("r2: %w", err)
	}

	manager := snapshot.New(store, snapshot.Config{
		SnapshotKey: cfg.R2.SnapshotKey,
		LockKey:     cfg.R2.LockKey,
		LockTTL:     cfg.R2.LockTTL,
		TempDir:     cfg.DataDir,
	}, snapshot.WithLogger(log))

	etag, err := manager.Publish(ctx, db)
	if err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	fmt.Printf("☁️  Snapshot published (etag %s)\n", etag)
	return nil
}
