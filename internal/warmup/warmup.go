// Package warmup fills the directory index and sticker pool before traffic
// is accepted, and tracks startup readiness.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
	"github.com/garyellow/ntpu-directory-bot/internal/sticker"
	"github.com/garyellow/ntpu-directory-bot/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Module names accepted by Options.Modules.
const (
	ModuleDirectory = "directory"
	ModuleSticker   = "sticker"
)

// DefaultModules is used when no module list is given.
var DefaultModules = []string{ModuleDirectory, ModuleSticker}

// Stats tracks warmup results. Fields are updated concurrently.
type Stats struct {
	Restored atomic.Int64 // cohorts restored from the local snapshot
	Entries  atomic.Int64 // entries in the index after the refresh
	Cohorts  atomic.Int64 // cohorts fetched during the refresh
	Failed   atomic.Int64 // cohorts that could not be fetched
	Stickers atomic.Int64
}

// Deps are the components a warmup run fills. DB and Stickers may be nil.
type Deps struct {
	Index    *directory.Index
	DB       *storage.DB
	Stickers *sticker.Manager
}

// Options configures a warmup run.
type Options struct {
	Modules []string // defaults to DefaultModules
	Reset   bool     // ignore the saved directory and fetch every cohort
	Metrics *metrics.Metrics
}

// Run restores the saved directory (unless Reset), runs one refresh pass and
// saves the result, refreshing stickers alongside. Modules run concurrently.
func Run(ctx context.Context, deps Deps, log *logger.Logger, opts Options) (*Stats, error) {
	stats := &Stats{}
	start := time.Now()
	modules := opts.Modules
	if len(modules) == 0 {
		modules = DefaultModules
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, module := range modules {
		g.Go(func() error {
			var err error
			switch module {
			case ModuleDirectory:
				err = warmupDirectory(ctx, deps, log, opts, stats)
			case ModuleSticker:
				err = warmupStickers(ctx, deps.Stickers, stats)
			default:
				log.WithField("module", module).Warn("Unknown module, skipping")
				return nil
			}
			recordJob(opts.Metrics, module, err)
			if err != nil {
				log.WithError(err).WithField("module", module).Error("Warmup module failed")
				return fmt.Errorf("%s module: %w", module, err)
			}
			return nil
		})
	}
	err := g.Wait()

	log.WithFields(map[string]any{
		"duration": time.Since(start),
		"restored": stats.Restored.Load(),
		"entries":  stats.Entries.Load(),
		"cohorts":  stats.Cohorts.Load(),
		"failed":   stats.Failed.Load(),
		"stickers": stats.Stickers.Load(),
	}).Info("Warmup complete")

	return stats, err
}

func warmupDirectory(ctx context.Context, deps Deps, log *logger.Logger, opts Options, stats *Stats) error {
	if deps.Index == nil {
		return errors.New("directory index not configured")
	}

	if deps.DB != nil && !opts.Reset {
		saved, err := deps.DB.LoadDirectory(ctx)
		if err != nil {
			log.WithError(err).Warn("Failed to load saved directory, fetching everything")
		} else {
			stats.Restored.Store(int64(deps.Index.Restore(saved)))
		}
	}

	result, err := deps.Index.Refresh(ctx)
	stats.Cohorts.Store(int64(result.Succeeded))
	stats.Failed.Store(int64(result.Failed()))
	stats.Entries.Store(int64(deps.Index.Len()))
	if err != nil {
		return err
	}
	if result.Skipped {
		return nil
	}

	if deps.DB != nil {
		if err := deps.DB.SaveDirectory(ctx, deps.Index.Export()); err != nil {
			return fmt.Errorf("save directory: %w", err)
		}
	}
	return nil
}

func warmupStickers(ctx context.Context, stickers *sticker.Manager, stats *Stats) error {
	if stickers == nil {
		return nil
	}
	if err := stickers.RefreshStickers(ctx); err != nil {
		return err
	}
	stats.Stickers.Store(int64(stickers.Count()))
	return nil
}

func recordJob(m *metrics.Metrics, module string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RecordJob("warmup_"+module, status)
}

// ParseModules converts a comma-separated list into module names.
func ParseModules(modules string) []string {
	var result []string
	for m := range strings.SplitSeq(modules, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			result = append(result, m)
		}
	}
	return result
}
