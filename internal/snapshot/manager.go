// Package snapshot moves the directory database to and from R2 so a fresh
// instance can start from the last published directory instead of a cold
// refresh.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
	"github.com/garyellow/ntpu-directory-bot/internal/r2client"
	"github.com/garyellow/ntpu-directory-bot/internal/storage"
)

var (
	// ErrNotFound means no snapshot has been published yet.
	ErrNotFound = errors.New("snapshot: not found")
	// ErrLockHeld means another instance is publishing.
	ErrLockHeld = errors.New("snapshot: publish lock held by another instance")
)

// Config holds snapshot locations.
type Config struct {
	SnapshotKey string        // e.g. "snapshots/directory.db.zst"
	LockKey     string        // publish lock object
	LockTTL     time.Duration // lease length, renewed while uploading
	TempDir     string        // scratch space, defaults to os.TempDir()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(m *Manager) { m.log = log.WithModule("snapshot") }
}

// WithMetrics enables snapshot operation counters.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager downloads and publishes directory snapshots.
type Manager struct {
	store   r2client.Store
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	etag string
}

// New creates a manager.
func New(store r2client.Store, cfg Config, opts ...Option) *Manager {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	m := &Manager{
		store: store,
		cfg:   cfg,
		log:   logger.NewWithWriter("error", io.Discard),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore downloads the published snapshot into dbPath when no local
// database exists. It reports whether a file was written. ErrNotFound is
// returned when nothing has been published.
func (m *Manager) Restore(ctx context.Context, dbPath string) (bool, error) {
	if _, err := os.Stat(dbPath); err == nil {
		m.log.WithField("path", dbPath).Debug("Local directory database present, skipping download")
		return false, nil
	}

	body, etag, err := m.store.Download(ctx, m.cfg.SnapshotKey)
	if err != nil {
		if errors.Is(err, r2client.ErrNotFound) {
			m.record("restore", "not_found")
			return false, ErrNotFound
		}
		m.record("restore", "error")
		return false, fmt.Errorf("download snapshot: %w", err)
	}
	defer func() { _ = body.Close() }()

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create data dir: %w", err)
		}
	}

	// Decompress beside the target, then rename so a crash never leaves a
	// truncated database at dbPath.
	tmpPath := dbPath + ".download"
	if err := r2client.DecompressStream(body, tmpPath); err != nil {
		m.record("restore", "error")
		return false, fmt.Errorf("decompress snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, dbPath); err != nil {
		_ = os.Remove(tmpPath)
		m.record("restore", "error")
		return false, fmt.Errorf("install snapshot: %w", err)
	}

	m.setETag(etag)
	m.record("restore", "success")
	m.log.WithField("etag", etag).Info("Directory snapshot restored")
	return true, nil
}

// Publish uploads a compacted copy of db while holding the publish lock.
// ErrLockHeld is returned when another instance is publishing.
func (m *Manager) Publish(ctx context.Context, db *storage.DB) (string, error) {
	lock := r2client.NewLock(m.store, m.cfg.LockKey, m.cfg.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		m.record("publish", "error")
		return "", fmt.Errorf("acquire publish lock: %w", err)
	}
	if !acquired {
		m.record("publish", "skipped")
		return "", ErrLockHeld
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			m.log.WithError(err).Warn("Failed to release publish lock")
		}
	}()

	renewCtx, stopRenew := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go m.renewLoop(renewCtx, lock, renewDone)
	defer func() {
		stopRenew()
		<-renewDone
	}()

	etag, err := m.upload(ctx, db)
	if err != nil {
		m.record("publish", "error")
		return "", err
	}

	m.setETag(etag)
	m.record("publish", "success")
	m.log.WithField("etag", etag).Info("Directory snapshot published")
	return etag, nil
}

func (m *Manager) upload(ctx context.Context, db *storage.DB) (string, error) {
	snapshotPath := filepath.Join(m.cfg.TempDir, fmt.Sprintf("directory_%d.db", time.Now().UnixNano()))
	if err := db.CreateSnapshot(ctx, snapshotPath); err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer func() { _ = os.Remove(snapshotPath) }()

	compressedPath := snapshotPath + ".zst"
	if err := r2client.CompressFile(snapshotPath, compressedPath); err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	defer func() { _ = os.Remove(compressedPath) }()

	f, err := os.Open(compressedPath)
	if err != nil {
		return "", fmt.Errorf("open compressed snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	etag, err := m.store.Upload(ctx, m.cfg.SnapshotKey, f, "application/zstd")
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return etag, nil
}

func (m *Manager) renewLoop(ctx context.Context, lock *r2client.Lock, done chan<- struct{}) {
	defer close(done)

	interval := max(m.cfg.LockTTL/3, 10*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewed, err := lock.Renew(ctx)
			if err != nil {
				m.log.WithError(err).Warn("Publish lock renew failed")
				return
			}
			if !renewed {
				m.log.Warn("Publish lock lost during upload")
				return
			}
		}
	}
}

// RemoteETag returns the ETag of the published snapshot.
func (m *Manager) RemoteETag(ctx context.Context) (string, error) {
	etag, err := m.store.Head(ctx, m.cfg.SnapshotKey)
	if errors.Is(err, r2client.ErrNotFound) {
		return "", ErrNotFound
	}
	return etag, err
}

// CurrentETag returns the ETag last restored or published by this instance.
func (m *Manager) CurrentETag() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.etag
}

func (m *Manager) setETag(etag string) {
	m.mu.Lock()
	m.etag = etag
	m.mu.Unlock()
}

func (m *Manager) record(op, status string) {
	if m.metrics != nil {
		m.metrics.RecordSnapshot(op, status)
	}
}
