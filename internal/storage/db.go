// Package storage persists bot state in SQLite: the sticker pool and the
// last exported student directory.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/config"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// DB wraps a SQLite database with a single-connection writer and a
// pooled reader, both in WAL mode.
type DB struct {
	writer *sql.DB
	reader *sql.DB
	path   string
}

// New opens (creating if needed) the database at dbPath and applies the schema.
// ":memory:" gives a private in-memory database shared by reader and writer.
func New(ctx context.Context, dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	writer, err := open(ctx, dsn(dbPath), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to open writer: %w", err)
	}

	reader := writer
	if dbPath != ":memory:" {
		reader, err = open(ctx, dsn(dbPath), 4)
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("failed to open reader: %w", err)
		}
	}

	db := &DB{writer: writer, reader: reader, path: dbPath}
	if err := InitSchema(ctx, writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// dsn builds the modernc DSN. Pragmas are applied per connection.
func dsn(dbPath string) string {
	busy := config.DatabaseBusyTimeout.Milliseconds()
	if dbPath == ":memory:" {
		return fmt.Sprintf("file::memory:?_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)", busy)
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, busy)
}

func open(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns)
	conn.SetConnMaxLifetime(config.DatabaseConnMaxLifetime)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Close closes both connection pools.
func (db *DB) Close() error {
	var err error
	if db.reader != nil && db.reader != db.writer {
		err = db.reader.Close()
	}
	if db.writer != nil {
		if cerr := db.writer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.reader.PingContext(ctx)
}

// CreateSnapshot writes a compacted, self-contained copy of the database to
// dstPath using VACUUM INTO. dstPath must not exist.
func (db *DB) CreateSnapshot(ctx context.Context, dstPath string) error {
	if _, err := os.Stat(dstPath); err == nil {
		return fmt.Errorf("snapshot destination already exists: %s", dstPath)
	}
	if _, err := db.writer.ExecContext(ctx, "VACUUM INTO ?", dstPath); err != nil {
		return fmt.Errorf("failed to vacuum into %s: %w", dstPath, err)
	}
	return nil
}

// NewTestDB creates an in-memory database for tests.
func NewTestDB() (*DB, error) {
	return New(context.Background(), ":memory:")
}

func unixNow() int64 {
	return time.Now().Unix()
}
