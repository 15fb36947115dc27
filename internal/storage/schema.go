package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all tables and indexes.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if err := createStickersTable(ctx, db); err != nil {
		return err
	}
	return createDirectoryTables(ctx, db)
}

func createStickersTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS stickers (
		url TEXT PRIMARY KEY,
		source TEXT NOT NULL CHECK(source IN ('spy_family', 'ichigo', 'fallback')),
		cached_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stickers_source ON stickers(source);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create stickers table: %w", err)
	}
	return nil
}

// createDirectoryTables creates the exported directory. A cohort row marks
// the cohort as fetched even when it has no entries.
func createDirectoryTables(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS directory_cohorts (
		year INTEGER NOT NULL,
		department TEXT NOT NULL,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (year, department)
	);
	CREATE TABLE IF NOT EXISTS directory_entries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		year INTEGER NOT NULL,
		department TEXT NOT NULL,
		FOREIGN KEY (year, department) REFERENCES directory_cohorts(year, department) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_directory_entries_cohort ON directory_entries(year, department);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create directory tables: %w", err)
	}
	return nil
}
