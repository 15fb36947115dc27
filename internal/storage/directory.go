package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/directory"
)

// SaveDirectory replaces the stored directory with snapshots.
// The previous export is dropped in the same transaction, so readers see
// either the old or the new directory, never a mix.
func (db *DB) SaveDirectory(ctx context.Context, snapshots []directory.CohortSnapshot) error {
	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM directory_entries`); err != nil {
		return fmt.Errorf("failed to clear directory entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM directory_cohorts`); err != nil {
		return fmt.Errorf("failed to clear directory cohorts: %w", err)
	}

	cohortStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO directory_cohorts (year, department, fetched_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare cohort statement: %w", err)
	}
	defer func() { _ = cohortStmt.Close() }()

	entryStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO directory_entries (id, name, year, department) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare entry statement: %w", err)
	}
	defer func() { _ = entryStmt.Close() }()

	for _, s := range snapshots {
		c := s.Cohort
		if _, err := cohortStmt.ExecContext(ctx, c.Year, c.Department, s.FetchedAt.Unix()); err != nil {
			return fmt.Errorf("failed to save cohort %s: %w", c, err)
		}
		for _, e := range s.Entries {
			if _, err := entryStmt.ExecContext(ctx, e.ID, e.Name, c.Year, c.Department); err != nil {
				return fmt.Errorf("failed to save entry %s: %w", e.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit directory: %w", err)
	}
	return nil
}

// LoadDirectory reads the stored directory, ordered by year then department,
// entries ordered by ID.
func (db *DB) LoadDirectory(ctx context.Context) ([]directory.CohortSnapshot, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT year, department, fetched_at FROM directory_cohorts ORDER BY year, department`)
	if err != nil {
		return nil, fmt.Errorf("failed to query directory cohorts: %w", err)
	}

	var snapshots []directory.CohortSnapshot
	index := make(map[directory.Cohort]int)
	for rows.Next() {
		var (
			c         directory.Cohort
			fetchedAt int64
		)
		if err := rows.Scan(&c.Year, &c.Department, &fetchedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan cohort row: %w", err)
		}
		index[c] = len(snapshots)
		snapshots = append(snapshots, directory.CohortSnapshot{Cohort: c, FetchedAt: time.Unix(fetchedAt, 0)})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to read cohort rows: %w", err)
	}
	_ = rows.Close()

	rows, err = db.reader.QueryContext(ctx,
		`SELECT id, name, year, department FROM directory_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query directory entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			e directory.Entry
			c directory.Cohort
		)
		if err := rows.Scan(&e.ID, &e.Name, &c.Year, &c.Department); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		if i, ok := index[c]; ok {
			snapshots[i].Entries = append(snapshots[i].Entries, e)
		}
	}
	return snapshots, rows.Err()
}

// CountDirectoryEntries returns the number of stored students.
func (db *DB) CountDirectoryEntries(ctx context.Context) (int, error) {
	var count int
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM directory_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count directory entries: %w", err)
	}
	return count, nil
}
