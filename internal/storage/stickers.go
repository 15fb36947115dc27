package storage

import (
	"context"
	"fmt"
)

// SaveSticker inserts or updates a sticker record.
func (db *DB) SaveSticker(ctx context.Context, sticker *Sticker) error {
	query := `
		INSERT INTO stickers (url, source, cached_at)
		VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			source = excluded.source,
			cached_at = excluded.cached_at
	`
	if _, err := db.writer.ExecContext(ctx, query, sticker.URL, sticker.Source, unixNow()); err != nil {
		return fmt.Errorf("failed to save sticker: %w", err)
	}
	return nil
}

// ReplaceStickers swaps the whole sticker pool in one transaction.
func (db *DB) ReplaceStickers(ctx context.Context, stickers []Sticker) error {
	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stickers`); err != nil {
		return fmt.Errorf("failed to clear stickers: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO stickers (url, source, cached_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := unixNow()
	for _, s := range stickers {
		if _, err := stmt.ExecContext(ctx, s.URL, s.Source, now); err != nil {
			return fmt.Errorf("failed to insert sticker %s: %w", s.URL, err)
		}
	}

	return tx.Commit()
}

// GetAllStickers retrieves all stickers.
// Sticker data never expires; it is replaced only by an explicit refresh.
func (db *DB) GetAllStickers(ctx context.Context) ([]Sticker, error) {
	rows, err := db.reader.QueryContext(ctx, `SELECT url, source, cached_at FROM stickers`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all stickers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stickers []Sticker
	for rows.Next() {
		var s Sticker
		if err := rows.Scan(&s.URL, &s.Source, &s.CachedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sticker row: %w", err)
		}
		stickers = append(stickers, s)
	}
	return stickers, rows.Err()
}

// CountStickers returns the total number of stickers.
func (db *DB) CountStickers(ctx context.Context) (int, error) {
	var count int
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM stickers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stickers: %w", err)
	}
	return count, nil
}

// GetStickerStats returns the number of stickers per source.
func (db *DB) GetStickerStats(ctx context.Context) (map[string]int, error) {
	rows, err := db.reader.QueryContext(ctx, `SELECT source, COUNT(*) FROM stickers GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to get sticker stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sticker stats row: %w", err)
		}
		stats[source] = count
	}
	return stats, rows.Err()
}
