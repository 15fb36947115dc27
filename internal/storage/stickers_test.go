package storage

import (
	"context"
	"testing"
)

func TestSaveSticker_Upsert(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	url := "https://stickershop.line-scdn.net/stickershop/v1/sticker/1/android/sticker.png"
	if err := db.SaveSticker(ctx, &Sticker{URL: url, Source: StickerSourceSpyFamily}); err != nil {
		t.Fatalf("SaveSticker failed: %v", err)
	}
	if err := db.SaveSticker(ctx, &Sticker{URL: url, Source: StickerSourceIchigo}); err != nil {
		t.Fatalf("SaveSticker upsert failed: %v", err)
	}

	stickers, err := db.GetAllStickers(ctx)
	if err != nil {
		t.Fatalf("GetAllStickers failed: %v", err)
	}
	if len(stickers) != 1 {
		t.Fatalf("got %d stickers, want 1", len(stickers))
	}
	if stickers[0].Source != StickerSourceIchigo {
		t.Errorf("Source = %q, want %q", stickers[0].Source, StickerSourceIchigo)
	}
	if stickers[0].CachedAt == 0 {
		t.Error("CachedAt not set")
	}
}

func TestSaveSticker_RejectsUnknownSource(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	if err := db.SaveSticker(context.Background(), &Sticker{URL: "u", Source: "unknown"}); err == nil {
		t.Error("expected CHECK constraint failure for unknown source")
	}
}

func TestReplaceStickers(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SaveSticker(ctx, &Sticker{URL: "old", Source: StickerSourceFallback}); err != nil {
		t.Fatalf("SaveSticker failed: %v", err)
	}

	err := db.ReplaceStickers(ctx, []Sticker{
		{URL: "a", Source: StickerSourceSpyFamily},
		{URL: "b", Source: StickerSourceSpyFamily},
		{URL: "c", Source: StickerSourceIchigo},
	})
	if err != nil {
		t.Fatalf("ReplaceStickers failed: %v", err)
	}

	count, err := db.CountStickers(ctx)
	if err != nil {
		t.Fatalf("CountStickers failed: %v", err)
	}
	if count != 3 {
		t.Errorf("CountStickers() = %d, want 3", count)
	}

	stats, err := db.GetStickerStats(ctx)
	if err != nil {
		t.Fatalf("GetStickerStats failed: %v", err)
	}
	if stats[StickerSourceSpyFamily] != 2 || stats[StickerSourceIchigo] != 1 || stats[StickerSourceFallback] != 0 {
		t.Errorf("GetStickerStats() = %v", stats)
	}
}

func TestReplaceStickers_RollsBackOnError(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SaveSticker(ctx, &Sticker{URL: "keep", Source: StickerSourceFallback}); err != nil {
		t.Fatalf("SaveSticker failed: %v", err)
	}

	err := db.ReplaceStickers(ctx, []Sticker{
		{URL: "a", Source: StickerSourceSpyFamily},
		{URL: "b", Source: "bogus"},
	})
	if err == nil {
		t.Fatal("ReplaceStickers should fail on an invalid source")
	}

	stickers, err := db.GetAllStickers(ctx)
	if err != nil {
		t.Fatalf("GetAllStickers failed: %v", err)
	}
	if len(stickers) != 1 || stickers[0].URL != "keep" {
		t.Errorf("pool changed after failed replace: %v", stickers)
	}
}
