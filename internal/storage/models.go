package storage

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("resource not found")

// Sticker sources.
const (
	StickerSourceSpyFamily = "spy_family"
	StickerSourceIchigo    = "ichigo"
	StickerSourceFallback  = "fallback"
)

// Sticker is a cached sticker image URL.
type Sticker struct {
	URL      string `json:"url"`
	Source   string `json:"source"`
	CachedAt int64  `json:"cached_at"`
}
