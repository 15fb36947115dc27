// Package sticker keeps the pool of character images used as the bot's
// sender icon and as replies to sticker messages.
package sticker

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/scraper"
	"github.com/garyellow/ntpu-directory-bot/internal/storage"
)

// Source is one page listing sticker images.
type Source struct {
	Name  string // storage.StickerSource* value
	URL   string
	Parse func(doc *goquery.Document, pageURL *url.URL) []string
}

// DefaultSources are the SPY×FAMILY icon pages and the 【推しの子】 present page.
func DefaultSources() []Source {
	pages := []string{
		"https://spy-family.net/tvseries/special/special1_season1.php",
		"https://spy-family.net/tvseries/special/special2_season1.php",
		"https://spy-family.net/tvseries/special/special9_season1.php",
		"https://spy-family.net/tvseries/special/special13_season1.php",
		"https://spy-family.net/tvseries/special/special16_season1.php",
		"https://spy-family.net/tvseries/special/special17_season1.php",
		"https://spy-family.net/tvseries/special/special3_season2.php",
		"https://spy-family.net/tvseries/special/special10.php",
	}
	sources := make([]Source, 0, len(pages)+1)
	for _, p := range pages {
		sources = append(sources, Source{Name: storage.StickerSourceSpyFamily, URL: p, Parse: ParseSpyFamily})
	}
	return append(sources, Source{
		Name:  storage.StickerSourceIchigo,
		URL:   "https://ichigoproduction.com/Season1/special/present_icon.html",
		Parse: ParseIchigo,
	})
}

// ParseSpyFamily extracts the PNG download links of an icon page.
func ParseSpyFamily(doc *goquery.Document, pageURL *url.URL) []string {
	var urls []string
	doc.Find("ul.icondlLists a[href$='.png']").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			if abs := resolve(pageURL, href); abs != "" {
				urls = append(urls, abs)
			}
		}
	})
	return urls
}

// ParseIchigo extracts the icon images of the present page.
func ParseIchigo(doc *goquery.Document, pageURL *url.URL) []string {
	var urls []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || !strings.Contains(src, "core_sys/images/contents/") || !strings.Contains(src, ".jpg") {
			return
		}
		if abs := resolve(pageURL, src); abs != "" {
			urls = append(urls, abs)
		}
	})
	return urls
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "https" && abs.Scheme != "http" {
		return ""
	}
	// LINE only accepts HTTPS image URLs.
	abs.Scheme = "https"
	return abs.String()
}

var fallbackNames = []string{
	"Anya", "Loid", "Yor", "Bond", "Damian",
	"Becky", "Fiona", "Franky", "Yuri", "Sylvia",
	"Ichigo", "Ai", "Kana", "Aqua", "Ruby",
	"Miyako", "Mem", "Akane", "Taiki", "Sarina",
}

var fallbackBackgrounds = []string{"FF6B6B", "4ECDC4", "45B7D1", "FFA07A", "98D8C8"}

// FallbackStickers returns ui-avatars URLs used when every source fails.
func FallbackStickers() []string {
	urls := make([]string, len(fallbackNames))
	for i, name := range fallbackNames {
		urls[i] = fallbackURL(name, fallbackBackgrounds[i%len(fallbackBackgrounds)])
	}
	return urls
}

func fallbackURL(name, bg string) string {
	return fmt.Sprintf("https://ui-avatars.com/api/?name=%s&size=256&background=%s&color=fff", name, bg)
}

// Option configures a Manager.
type Option func(*Manager)

// WithSources replaces DefaultSources.
func WithSources(sources []Source) Option {
	return func(m *Manager) { m.sources = sources }
}

// WithRetry sets the per-source retry count and initial backoff.
func WithRetry(maxRetries int, initialDelay time.Duration) Option {
	return func(m *Manager) {
		m.maxRetries = maxRetries
		m.retryDelay = initialDelay
	}
}

// Manager holds the sticker pool in memory, backed by SQLite.
type Manager struct {
	db         *storage.DB
	client     *scraper.Client
	log        *logger.Logger
	sources    []Source
	maxRetries int
	retryDelay time.Duration

	mu       sync.RWMutex
	stickers []string
	loaded   bool
}

// NewManager creates a manager. log may be nil.
func NewManager(db *storage.DB, client *scraper.Client, log *logger.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logger.NewWithWriter("error", io.Discard)
	}
	m := &Manager{
		db:         db,
		client:     client,
		log:        log.WithModule("sticker"),
		sources:    DefaultSources(),
		maxRetries: 2,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadStickers fills the pool from SQLite, fetching from the web when the
// table is empty.
func (m *Manager) LoadStickers(ctx context.Context) error {
	cached, err := m.db.GetAllStickers(ctx)
	if err != nil {
		m.log.WithError(err).Warn("Failed to load stickers from database, fetching from web")
	} else if len(cached) > 0 {
		urls := make([]string, len(cached))
		for i, s := range cached {
			urls[i] = s.URL
		}
		m.set(urls)
		m.log.WithField("count", len(urls)).Info("Loaded stickers from database")
		return nil
	}
	return m.RefreshStickers(ctx)
}

// RefreshStickers fetches every source concurrently and replaces the pool.
// Failed sources are skipped; when all fail the fallback avatars are used,
// so the pool is never left empty.
func (m *Manager) RefreshStickers(ctx context.Context) error {
	results := make([][]string, len(m.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, src := range m.sources {
		g.Go(func() error {
			urls, err := m.fetchSource(gctx, src)
			if err != nil {
				m.log.WithError(err).WithField("source", src.URL).Warn("Failed to fetch sticker source")
				return nil
			}
			results[i] = urls
			return nil
		})
	}
	_ = g.Wait()

	var (
		rows   []storage.Sticker
		urls   []string
		failed int
	)
	for i, found := range results {
		if len(found) == 0 {
			failed++
			continue
		}
		for _, u := range found {
			rows = append(rows, storage.Sticker{URL: u, Source: m.sources[i].Name})
			urls = append(urls, u)
		}
	}

	if len(urls) == 0 {
		m.log.Warn("All sticker sources failed, using fallback avatars")
		for _, u := range FallbackStickers() {
			rows = append(rows, storage.Sticker{URL: u, Source: storage.StickerSourceFallback})
			urls = append(urls, u)
		}
	}

	if err := m.db.ReplaceStickers(ctx, rows); err != nil {
		m.log.WithError(err).Warn("Failed to persist stickers")
	}
	m.set(urls)

	m.log.WithFields(map[string]any{
		"count":   len(urls),
		"sources": len(m.sources),
		"failed":  failed,
	}).Info("Stickers refreshed")

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (m *Manager) fetchSource(ctx context.Context, src Source) ([]string, error) {
	pageURL, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid source URL: %w", err)
	}

	var urls []string
	err = scraper.RetryWithBackoff(ctx, m.maxRetries, m.retryDelay, func() error {
		doc, err := m.client.GetDocument(ctx, src.URL)
		if err != nil {
			return err
		}
		urls = src.Parse(doc, pageURL)
		if len(urls) == 0 {
			return fmt.Errorf("no stickers found on %s", src.URL)
		}
		return nil
	})
	return urls, err
}

func (m *Manager) set(urls []string) {
	m.mu.Lock()
	m.stickers = urls
	m.loaded = true
	m.mu.Unlock()
}

// GetRandomSticker returns a random sticker URL. It never returns "".
func (m *Manager) GetRandomSticker() string {
	m.mu.RLock()
	stickers := m.stickers
	m.mu.RUnlock()

	if len(stickers) == 0 {
		i := rand.IntN(len(fallbackNames))
		return fallbackURL(fallbackNames[i], fallbackBackgrounds[i%len(fallbackBackgrounds)])
	}
	return stickers[rand.IntN(len(stickers))]
}

// IsLoaded reports whether the pool has been filled.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Count returns the pool size.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stickers)
}

// GetStats returns the stored sticker count per source.
func (m *Manager) GetStats(ctx context.Context) (map[string]int, error) {
	return m.db.GetStickerStats(ctx)
}
