package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/bot"
	"github.com/garyellow/ntpu-directory-bot/internal/config"
	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
	"github.com/garyellow/ntpu-directory-bot/internal/scraper"
	"github.com/garyellow/ntpu-directory-bot/internal/sticker"
	"github.com/garyellow/ntpu-directory-bot/internal/storage"
	"github.com/garyellow/ntpu-directory-bot/internal/warmup"
	"github.com/garyellow/ntpu-directory-bot/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("dial tcp: connection refused")

func rosterFetcher(down bool) directory.Fetcher {
	return directory.FetcherFunc(func(_ context.Context, c directory.Cohort) (map[string]string, error) {
		if down {
			return nil, errDown
		}
		if c.Department != "85" {
			return nil, nil
		}
		return map[string]string{"411285001": "王小明", "411285002": "李小華"}, nil
	})
}

// setupTestApp creates an Application with an in-process directory and no
// network dependencies.
func setupTestApp(t *testing.T, down bool) *Application {
	t.Helper()

	db, err := storage.New(t.Context(), filepath.Join(t.TempDir(), "directory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	log := logger.NewWithWriter("error", io.Discard)

	index := directory.New(rosterFetcher(down), directory.Config{
		FloorYear:   112,
		CeilingYear: 112,
		FanOut:      2,
		Departments: []string{"85", "87"},
	}, directory.WithUnreachable(func(err error) bool { return errors.Is(err, errDown) }))

	cfg := &config.Config{
		MetricsUsername: "prometheus",
		MetricsPassword: "secret",
		Bot: config.BotConfig{
			WebhookTimeout:      time.Second,
			GlobalRateLimitRPS:  100,
			MaxMessagesPerReply: 5,
			MaxEventsPerWebhook: 100,
			MinReplyTokenLength: 10,
		},
	}

	processor := bot.NewProcessor(bot.ProcessorConfig{Registry: bot.NewRegistry(), Logger: log, BotConfig: &cfg.Bot})
	wh, err := webhook.NewHandler(webhook.HandlerConfig{
		ChannelSecret: "test_channel_secret",
		ChannelToken:  "test_channel_token",
		BotConfig:     &cfg.Bot,
		Metrics:       m,
		Logger:        log,
		Processor:     processor,
	})
	require.NoError(t, err)

	return &Application{
		cfg:            cfg,
		logger:         log,
		db:             db,
		metrics:        m,
		registry:       registry,
		index:          index,
		stickerManager: sticker.NewManager(db, scraper.NewClient(time.Second, 0, nil), log),
		webhookHandler: wh,
		readinessState: warmup.NewReadinessState(time.Hour),
	}
}

func get(t *testing.T, a *Application, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	a.routes().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLivenessCheck(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, false)

	w := get(t, a, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", decode(t, w)["status"])
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRootRedirect(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, false)

	w := get(t, a, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, projectURL, w.Header().Get("Location"))
}

func TestReadinessCheck(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, false)

	w := get(t, a, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, warmup.ReasonInProgress, decode(t, w)["reason"])

	_, err := a.index.Refresh(t.Context())
	require.NoError(t, err)
	a.readinessState.Follow(t.Context(), a.index.Ready())

	w = get(t, a, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ready", body["status"])
	dir, ok := body["directory"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 2, dir["entries"], 0)
	assert.Equal(t, true, dir["loaded"])
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		down bool
		want int
	}{
		{"service reachable", false, http.StatusOK},
		{"service unreachable", true, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := setupTestApp(t, tt.down)

			assert.Equal(t, http.StatusOK, get(t, a, http.MethodGet, "/healthz", nil).Code,
				"healthy before the first refresh")

			_, _ = a.index.Refresh(t.Context())
			w := get(t, a, http.MethodGet, "/healthz", nil)
			assert.Equal(t, tt.want, w.Code)
			if tt.down {
				assert.Equal(t, "directory service unreachable", decode(t, w)["reason"])
			}
		})
	}
}

func TestWebhookGatedByReadiness(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, false)

	for _, path := range []string{"/webhook", "/callback"} {
		w := get(t, a, http.MethodPost, path, []byte(`{"events":[]}`))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
	}

	a.readinessState.MarkReady()
	for _, path := range []string{"/webhook", "/callback"} {
		w := get(t, a, http.MethodPost, path, []byte(`{"events":[]}`))
		assert.Equal(t, http.StatusBadRequest, w.Code, "unsigned request reaches the handler on %s", path)
	}
}

func TestMetricsRequiresAuth(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, false)

	assert.Equal(t, http.StatusUnauthorized, get(t, a, http.MethodGet, "/metrics", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("prometheus", "secret")
	w := httptest.NewRecorder()
	a.routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ntpu_")
}

func TestAfterRefreshSavesDirectory(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, false)

	result, err := a.index.Refresh(t.Context())
	require.NoError(t, err)
	a.afterRefresh(t.Context(), result, err)

	saved, err := a.db.LoadDirectory(t.Context())
	require.NoError(t, err)
	assert.Len(t, saved, 2, "both cohorts are saved, including the empty one")

	n, err := a.db.CountDirectoryEntries(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAfterRefreshSkipsSaveWhenNothingFetched(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, true)

	result, err := a.index.Refresh(t.Context())
	require.ErrorIs(t, err, directory.ErrServiceUnreachable)
	a.afterRefresh(t.Context(), result, err)

	n, err := a.db.CountDirectoryEntries(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordDirectoryMetrics(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, false)

	_, err := a.index.Refresh(t.Context())
	require.NoError(t, err)
	assert.NotPanics(t, a.recordDirectoryMetrics)
}
