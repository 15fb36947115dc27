package scraper

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
)

func newTestClient(maxRetries int, opts ...Option) *Client {
	opts = append([]Option{WithRetryDelay(time.Millisecond), WithRequestInterval(0)}, opts...)
	return NewClient(5*time.Second, maxRetries, nil, opts...)
}

func TestIsNetworkError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"permanent error", &permanentError{err: errors.New("client error")}, false},
		{"wrapped permanent error", fmt.Errorf("wrapped: %w", &permanentError{err: errors.New("client error")}), false},
		{"timeout error", &netTimeError{timeout: true}, true},
		{"deadline exceeded", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
		{"all mirrors down", fmt.Errorf("%w: lms", ErrAllURLsFailed), true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8080: connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"server error", errors.New("internal server error"), true},
		{"rate limited", errors.New("rate limited"), true},
		{"unknown generic error", errors.New("something went wrong"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsNetworkError(tt.err); got != tt.expected {
				t.Errorf("IsNetworkError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// netTimeError mocks a net.Error with Timeout() support
type netTimeError struct {
	timeout bool
}

func (e *netTimeError) Error() string   { return "net error" }
func (e *netTimeError) Timeout() bool   { return e.timeout }
func (e *netTimeError) Temporary() bool { return false }

func TestGetDocument_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		_, _ = w.Write([]byte(`<html><body><p class="x">ok</p></body></html>`))
	}))
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	c := newTestClient(5, WithMetrics(m, "lms"))
	doc, err := c.GetDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetDocument() = %v", err)
	}
	if got := doc.Find("p.x").Text(); got != "ok" {
		t.Errorf("text = %q", got)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if got := testutil.ToFloat64(m.ScraperRequestsTotal.WithLabelValues("lms", "success")); got != 1 {
		t.Errorf("success counter = %v, want 1", got)
	}
}

func TestGetDocument_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(5).GetDocument(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("GetDocument() = nil error for 404")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if IsNetworkError(err) {
		t.Errorf("404 classified as network error: %v", err)
	}
}

func TestGetDocument_ServerDownIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(1).GetDocument(context.Background(), srv.URL)
	if !IsNetworkError(err) {
		t.Errorf("IsNetworkError(%v) = false", err)
	}

	srv.Close()
	_, err = newTestClient(0).GetDocument(context.Background(), srv.URL)
	if !IsNetworkError(err) {
		t.Errorf("closed server: IsNetworkError(%v) = false", err)
	}
}

func TestGetDocument_DecodesGzipBig5(t *testing.T) {
	t.Parallel()

	big5, err := traditionalchinese.Big5.NewEncoder().String(`<html><body><a>王小明</a></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, _ = zw.Write([]byte(big5))
	_ = zw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=big5")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(compressed.Bytes())
	}))
	defer srv.Close()

	doc, err := newTestClient(0).GetDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetDocument() = %v", err)
	}
	if got := doc.Find("a").Text(); got != "王小明" {
		t.Errorf("decoded text = %q, want 王小明", got)
	}
}

func TestPostFormDocument(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		_ = r.ParseForm()
		_, _ = w.Write([]byte("<p>" + r.PostForm.Get("q") + "</p>"))
	}))
	defer srv.Close()

	doc, err := newTestClient(0).PostFormDocument(context.Background(), srv.URL, "q=hello")
	if err != nil {
		t.Fatalf("PostFormDocument() = %v", err)
	}
	if got := doc.Find("p").Text(); got != "hello" {
		t.Errorf("text = %q", got)
	}
}

func TestTryFailoverURLs(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer up.Close()

	c := NewClient(time.Second, 0, map[string][]string{"lms": {down.URL, up.URL}})

	got, err := c.TryFailoverURLs(context.Background(), "lms")
	if err != nil {
		t.Fatalf("TryFailoverURLs() = %v", err)
	}
	if got != up.URL {
		t.Errorf("TryFailoverURLs() = %q, want %q", got, up.URL)
	}

	if _, err := c.TryFailoverURLs(context.Background(), "sea"); err == nil {
		t.Error("unknown domain should fail")
	}

	urls := c.GetBaseURLs("lms")
	urls[0] = "mutated"
	if c.GetBaseURLs("lms")[0] == "mutated" {
		t.Error("GetBaseURLs() exposed internal slice")
	}
}

func TestTryFailoverURLs_AllDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(time.Second, 0, map[string][]string{"lms": {url}})
	_, err := c.TryFailoverURLs(context.Background(), "lms")
	if !errors.Is(err, ErrAllURLsFailed) {
		t.Errorf("err = %v, want ErrAllURLsFailed", err)
	}
	if !strings.Contains(err.Error(), "lms") {
		t.Errorf("err = %v, want domain in message", err)
	}
}
