// Package scraper provides the HTTP client used to read NTPU web pages:
// request pacing, retries with backoff, base URL failover, and HTML
// decoding (gzip and Big5).
package scraper

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/corpix/uarand"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	apperrors "github.com/garyellow/ntpu-directory-bot/internal/errors"
	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
	"github.com/garyellow/ntpu-directory-bot/internal/ratelimit"
)

const (
	defaultRetryDelay      = 4 * time.Second
	defaultRequestInterval = 2 * time.Second
)

// Client is an HTTP client for web scraping with rate limiting and URL failover
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	maxRetries int
	retryDelay time.Duration
	metrics    *metrics.Metrics
	module     string

	mu       sync.RWMutex
	baseURLs map[string][]string // Base URLs for failover by domain
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records request counts and latency under module.
func WithMetrics(m *metrics.Metrics, module string) Option {
	return func(c *Client) {
		c.metrics = m
		c.module = module
	}
}

// WithRetryDelay sets the initial backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithRequestInterval sets the minimum spacing between requests.
// Zero disables pacing.
func WithRequestInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = ratelimit.NewInterval(d)
	}
}

// NewClient creates a scraper client. baseURLs maps a domain key such as
// "lms" to its mirrors, fastest first.
func NewClient(timeout time.Duration, maxRetries int, baseURLs map[string][]string, opts ...Option) *Client {
	urls := make(map[string][]string, len(baseURLs))
	for domain, list := range baseURLs {
		urls[domain] = append([]string(nil), list...)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:    ratelimit.NewInterval(defaultRequestInterval),
		maxRetries: maxRetries,
		retryDelay: defaultRetryDelay,
		module:     "scraper",
		baseURLs:   urls,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET request with rate limiting and retries.
// Caller is responsible for closing the response body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url, "", "")
}

// GetDocument performs a GET request and parses the response as HTML
func (c *Client) GetDocument(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	return decodeDocument(resp)
}

// PostFormDocument posts a pre-encoded form body and parses the response
// as HTML. The body is sent as given so callers can choose the encoding.
func (c *Client) PostFormDocument(ctx context.Context, postURL, form string) (*goquery.Document, error) {
	resp, err := c.do(ctx, http.MethodPost, postURL, form, "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	return decodeDocument(resp)
}

func (c *Client) do(ctx context.Context, method, url, body, contentType string) (*http.Response, error) {
	var resp *http.Response
	start := time.Now()

	err := RetryWithBackoff(ctx, c.maxRetries, c.retryDelay, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return permanent(err)
			}
		}

		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return permanent(fmt.Errorf("failed to create request: %w", err))
		}

		req.Header.Set("User-Agent", uarand.GetRandom())
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7")
		req.Header.Set("Accept-Encoding", "gzip")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		res, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return permanent(err)
			}
			return fmt.Errorf("request failed: %w", err)
		}

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			resp = res
			return nil
		}
		_ = res.Body.Close()

		switch res.StatusCode {
		case http.StatusTooManyRequests:
			return apperrors.NewScraperError(url, res.StatusCode, fmt.Errorf("rate limited"))
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusInternalServerError:
			return apperrors.NewScraperError(url, res.StatusCode, fmt.Errorf("server error"))
		case http.StatusNotFound, http.StatusForbidden, http.StatusUnauthorized:
			return permanent(apperrors.NewScraperError(url, res.StatusCode, fmt.Errorf("client error (not retrying)")))
		default:
			return apperrors.NewScraperError(url, res.StatusCode, fmt.Errorf("unexpected status"))
		}
	})

	c.record(err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) record(err error, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordScraperRequest(c.module, status, elapsed.Seconds())
}

// decodeDocument parses the body as HTML, undoing gzip and converting Big5
// pages (common on Taiwanese school sites) to UTF-8.
func decodeDocument(resp *http.Response) (*goquery.Document, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer func() { _ = gzipReader.Close() }()
		reader = gzipReader
	}

	if strings.Contains(strings.ToUpper(resp.Header.Get("Content-Type")), "BIG5") {
		reader = transform.NewReader(reader, traditionalchinese.Big5.NewDecoder())
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// TryFailoverURLs probes the mirrors of domain in order and returns the
// first one that answers below 500.
func (c *Client) TryFailoverURLs(ctx context.Context, domain string) (string, error) {
	urls := c.GetBaseURLs(domain)
	if len(urls) == 0 {
		return "", fmt.Errorf("no failover URLs configured for domain: %s", domain)
	}

	for _, baseURL := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", uarand.GetRandom())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			continue
		}
		_ = resp.Body.Close()

		if resp.StatusCode < 500 {
			return baseURL, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrAllURLsFailed, domain)
}

// GetBaseURLs returns a copy of the mirrors configured for domain.
func (c *Client) GetBaseURLs(domain string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	urls, exists := c.baseURLs[domain]
	if !exists {
		return nil
	}
	return append([]string(nil), urls...)
}
