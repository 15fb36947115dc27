package scraper

import (
	"context"
	"fmt"
	"sync/atomic"
)

// URLCache remembers the working mirror of one domain. Reads are lock-free;
// a miss probes the mirrors with TryFailoverURLs. Callers Clear it after a
// failed scrape so the next Get re-detects.
type URLCache struct {
	client *Client
	domain string
	cache  atomic.Value // string
}

// NewURLCache creates a cache for domain, which must be configured on client.
func NewURLCache(client *Client, domain string) *URLCache {
	return &URLCache{
		client: client,
		domain: domain,
	}
}

// Get returns the cached mirror, probing when the cache is empty. If every
// probe fails the first configured mirror is returned so the caller's own
// request surfaces the real error.
func (c *URLCache) Get(ctx context.Context) (string, error) {
	if url := c.GetCached(); url != "" {
		return url, nil
	}

	baseURL, err := c.client.TryFailoverURLs(ctx, c.domain)
	if err != nil {
		urls := c.client.GetBaseURLs(c.domain)
		if len(urls) == 0 {
			return "", fmt.Errorf("no URLs available for domain %s: %w", c.domain, err)
		}
		baseURL = urls[0]
	}

	c.cache.Store(baseURL)
	return baseURL, nil
}

// Clear invalidates the cached URL, forcing re-detection on next Get().
func (c *URLCache) Clear() {
	c.cache.Store("")
}

// GetCached returns the cached URL without probing, or "".
func (c *URLCache) GetCached() string {
	if url, ok := c.cache.Load().(string); ok {
		return url
	}
	return ""
}
