// Package ntpu reads NTPU web services.
package ntpu

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	"github.com/garyellow/ntpu-directory-bot/internal/scraper"
	"github.com/garyellow/ntpu-directory-bot/internal/studentid"
)

const (
	lmsDomain         = "lms"
	studentSearchPath = "/portfolio/search.php"
)

// DirectoryFetcher reads cohort rosters from the LMS portfolio search.
// It implements directory.Fetcher.
type DirectoryFetcher struct {
	client *scraper.Client
	urls   *scraper.URLCache
}

// NewDirectoryFetcher creates a fetcher backed by the "lms" mirrors of client.
func NewDirectoryFetcher(client *scraper.Client) *DirectoryFetcher {
	return &DirectoryFetcher{
		client: client,
		urls:   scraper.NewURLCache(client, lmsDomain),
	}
}

// Keyword returns the search keyword selecting the undergraduate cohort c:
// the degree digit, the entry year and the department code, e.g. "410185"
// for year 101 department 85 and "49971" for year 99 department 71.
func Keyword(c directory.Cohort) string {
	return strconv.Itoa(studentid.DegreeUndergraduate) + strconv.Itoa(c.Year) + c.Department
}

// FetchCohort walks every result page for c and returns ID to name.
// URL: {baseURL}/portfolio/search.php?fmScope=2&page={n}&fmKeyword={keyword}
func (f *DirectoryFetcher) FetchCohort(ctx context.Context, c directory.Cohort) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	baseURL, err := f.urls.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get working LMS URL: %w", err)
	}

	keyword := Keyword(c)
	doc, err := f.client.GetDocument(ctx, searchURL(baseURL, keyword, 1))
	if err != nil {
		f.urls.Clear()
		return nil, fmt.Errorf("cohort %s: failed to fetch first page: %w", c, err)
	}

	roster := make(map[string]string)
	parseRosterPage(doc, roster)

	for page := 2; page <= pageCount(doc); page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cohort %s: canceled at page %d: %w", c, page, err)
		}

		doc, err := f.client.GetDocument(ctx, searchURL(baseURL, keyword, page))
		if err != nil {
			f.urls.Clear()
			return nil, fmt.Errorf("cohort %s: failed to fetch page %d: %w", c, page, err)
		}
		parseRosterPage(doc, roster)
	}

	return roster, nil
}

func searchURL(baseURL, keyword string, page int) string {
	return fmt.Sprintf("%s%s?fmScope=2&page=%d&fmKeyword=%s", baseURL, studentSearchPath, page, keyword)
}

// pageCount reads the highest number among the <span class="item"> pager links.
func pageCount(doc *goquery.Document) int {
	total := 1
	doc.Find("span.item").Each(func(_ int, s *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(s.Text())); err == nil && n > total {
			total = n
		}
	})
	return total
}

// parseRosterPage adds every <div class="bloglistTitle"><a href=".../{id}">name</a>
// entry of doc to roster.
func parseRosterPage(doc *goquery.Document, roster map[string]string) {
	doc.Find("div.bloglistTitle a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		id := strings.TrimSpace(href[strings.LastIndex(href, "/")+1:])
		if id == "" {
			return
		}
		roster[id] = strings.TrimSpace(s.Text())
	})
}
