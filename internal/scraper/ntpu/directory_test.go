package ntpu

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	"github.com/garyellow/ntpu-directory-bot/internal/scraper"
)

func rosterPage(pages int, entries map[string]string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for id, name := range entries {
		fmt.Fprintf(&b, `<div class="bloglistTitle"><a href="/portfolio/%s">%s</a></div>`, id, name)
	}
	b.WriteString(`<div class="pager">`)
	for p := 1; p <= pages; p++ {
		fmt.Fprintf(&b, `<span class="item">%d</span>`, p)
	}
	b.WriteString(`<span class="item">下一頁</span></div></body></html>`)
	return b.String()
}

func newLMS(t *testing.T, handler http.HandlerFunc) (*DirectoryFetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := scraper.NewClient(5*time.Second, 0,
		map[string][]string{"lms": {srv.URL}},
		scraper.WithRequestInterval(0),
		scraper.WithRetryDelay(time.Millisecond),
	)
	return NewDirectoryFetcher(client), srv
}

func TestKeyword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cohort directory.Cohort
		want   string
	}{
		{directory.Cohort{Year: 101, Department: "85"}, "410185"},
		{directory.Cohort{Year: 99, Department: "712"}, "499712"},
		{directory.Cohort{Year: 112, Department: "744"}, "4112744"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Keyword(tt.cohort), tt.cohort.String())
	}
}

func TestFetchCohort_Paginates(t *testing.T) {
	t.Parallel()

	pages := map[string]map[string]string{
		"1": {"410185001": "王小明", "410185002": "李小華"},
		"2": {"410185003": "陳大文"},
		"3": {"410185004": " 林一 "},
	}
	var requests atomic.Int32
	fetcher, _ := newLMS(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		requests.Add(1)
		assert.Equal(t, "/portfolio/search.php", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("fmScope"))
		assert.Equal(t, "410185", r.URL.Query().Get("fmKeyword"))
		_, _ = w.Write([]byte(rosterPage(3, pages[r.URL.Query().Get("page")])))
	})

	roster, err := fetcher.FetchCohort(context.Background(), directory.Cohort{Year: 101, Department: "85"})
	require.NoError(t, err)

	assert.Equal(t, int32(3), requests.Load())
	assert.Equal(t, map[string]string{
		"410185001": "王小明",
		"410185002": "李小華",
		"410185003": "陳大文",
		"410185004": "林一",
	}, roster)
}

func TestFetchCohort_Empty(t *testing.T) {
	t.Parallel()

	fetcher, _ := newLMS(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>查無資料</body></html>"))
	})

	roster, err := fetcher.FetchCohort(context.Background(), directory.Cohort{Year: 113, Department: "85"})
	require.NoError(t, err)
	assert.Empty(t, roster)
}

func TestFetchCohort_PageFailure(t *testing.T) {
	t.Parallel()

	fetcher, _ := newLMS(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(rosterPage(2, map[string]string{"410185001": "王小明"})))
	})

	_, err := fetcher.FetchCohort(context.Background(), directory.Cohort{Year: 101, Department: "85"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 2")
	assert.True(t, scraper.IsNetworkError(err))
	assert.Empty(t, fetcher.urls.GetCached(), "failed fetch should clear the mirror cache")
}

func TestFetchCohort_CanceledContext(t *testing.T) {
	t.Parallel()

	fetcher, _ := newLMS(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fetcher.FetchCohort(ctx, directory.Cohort{Year: 101, Department: "85"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcherFeedsIndex(t *testing.T) {
	t.Parallel()

	fetcher, _ := newLMS(t, func(w http.ResponseWriter, r *http.Request) {
		var entries map[string]string
		if r.URL.Query().Get("fmKeyword") == "411285" {
			entries = map[string]string{"411285001": "王小明", "411185001": "外系"}
		}
		_, _ = w.Write([]byte(rosterPage(1, entries)))
	})

	idx := directory.New(fetcher, directory.Config{
		FloorYear:   112,
		CeilingYear: 112,
		FanOut:      2,
		Departments: []string{"85", "86"},
	})
	_, err := idx.Refresh(context.Background())
	require.NoError(t, err)

	name, ok := idx.Lookup("411285001")
	assert.True(t, ok)
	assert.Equal(t, "王小明", name)
	_, ok = idx.Lookup("411185001")
	assert.False(t, ok, "entries outside the cohort are dropped")
}
