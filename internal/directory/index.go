// Package directory keeps the in-memory student directory: an ID to name
// map assembled cohort by cohort from the external directory service.
//
// Reads are served concurrently with refreshes. Each cohort is merged under
// the write lock only for the time it takes to insert that cohort, so a
// long refresh never blocks lookups.
package directory

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/department"
	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
	"github.com/garyellow/ntpu-directory-bot/internal/studentid"
	"golang.org/x/sync/singleflight"
)

const moduleName = "directory"

// Cohort is one (entry year, department code) pair.
type Cohort struct {
	Year       int
	Department string
}

func (c Cohort) String() string {
	return fmt.Sprintf("%d/%s", c.Year, c.Department)
}

// Entry is one student known to the index.
type Entry struct {
	ID   string
	Name string
}

// Fetcher retrieves the roster of one cohort as an ID to name map.
// An empty map means the cohort has no students.
type Fetcher interface {
	FetchCohort(ctx context.Context, c Cohort) (map[string]string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, c Cohort) (map[string]string, error)

// FetchCohort calls f.
func (f FetcherFunc) FetchCohort(ctx context.Context, c Cohort) (map[string]string, error) {
	return f(ctx, c)
}

// Config controls which cohorts a refresh covers and how hard it hits the
// directory service.
type Config struct {
	FloorYear      int           // first entry year in scope
	CeilingYear    int           // last entry year in scope, 0 for the current ROC year
	TrailingWindow int           // newest years re-fetched on every pass
	FanOut         int           // concurrent cohort fetches
	FetchTimeout   time.Duration // per cohort
	Departments    []string      // defaults to department.FetchCodes()
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(ix *Index) { ix.log = log.WithModule(moduleName) }
}

// WithMetrics enables Prometheus reporting.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ix *Index) { ix.metrics = m }
}

// WithUnreachable sets the predicate deciding whether a fetch error means
// the service itself is down (DNS, connect, TLS) rather than one bad cohort.
func WithUnreachable(fn func(error) bool) Option {
	return func(ix *Index) { ix.unreachable = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(ix *Index) { ix.now = now }
}

// Index is the process-wide student directory.
type Index struct {
	fetcher     Fetcher
	cfg         Config
	log         *logger.Logger
	metrics     *metrics.Metrics
	unreachable func(error) bool
	now         func() time.Time

	mu      sync.RWMutex
	names   map[string]string
	members map[Cohort][]string
	fetched map[Cohort]time.Time

	flight     singleflight.Group
	refreshing atomic.Bool
	readyOnce  sync.Once
	ready      chan struct{}

	statusMu   sync.RWMutex
	lastResult RefreshResult
	lastErr    error
}

// New creates an empty index.
func New(fetcher Fetcher, cfg Config, opts ...Option) *Index {
	if cfg.FanOut <= 0 {
		cfg.FanOut = 1
	}
	if cfg.TrailingWindow < 0 {
		cfg.TrailingWindow = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = time.Minute
	}
	if len(cfg.Departments) == 0 {
		cfg.Departments = department.FetchCodes()
	}

	ix := &Index{
		fetcher:     fetcher,
		cfg:         cfg,
		log:         logger.NewWithWriter("error", io.Discard),
		unreachable: isServiceUnreachable,
		now:         time.Now,
		names:       make(map[string]string),
		members:     make(map[Cohort][]string),
		fetched:     make(map[Cohort]time.Time),
		ready:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Scope returns the inclusive range of entry years a refresh covers.
func (ix *Index) Scope() (floor, ceiling int) {
	ceiling = ix.cfg.CeilingYear
	if ceiling <= 0 {
		ceiling = studentid.CurrentYear(ix.now())
	}
	return ix.cfg.FloorYear, ceiling
}

// Lookup returns the name for an exact student ID.
func (ix *Index) Lookup(id string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	name, ok := ix.names[id]
	return name, ok
}

// Members returns the cohort's entries sorted by ID.
func (ix *Index) Members(c Cohort) []Entry {
	ix.mu.RLock()
	ids := ix.members[c]
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, Entry{ID: id, Name: ix.names[id]})
	}
	ix.mu.RUnlock()

	slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
	return entries
}

// Range calls fn for every entry until fn returns false. fn runs under the
// read lock and must not call back into the index.
func (ix *Index) Range(fn func(id, name string) bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for id, name := range ix.names {
		if !fn(id, name) {
			return
		}
	}
}

// IsFetched reports whether the cohort has been fetched at least once.
func (ix *Index) IsFetched(c Cohort) bool {
	_, ok := ix.FetchedAt(c)
	return ok
}

// FetchedAt returns when the cohort was last fetched.
func (ix *Index) FetchedAt(c Cohort) (time.Time, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	t, ok := ix.fetched[c]
	return t, ok
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.names)
}

// Stats summarises the index.
type Stats struct {
	Entries     int
	Cohorts     int
	LastRefresh RefreshResult
	Ready       bool
}

// Stats returns a point-in-time summary.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	s := Stats{Entries: len(ix.names), Cohorts: len(ix.fetched)}
	ix.mu.RUnlock()

	ix.statusMu.RLock()
	s.LastRefresh = ix.lastResult
	ix.statusMu.RUnlock()
	s.Ready = ix.IsReady()
	return s
}

// Ready is closed once the first refresh pass has completed.
func (ix *Index) Ready() <-chan struct{} {
	return ix.ready
}

// IsReady reports whether the first refresh pass has completed.
func (ix *Index) IsReady() bool {
	select {
	case <-ix.ready:
		return true
	default:
		return false
	}
}

// Health returns ErrServiceUnreachable while the last refresh could not
// reach the directory service, nil otherwise.
func (ix *Index) Health() error {
	ix.statusMu.RLock()
	defer ix.statusMu.RUnlock()
	return ix.lastErr
}

func (ix *Index) markReady() {
	ix.readyOnce.Do(func() {
		close(ix.ready)
		if ix.metrics != nil {
			ix.metrics.SetDirectoryReady(true)
		}
	})
}

// merge replaces the cohort's members with raw. Entries whose ID does not
// decode to the cohort are dropped. Returns the number of entries kept.
func (ix *Index) merge(c Cohort, raw map[string]string, fetchedAt time.Time) int {
	entries := make([]Entry, 0, len(raw))
	dropped := 0
	for id, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" || !belongsTo(id, c) {
			dropped++
			continue
		}
		entries = append(entries, Entry{ID: id, Name: name})
	}
	if dropped > 0 {
		ix.log.WithField("cohort", c.String()).
			WithField("dropped", dropped).
			Debug("Dropped entries outside cohort")
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	ix.mu.Lock()
	for _, id := range ix.members[c] {
		delete(ix.names, id)
	}
	for _, e := range entries {
		ix.names[e.ID] = e.Name
	}
	ix.members[c] = ids
	ix.fetched[c] = fetchedAt
	total, cohorts := len(ix.names), len(ix.fetched)
	ix.mu.Unlock()

	if ix.metrics != nil {
		ix.metrics.SetDirectorySize(total, cohorts)
	}
	return len(entries)
}

// belongsTo reports whether id is an undergraduate ID of cohort c.
func belongsTo(id string, c Cohort) bool {
	sid, err := studentid.Decode(id)
	if err != nil || !sid.IsUndergraduate() {
		return false
	}
	year, dept := sid.Cohort()
	return year == c.Year && dept == c.Department
}
