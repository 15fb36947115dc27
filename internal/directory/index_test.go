package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// makeID builds an undergraduate ID for a cohort.
func makeID(year int, dept string, seq int) string {
	return fmt.Sprintf("4%d%s%0*d", year, dept, 5-len(dept), seq)
}

type fakeFetcher struct {
	mu       sync.Mutex
	calls    atomic.Int32
	rosters  map[Cohort]map[string]string
	failures map[Cohort]error
	block    chan struct{} // when set, fetches wait on it
	started  chan Cohort   // when set, receives every fetch as it starts

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		rosters:  make(map[Cohort]map[string]string),
		failures: make(map[Cohort]error),
	}
}

func (f *fakeFetcher) setRoster(c Cohort, size int) {
	roster := make(map[string]string, size)
	for i := 1; i <= size; i++ {
		roster[makeID(c.Year, c.Department, i)] = fmt.Sprintf("學生%s-%d", c, i)
	}
	f.mu.Lock()
	f.rosters[c] = roster
	f.mu.Unlock()
}

func (f *fakeFetcher) setFailure(c Cohort, err error) {
	f.mu.Lock()
	f.failures[c] = err
	f.mu.Unlock()
}

func (f *fakeFetcher) FetchCohort(ctx context.Context, c Cohort) (map[string]string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxInFlight.Load()
		if n <= prev || f.maxInFlight.CompareAndSwap(prev, n) {
			break
		}
	}

	if f.started != nil {
		f.started <- c
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[c]; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(f.rosters[c]))
	for id, name := range f.rosters[c] {
		out[id] = name
	}
	return out, nil
}

func testConfig(floor, ceiling int, depts ...string) Config {
	return Config{
		FloorYear:      floor,
		CeilingYear:    ceiling,
		TrailingWindow: 1,
		FanOut:         4,
		FetchTimeout:   time.Second,
		Departments:    depts,
	}
}

func TestRefreshPopulatesIndex(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	cohorts := []Cohort{{111, "85"}, {111, "712"}, {112, "85"}, {112, "712"}}
	for _, c := range cohorts {
		f.setRoster(c, 3)
	}
	ix := New(f, testConfig(111, 112, "85", "712"))

	if ix.IsReady() {
		t.Fatal("index should not be ready before the first refresh")
	}

	result, err := ix.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if result.Attempted != 4 || result.Succeeded != 4 || result.Entries != 12 {
		t.Errorf("result = %+v, want 4 attempted, 4 succeeded, 12 entries", result)
	}
	if !ix.IsReady() {
		t.Error("index should be ready after the first refresh")
	}
	select {
	case <-ix.Ready():
	default:
		t.Error("Ready() channel should be closed")
	}

	// Every member of every cohort is found exactly once.
	for _, c := range cohorts {
		members := ix.Members(c)
		if len(members) != 3 {
			t.Errorf("Members(%s) = %d entries, want 3", c, len(members))
		}
		for i := 1; i <= 3; i++ {
			id := makeID(c.Year, c.Department, i)
			if name, ok := ix.Lookup(id); !ok || name == "" {
				t.Errorf("Lookup(%s) = %q, %v", id, name, ok)
			}
		}
	}
	if ix.Len() != 12 {
		t.Errorf("Len() = %d, want 12", ix.Len())
	}
}

func TestRefreshDropsEntriesOutsideCohort(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	c := Cohort{112, "85"}
	f.setRoster(c, 2)
	f.mu.Lock()
	// Other department, other year, a master's student and a blank name.
	f.rosters[c][makeID(112, "86", 1)] = "隔壁系"
	f.rosters[c][makeID(111, "85", 1)] = "學長"
	f.rosters[c]["711285001"] = "碩士生"
	f.rosters[c][makeID(112, "85", 9)] = "   "
	f.mu.Unlock()

	ix := New(f, testConfig(112, 112, "85"))
	if _, err := ix.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	members := ix.Members(c)
	if len(members) != 2 {
		t.Fatalf("Members() = %v, want 2 entries", members)
	}
	for _, e := range members {
		if !belongsTo(e.ID, c) {
			t.Errorf("entry %s does not belong to %s", e.ID, c)
		}
	}
	if _, ok := ix.Lookup(makeID(112, "86", 1)); ok {
		t.Error("entry from another department was indexed")
	}
}

func TestRefreshIsIncremental(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	for year := 110; year <= 112; year++ {
		f.setRoster(Cohort{year, "85"}, 2)
		f.setRoster(Cohort{year, "86"}, 2)
	}
	ix := New(f, testConfig(110, 112, "85", "86"))

	if _, err := ix.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh() error: %v", err)
	}
	if got := f.calls.Load(); got != 6 {
		t.Fatalf("first refresh made %d fetches, want 6", got)
	}

	result, err := ix.Refresh(context.Background())
	if err != nil {
		t.Fatalf("second Refresh() error: %v", err)
	}
	// Only the trailing year (112) is fetched again.
	if result.Attempted != 2 {
		t.Errorf("second refresh attempted %d cohorts, want 2", result.Attempted)
	}
	if got := f.calls.Load(); got != 8 {
		t.Errorf("total fetches = %d, want 8", got)
	}
}

func TestRefreshReplacesTrailingCohort(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	c := Cohort{112, "85"}
	f.setRoster(c, 5)
	ix := New(f, testConfig(112, 112, "85"))

	if _, err := ix.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	// Two students withdrew.
	f.setRoster(c, 3)
	if _, err := ix.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	if got := len(ix.Members(c)); got != 3 {
		t.Errorf("Members() = %d entries, want 3", got)
	}
	if _, ok := ix.Lookup(makeID(112, "85", 5)); ok {
		t.Error("withdrawn student is still indexed")
	}
	if ix.Len() != 3 {
		t.Errorf("Len() = %d, want 3", ix.Len())
	}
}

func TestRefreshFailureIsIsolated(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	failing := Cohort{113, "85"}
	other := Cohort{113, "86"}
	f.setRoster(failing, 4)
	f.setRoster(other, 4)
	ix := New(f, testConfig(113, 113, "85", "86"))

	if _, err := ix.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	before := ix.Members(failing)

	f.setFailure(failing, errors.New("page layout changed"))
	f.setRoster(other, 6)

	result, err := ix.Refresh(context.Background())
	if err != nil {
		t.Fatalf("a single failed cohort must not fail the refresh: %v", err)
	}
	if result.Failed() != 1 || result.Succeeded != 1 {
		t.Errorf("result = %+v, want 1 failed and 1 succeeded", result)
	}
	var fetchErr *CohortFetchError
	if !errors.As(result.Failures[0], &fetchErr) || fetchErr.Cohort != failing {
		t.Errorf("failure = %v, want cohort %s", result.Failures[0], failing)
	}

	after := ix.Members(failing)
	if len(after) != len(before) {
		t.Fatalf("failed cohort changed from %d to %d entries", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("entry %d changed: %v -> %v", i, before[i], after[i])
		}
	}
	if got := len(ix.Members(other)); got != 6 {
		t.Errorf("other cohort has %d entries, want 6", got)
	}
	if err := ix.Health(); err != nil {
		t.Errorf("Health() = %v, want nil after partial failure", err)
	}
}

func TestRefreshServiceUnreachable(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	down := fmt.Errorf("dial tcp: %w", ErrServiceUnreachable)
	f.setFailure(Cohort{112, "85"}, down)
	f.setFailure(Cohort{112, "86"}, down)
	ix := New(f, testConfig(112, 112, "85", "86"))

	result, err := ix.Refresh(context.Background())
	if !errors.Is(err, ErrServiceUnreachable) {
		t.Fatalf("Refresh() error = %v, want ErrServiceUnreachable", err)
	}
	if result.Failed() != 2 {
		t.Errorf("Failed() = %d, want 2", result.Failed())
	}
	if !errors.Is(ix.Health(), ErrServiceUnreachable) {
		t.Errorf("Health() = %v, want ErrServiceUnreachable", ix.Health())
	}
	if !ix.IsReady() {
		t.Error("a completed pass marks the index ready even when degraded")
	}

	// Service comes back.
	f.setFailure(Cohort{112, "85"}, nil)
	f.setFailure(Cohort{112, "86"}, nil)
	f.setRoster(Cohort{112, "85"}, 1)
	if _, err := ix.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error after recovery: %v", err)
	}
	if err := ix.Health(); err != nil {
		t.Errorf("Health() = %v after recovery, want nil", err)
	}
}

func TestRefreshMixedFailuresAreNotUnreachable(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.setFailure(Cohort{112, "85"}, ErrServiceUnreachable)
	f.setFailure(Cohort{112, "86"}, errors.New("unexpected markup"))
	ix := New(f, testConfig(112, 112, "85", "86"))

	if _, err := ix.Refresh(context.Background()); err != nil {
		t.Errorf("Refresh() error = %v, want nil", err)
	}
}

func TestRefreshWithCustomUnreachable(t *testing.T) {
	t.Parallel()

	connRefused := errors.New("connection refused")
	f := newFakeFetcher()
	f.setFailure(Cohort{112, "85"}, connRefused)
	ix := New(f, testConfig(112, 112, "85"), WithUnreachable(func(err error) bool {
		return errors.Is(err, connRefused)
	}))

	if _, err := ix.Refresh(context.Background()); !errors.Is(err, ErrServiceUnreachable) {
		t.Errorf("Refresh() error = %v, want ErrServiceUnreachable", err)
	}
}

func TestConcurrentRefreshIsNoop(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.block = make(chan struct{})
	f.started = make(chan Cohort, 1)
	f.setRoster(Cohort{112, "85"}, 2)
	ix := New(f, testConfig(112, 112, "85"))

	done := make(chan RefreshResult)
	go func() {
		result, _ := ix.Refresh(context.Background())
		done <- result
	}()

	<-f.started // first refresh is mid-fetch

	second, err := ix.Refresh(context.Background())
	if err != nil {
		t.Fatalf("overlapping Refresh() error: %v", err)
	}
	if !second.Skipped {
		t.Error("overlapping refresh should be skipped")
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetch count = %d, want 1", got)
	}

	close(f.block)
	first := <-done
	if first.Skipped || first.Succeeded != 1 {
		t.Errorf("first refresh = %+v", first)
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetch count after completion = %d, want 1", got)
	}
}

func TestRefreshRespectsFanOut(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	cfg := testConfig(101, 112, "85", "86", "87")
	cfg.FanOut = 2
	ix := New(f, cfg)

	if _, err := ix.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if got := f.calls.Load(); got != 36 {
		t.Errorf("fetch count = %d, want 36", got)
	}
	if got := f.maxInFlight.Load(); got > 2 {
		t.Errorf("max concurrent fetches = %d, want <= 2", got)
	}
}

func TestScopeDefaultsToCurrentYear(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) // ROC 114
	ix := New(newFakeFetcher(), Config{FloorYear: 110}, WithClock(func() time.Time { return now }))

	floor, ceiling := ix.Scope()
	if floor != 110 || ceiling != 114 {
		t.Errorf("Scope() = (%d, %d), want (110, 114)", floor, ceiling)
	}
}

func TestFetchCohortOnDemand(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	c := Cohort{105, "87"}
	f.setRoster(c, 3)
	ix := New(f, testConfig(112, 112, "85"))

	entries, err := ix.FetchCohort(context.Background(), c)
	if err != nil {
		t.Fatalf("FetchCohort() error: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("FetchCohort() = %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].ID >= entries[i].ID {
			t.Errorf("entries not sorted: %s >= %s", entries[i-1].ID, entries[i].ID)
		}
	}

	// Already fetched: served from the index.
	if _, err := ix.FetchCohort(context.Background(), c); err != nil {
		t.Fatalf("FetchCohort() error: %v", err)
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetch count = %d, want 1", got)
	}

	f.setFailure(Cohort{105, "86"}, errors.New("boom"))
	_, err = ix.FetchCohort(context.Background(), Cohort{105, "86"})
	var fetchErr *CohortFetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("FetchCohort() error = %v, want *CohortFetchError", err)
	}
}

func TestRefreshJoiningFetchIgnoresCallerDeadline(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.block = make(chan struct{})
	f.started = make(chan Cohort, 1)
	c := Cohort{112, "85"}
	f.setRoster(c, 2)
	ix := New(f, testConfig(112, 112, "85"))

	// A user request with a short deadline starts the fetch.
	userCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	userErr := make(chan error, 1)
	go func() {
		_, err := ix.FetchCohort(userCtx, c)
		userErr <- err
	}()
	<-f.started

	// The refresh joins the same flight.
	type outcome struct {
		result RefreshResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := ix.Refresh(context.Background())
		done <- outcome{result, err}
	}()

	if err := <-userErr; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("FetchCohort() error = %v, want deadline exceeded", err)
	}
	close(f.block)

	got := <-done
	if got.err != nil {
		t.Fatalf("Refresh() error = %v", got.err)
	}
	if got.result.Succeeded != 1 || len(got.result.Failures) != 0 {
		t.Errorf("Refresh() = %+v, want one success and no failures", got.result)
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch count = %d, want 1", n)
	}
	if ix.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ix.Len())
	}
}

func TestFetchCohortCanceledBeforeStart(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	ix := New(f, testConfig(112, 112, "85"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ix.FetchCohort(ctx, Cohort{105, "85"}); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchCohort() error = %v, want context.Canceled", err)
	}
	if n := f.calls.Load(); n != 0 {
		t.Errorf("fetch count = %d, want 0", n)
	}
}

func TestExportRestore(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	for year := 111; year <= 112; year++ {
		f.setRoster(Cohort{year, "85"}, 2)
	}
	src := New(f, testConfig(111, 112, "85"))
	if _, err := src.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	snapshots := src.Export()
	if len(snapshots) != 2 || snapshots[0].Cohort.Year != 111 {
		t.Fatalf("Export() = %+v", snapshots)
	}

	f2 := newFakeFetcher()
	f2.setRoster(Cohort{112, "85"}, 2)
	dst := New(f2, testConfig(111, 112, "85"))
	if n := dst.Restore(snapshots); n != 2 {
		t.Errorf("Restore() = %d, want 2", n)
	}
	if dst.Len() != 4 {
		t.Errorf("Len() after restore = %d, want 4", dst.Len())
	}
	if dst.IsReady() {
		t.Error("restore alone must not mark the index ready")
	}

	if _, err := dst.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if got := f2.calls.Load(); got != 1 {
		t.Errorf("refresh after restore made %d fetches, want 1 (trailing year only)", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	ix := New(f, testConfig(112, 112, "85"))

	ctx, cancel := context.WithCancel(context.Background())
	var passes atomic.Int32
	done := make(chan struct{})
	go func() {
		ix.Run(ctx, time.Hour, func(RefreshResult, error) { passes.Add(1) })
		close(done)
	}()

	<-ix.Ready()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := passes.Load(); got != 1 {
		t.Errorf("passes = %d, want 1", got)
	}
}

func TestRangeStopsEarly(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.setRoster(Cohort{112, "85"}, 10)
	ix := New(f, testConfig(112, 112, "85"))
	if _, err := ix.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	visited := 0
	ix.Range(func(string, string) bool {
		visited++
		return visited < 3
	})
	if visited != 3 {
		t.Errorf("visited = %d, want 3", visited)
	}
}
