package directory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// RefreshResult summarises one refresh pass.
type RefreshResult struct {
	Skipped   bool // another refresh was already running
	Attempted int
	Succeeded int
	Entries   int // entries merged during this pass
	Failures  []*CohortFetchError
	Duration  time.Duration
	Finished  time.Time
}

// Failed returns the number of cohorts that could not be fetched.
func (r RefreshResult) Failed() int {
	return len(r.Failures)
}

// Refresh fetches every in-scope cohort that has not been fetched yet, plus
// the trailing window of newest years, and merges the results.
//
// Only one refresh runs at a time; a call made while another is running
// returns immediately with Skipped set. Per-cohort failures are collected
// in the result and never abort the pass. ErrServiceUnreachable is returned
// only when every attempted cohort failed to reach the service.
func (ix *Index) Refresh(ctx context.Context) (RefreshResult, error) {
	if !ix.refreshing.CompareAndSwap(false, true) {
		ix.log.Debug("Refresh already running, skipping")
		return RefreshResult{Skipped: true}, nil
	}
	defer ix.refreshing.Store(false)

	start := time.Now()
	pending := ix.pendingCohorts()
	floor, ceiling := ix.Scope()
	ix.log.WithFields(map[string]any{
		"cohorts": len(pending),
		"floor":   floor,
		"ceiling": ceiling,
		"fan_out": ix.cfg.FanOut,
	}).Info("Directory refresh started")

	result := RefreshResult{Attempted: len(pending)}
	var resultMu sync.Mutex

	// Plain group: one failed cohort must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(ix.cfg.FanOut)
	for _, c := range pending {
		g.Go(func() error {
			n, err := ix.fetchAndMerge(ctx, c)

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, &CohortFetchError{Cohort: c, Err: err})
				ix.log.WithError(err).WithField("cohort", c.String()).Warn("Cohort fetch failed")
				return nil
			}
			result.Succeeded++
			result.Entries += n
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(result.Failures, func(a, b *CohortFetchError) int {
		return cmp.Or(cmp.Compare(a.Cohort.Year, b.Cohort.Year), cmp.Compare(a.Cohort.Department, b.Cohort.Department))
	})
	result.Duration = time.Since(start)
	result.Finished = ix.now()

	var err error
	if result.Attempted > 0 && result.Succeeded == 0 && ix.allUnreachable(result.Failures) {
		err = ErrServiceUnreachable
	}

	ix.statusMu.Lock()
	ix.lastResult = result
	ix.lastErr = err
	ix.statusMu.Unlock()

	ix.markReady()
	ix.recordRefresh(result, err)
	return result, err
}

// FetchCohort returns the cohort's members, fetching it first when it has
// never been fetched. Concurrent calls for the same cohort, including the
// one a running refresh makes, share a single request.
func (ix *Index) FetchCohort(ctx context.Context, c Cohort) ([]Entry, error) {
	if !ix.IsFetched(c) {
		if _, err := ix.fetchAndMerge(ctx, c); err != nil {
			return nil, &CohortFetchError{Cohort: c, Err: err}
		}
	}
	return ix.Members(c), nil
}

// Run refreshes once immediately and then every interval until ctx is done.
// onDone, when set, is called after each pass that was not skipped.
func (ix *Index) Run(ctx context.Context, interval time.Duration, onDone func(RefreshResult, error)) {
	refresh := func() {
		result, err := ix.Refresh(ctx)
		if onDone != nil && !result.Skipped {
			onDone(result, err)
		}
	}

	refresh()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// pendingCohorts lists cohorts to fetch, newest year first.
func (ix *Index) pendingCohorts() []Cohort {
	floor, ceiling := ix.Scope()
	trailingFrom := ceiling - ix.cfg.TrailingWindow + 1

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var pending []Cohort
	for year := ceiling; year >= floor; year-- {
		for _, dept := range ix.cfg.Departments {
			c := Cohort{Year: year, Department: dept}
			if _, done := ix.fetched[c]; done && year < trailingFrom {
				continue
			}
			pending = append(pending, c)
		}
	}
	return pending
}

// fetchAndMerge fetches one cohort through the shared flight. The flight
// runs detached from any single caller, bounded only by FetchTimeout, and
// each caller stops waiting when its own ctx is done.
func (ix *Index) fetchAndMerge(ctx context.Context, c Cohort) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ch := ix.flight.DoChan(c.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ix.cfg.FetchTimeout)
		defer cancel()

		raw, err := ix.fetcher.FetchCohort(fetchCtx, c)
		if err != nil {
			ix.recordFetch(err)
			return 0, err
		}
		ix.recordFetch(nil)
		return ix.merge(c, raw, ix.now()), nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Shared && ix.metrics != nil {
			ix.metrics.RecordSingleflightDedup(moduleName)
		}
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}

// IsUnreachable reports whether err means the directory service itself
// could not be reached, using the predicate set by WithUnreachable.
func (ix *Index) IsUnreachable(err error) bool {
	return err != nil && ix.unreachable(err)
}

func (ix *Index) allUnreachable(failures []*CohortFetchError) bool {
	for _, f := range failures {
		if !ix.unreachable(f.Err) {
			return false
		}
	}
	return len(failures) > 0
}

func (ix *Index) recordFetch(err error) {
	if ix.metrics == nil {
		return
	}
	switch {
	case err == nil:
		ix.metrics.RecordCohortFetch("success")
	case ix.unreachable(err):
		ix.metrics.RecordCohortFetch("unreachable")
	default:
		ix.metrics.RecordCohortFetch("error")
	}
}

func (ix *Index) recordRefresh(result RefreshResult, err error) {
	status := "success"
	switch {
	case err != nil:
		status = "unreachable"
	case result.Failed() > 0:
		status = "partial"
	}

	log := ix.log.WithFields(map[string]any{
		"attempted": result.Attempted,
		"succeeded": result.Succeeded,
		"failed":    result.Failed(),
		"entries":   result.Entries,
		"duration":  result.Duration.String(),
	})
	if err != nil {
		log.WithError(err).Error("Directory refresh could not reach the service")
	} else {
		log.Info("Directory refresh completed")
	}

	if ix.metrics != nil {
		ix.metrics.RecordRefresh(status, result.Duration.Seconds())
	}
}

func isServiceUnreachable(err error) bool {
	return errors.Is(err, ErrServiceUnreachable)
}
