package directory

import (
	"cmp"
	"slices"
	"time"
)

// CohortSnapshot is the persisted form of one fetched cohort.
type CohortSnapshot struct {
	Cohort    Cohort
	FetchedAt time.Time
	Entries   []Entry
}

// Export returns every fetched cohort, ordered by year then department.
func (ix *Index) Export() []CohortSnapshot {
	ix.mu.RLock()
	snapshots := make([]CohortSnapshot, 0, len(ix.fetched))
	for c, at := range ix.fetched {
		ids := ix.members[c]
		entries := make([]Entry, 0, len(ids))
		for _, id := range ids {
			entries = append(entries, Entry{ID: id, Name: ix.names[id]})
		}
		slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
		snapshots = append(snapshots, CohortSnapshot{Cohort: c, FetchedAt: at, Entries: entries})
	}
	ix.mu.RUnlock()

	slices.SortFunc(snapshots, func(a, b CohortSnapshot) int {
		return cmp.Or(cmp.Compare(a.Cohort.Year, b.Cohort.Year), cmp.Compare(a.Cohort.Department, b.Cohort.Department))
	})
	return snapshots
}

// Restore loads previously exported cohorts. Cohorts already present in the
// index are left alone. Restored cohorts count as fetched, so the next
// refresh only re-queries the trailing window and missing cohorts.
// Returns the number of cohorts restored.
func (ix *Index) Restore(snapshots []CohortSnapshot) int {
	restored := 0
	for _, s := range snapshots {
		if ix.IsFetched(s.Cohort) {
			continue
		}
		raw := make(map[string]string, len(s.Entries))
		for _, e := range s.Entries {
			raw[e.ID] = e.Name
		}
		ix.merge(s.Cohort, raw, s.FetchedAt)
		restored++
	}
	if restored > 0 {
		ix.log.WithField("cohorts", restored).Info("Directory restored from snapshot")
	}
	return restored
}
