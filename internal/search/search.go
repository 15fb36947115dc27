// Package search answers ID, cohort and name queries over the directory
// index.
package search

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/garyellow/ntpu-directory-bot/internal/department"
	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	"github.com/garyellow/ntpu-directory-bot/internal/studentid"
)

// Result paging. A name search never returns more than MaxPages*PageSize
// results; when it would, the most recent ones are kept.
const (
	PageSize   = 100
	MaxPages   = 5
	MaxResults = PageSize * MaxPages
)

// minFragmentDigits is the length from which a digit string is treated as a
// complete ID instead of a fragment.
const minFragmentDigits = studentid.ShortLength

// Reader is the read side of the directory index.
type Reader interface {
	Lookup(id string) (string, bool)
	Members(c directory.Cohort) []directory.Entry
	Range(fn func(id, name string) bool)
}

// Result is one directory entry with the fields inferred from its ID.
type Result struct {
	ID         string
	Name       string
	Year       int    // entry year decoded from the ID
	Department string // display name decoded from the ID
	// Inferred is set when Year and Department were decoded from the ID.
	// They are never checked against a registry.
	Inferred bool
}

// Matches is the outcome of a name or fragment search.
type Matches struct {
	Results []Result
	// Total is the number of matches before truncation.
	Total int
}

// Truncated reports whether older matches were dropped.
func (m Matches) Truncated() bool {
	return m.Total > len(m.Results)
}

// Engine runs queries against a Reader.
type Engine struct {
	index Reader
}

// New creates an engine over index.
func New(index Reader) *Engine {
	return &Engine{index: index}
}

// LookupByID returns the entry for an exact ID.
func (e *Engine) LookupByID(id string) (Result, bool) {
	name, ok := e.index.Lookup(id)
	if !ok {
		return Result{}, false
	}
	return newResult(id, name), true
}

// LookupByCohort returns every entry of the (year, department) cohort,
// sorted by ID ascending.
func (e *Engine) LookupByCohort(year int, dept string) []Result {
	entries := e.index.Members(directory.Cohort{Year: year, Department: dept})
	return toResults(entries)
}

// SearchByNameOrFragment matches text against names, or against IDs when
// text is a digit string shorter than a full ID.
//
// Matches are ordered by (ID length, ID) ascending, so older 8-digit IDs
// come first, and only the last MaxResults are kept.
func (e *Engine) SearchByNameOrFragment(text string) Matches {
	text = strings.TrimSpace(text)
	if text == "" {
		return Matches{}
	}

	var match func(id, name string) bool
	if isDigits(text) && len(text) < minFragmentDigits {
		match = func(id, _ string) bool { return strings.Contains(id, text) }
	} else {
		match = nameMatcher(text)
	}

	var found []directory.Entry
	e.index.Range(func(id, name string) bool {
		if match(id, name) {
			found = append(found, directory.Entry{ID: id, Name: name})
		}
		return true
	})

	slices.SortFunc(found, func(a, b directory.Entry) int {
		return cmp.Or(cmp.Compare(len(a.ID), len(b.ID)), cmp.Compare(a.ID, b.ID))
	})

	total := len(found)
	if total > MaxResults {
		found = found[total-MaxResults:]
	}
	return Matches{Results: toResults(found), Total: total}
}

// IsFragmentQuery reports whether text would be searched as an ID fragment.
func IsFragmentQuery(text string) bool {
	text = strings.TrimSpace(text)
	return isDigits(text) && len(text) < minFragmentDigits
}

// nameMatcher builds a matcher for a name query. Romanised queries match
// case-insensitively; other queries match as a substring or when the name
// contains every rune of the query ("王明" finds "王小明").
func nameMatcher(query string) func(id, name string) bool {
	if isRomanized(query) {
		lower := strings.ToLower(query)
		return func(_, name string) bool {
			return strings.Contains(strings.ToLower(name), lower)
		}
	}
	return func(_, name string) bool {
		return strings.Contains(name, query) || ContainsAllRunes(name, query)
	}
}

// ContainsAllRunes reports whether s contains every rune of chars,
// respecting multiplicity.
func ContainsAllRunes(s, chars string) bool {
	if chars == "" {
		return true
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	for _, r := range chars {
		if counts[r] == 0 {
			return false
		}
		counts[r]--
	}
	return true
}

func isRomanized(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r < unicode.MaxASCII && unicode.IsLetter(r)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func toResults(entries []directory.Entry) []Result {
	results := make([]Result, len(entries))
	for i, entry := range entries {
		results[i] = newResult(entry.ID, entry.Name)
	}
	return results
}

func newResult(id, name string) Result {
	r := Result{ID: id, Name: name}
	if sid, err := studentid.Decode(id); err == nil {
		r.Year = sid.Year
		r.Department = department.Describe(sid)
		r.Inferred = true
	}
	return r
}
