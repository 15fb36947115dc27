package search

import (
	"strconv"
	"strings"
)

// Field selects one column of a formatted result line.
type Field int

const (
	FieldID Field = iota
	FieldName
	FieldYear
	FieldDepartment
)

// Layout renders results as text lines with a chosen field order and gap.
type Layout struct {
	Fields []Field
	Gap    int // spaces between fields
}

// Common layouts.
var (
	// RosterLayout is used for cohort rosters, where year and department
	// are already in the heading.
	RosterLayout = Layout{Fields: []Field{FieldID, FieldName}, Gap: 2}
	// FullLayout is used for name search results.
	FullLayout = Layout{Fields: []Field{FieldID, FieldName, FieldYear, FieldDepartment}, Gap: 2}
)

// Line formats one result.
func (l Layout) Line(r Result) string {
	gap := strings.Repeat(" ", max(l.Gap, 1))
	parts := make([]string, 0, len(l.Fields))
	for _, f := range l.Fields {
		parts = append(parts, r.field(f))
	}
	return strings.Join(parts, gap)
}

// Lines formats results one per line.
func (l Layout) Lines(results []Result) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Line(r))
	}
	return b.String()
}

func (r Result) field(f Field) string {
	switch f {
	case FieldID:
		return r.ID
	case FieldName:
		return r.Name
	case FieldYear:
		if r.Year == 0 {
			return "?"
		}
		return strconv.Itoa(r.Year)
	case FieldDepartment:
		return r.Department
	default:
		return ""
	}
}

// Paginate splits results into pages of at most size entries.
func Paginate(results []Result, size int) [][]Result {
	if size <= 0 {
		size = PageSize
	}
	var pages [][]Result
	for start := 0; start < len(results); start += size {
		end := min(start+size, len(results))
		pages = append(pages, results[start:end])
	}
	return pages
}
