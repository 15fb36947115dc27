package bot

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// BuildKeywordRegex matches any of keywords at the start of a text, followed
// by whitespace or the end of the text. Longer keywords are tried first, so
// "系代碼 85" matches "系代碼" rather than "系". Matching is case-insensitive.
// It panics if keywords is empty.
func BuildKeywordRegex(keywords []string) *regexp.Regexp {
	if len(keywords) == 0 {
		panic("BuildKeywordRegex: keywords cannot be empty")
	}

	sorted := slices.Clone(keywords)
	slices.SortFunc(sorted, func(a, b string) int { return len(b) - len(a) })
	for i, k := range sorted {
		sorted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(?i)^(` + strings.Join(sorted, "|") + `)(?:\s|$)`)
}

// MatchKeyword returns the keyword matched by regex, or "".
//
//	MatchKeyword(re, "學號 王小明") // "學號"
//	MatchKeyword(re, "學號王小明")  // ""
func MatchKeyword(regex *regexp.Regexp, text string) string {
	match := regex.FindStringSubmatch(text)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// ExtractSearchTerm removes keyword from the start or end of text (or its
// first occurrence elsewhere) and trims the rest.
func ExtractSearchTerm(text, keyword string) string {
	text = strings.TrimSpace(text)
	if keyword == "" {
		return text
	}

	switch {
	case strings.HasPrefix(text, keyword):
		return strings.TrimSpace(strings.TrimPrefix(text, keyword))
	case strings.HasSuffix(text, keyword):
		return strings.TrimSpace(strings.TrimSuffix(text, keyword))
	default:
		return strings.TrimSpace(strings.Replace(text, keyword, "", 1))
	}
}

// SanitizeText drops punctuation and symbols, keeps letters, digits and
// CJK ideographs, and collapses whitespace. An ideographic space counts as
// whitespace.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
