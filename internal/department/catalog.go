// Package department holds the static NTPU department catalog: code and
// name lookups, the law and sociology families, the college tree used by
// the roster menu, and graduate program names.
package department

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrUnknownDepartment is returned for codes absent from the catalog.
	ErrUnknownDepartment = errors.New("department: unknown code")
	// ErrAmbiguousFamily is returned for a bare family base with several members.
	ErrAmbiguousFamily = errors.New("department: family code needs a group suffix")
)

// Department is one undergraduate department or group.
type Department struct {
	Code     string
	Name     string // short form, e.g. "資工"
	FullName string // official form, e.g. "資訊工程學系"
}

// Family is a 2-digit base code shared by several groups that differ only
// by a trailing digit.
type Family struct {
	Base     string
	Name     string
	Suffixes []string
}

// Members returns the full codes of the family.
func (f Family) Members() []string {
	codes := make([]string, len(f.Suffixes))
	for i, s := range f.Suffixes {
		codes[i] = f.Base + s
	}
	return codes
}

// undergraduate lists every undergraduate department in display order.
var undergraduate = []Department{
	{"712", "法學", "法律學系法學組"},
	{"714", "司法", "法律學系司法組"},
	{"716", "財法", "法律學系財經法組"},
	{"72", "公行", "公共行政暨政策學系"},
	{"73", "經濟", "經濟學系"},
	{"742", "社學", "社會學系"},
	{"744", "社工", "社會工作學系"},
	{"75", "財政", "財政學系"},
	{"76", "不動", "不動產與城鄉環境學系"},
	{"77", "會計", "會計學系"},
	{"78", "統計", "統計學系"},
	{"79", "企管", "企業管理學系"},
	{"80", "金融", "金融與合作經營學系"},
	{"81", "中文", "中國文學系"},
	{"82", "應外", "應用外語學系"},
	{"83", "歷史", "歷史學系"},
	{"84", "休運", "休閒運動管理學系"},
	{"85", "資工", "資訊工程學系"},
	{"86", "通訊", "通訊工程學系"},
	{"87", "電機", "電機工程學系"},
}

var families = []Family{
	{Base: "71", Name: "法律", Suffixes: []string{"2", "4", "6"}},
	{Base: "74", Name: "社會", Suffixes: []string{"2", "4"}},
}

var (
	byCode     = map[string]Department{}
	shortCodes = map[string]string{}
	fullCodes  = map[string]string{}
	familyOf   = map[string]Family{}
)

func init() {
	for _, d := range undergraduate {
		byCode[d.Code] = d
		shortCodes[d.Name] = d.Code
		fullCodes[d.FullName] = d.Code
	}
	for _, f := range families {
		familyOf[f.Base] = f
		shortCodes[f.Name] = f.Base
		for _, code := range f.Members() {
			familyOf[code] = f
		}
	}
	fullCodes["法律學系"] = "71"
}

// classifierSuffixes are stripped from user input before a second lookup.
var classifierSuffixes = []string{"學系", "系", "組", "所"}

// CodeOf resolves a short or full department name to its code.
// A trailing classifier word such as "系" is ignored.
func CodeOf(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if code, ok := lookupName(name); ok {
		return code, true
	}
	for _, suffix := range classifierSuffixes {
		if trimmed, ok := strings.CutSuffix(name, suffix); ok && trimmed != "" {
			if code, ok := lookupName(trimmed); ok {
				return code, true
			}
		}
	}
	return "", false
}

func lookupName(name string) (string, bool) {
	if code, ok := fullCodes[name]; ok {
		return code, true
	}
	if code, ok := shortCodes[name]; ok {
		return code, true
	}
	if code, ok := fullCodes[name+"學系"]; ok {
		return code, true
	}
	return "", false
}

// Name returns the short name for a code, including family bases
// ("71" → "法律").
func Name(code string) (string, bool) {
	if d, ok := byCode[code]; ok {
		return d.Name, true
	}
	if f, ok := familyOf[code]; ok && f.Base == code {
		return f.Name, true
	}
	return "", false
}

// FullName returns the official name for a member code.
func FullName(code string) (string, bool) {
	d, ok := byCode[code]
	return d.FullName, ok
}

// Resolve returns the department for code. Bare family bases are rejected
// because they do not identify a single cohort.
func Resolve(code string) (Department, error) {
	if d, ok := byCode[code]; ok {
		return d, nil
	}
	if f, ok := familyOf[code]; ok && f.Base == code {
		return Department{}, fmt.Errorf("%w: %s", ErrAmbiguousFamily, code)
	}
	return Department{}, fmt.Errorf("%w: %s", ErrUnknownDepartment, code)
}

// ResolveFamily returns the base and valid suffixes when code is a family
// base or member.
func ResolveFamily(code string) (string, []string, bool) {
	f, ok := familyOf[code]
	if !ok {
		return "", nil, false
	}
	return f.Base, slices.Clone(f.Suffixes), true
}

// IsFamilyBase reports whether code is a bare family base such as "71".
func IsFamilyBase(code string) bool {
	f, ok := familyOf[code]
	return ok && f.Base == code
}

// IsLaw reports whether code belongs to the law family (71x).
func IsLaw(code string) bool {
	return strings.HasPrefix(code, "71")
}

// DisplayName is the label used in rosters and search results:
// every law group shows as "法律系", other departments as short name + "系".
func DisplayName(code string) string {
	if IsLaw(code) {
		if _, ok := familyOf[code]; ok {
			return "法律系"
		}
	}
	if name, ok := Name(code); ok {
		return name + "系"
	}
	return "未知系所"
}

// FetchCodes returns the undergraduate codes that identify a single cohort,
// in catalog order. Family bases are never included.
func FetchCodes() []string {
	codes := make([]string, len(undergraduate))
	for i, d := range undergraduate {
		codes[i] = d.Code
	}
	return codes
}

// All returns a copy of the undergraduate catalog.
func All() []Department {
	return slices.Clone(undergraduate)
}
