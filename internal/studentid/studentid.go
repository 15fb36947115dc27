// Package studentid decodes and encodes NTPU student ID numbers.
//
// An ID is 8 or 9 decimal digits:
//
//	4 112 85 001   9 digits: degree, 3-digit year, department, sequence
//	4 99 85 001    8 digits: degree, 2-digit year, department, sequence
//	4 112 712 01   undergraduate law/sociology IDs carry one extra group digit
//
// Year and department are inferred from the layout, not verified against
// any registry.
package studentid

import (
	"errors"
	"fmt"
	"strconv"
)

// Degree digits found at the first position of an ID.
const (
	DegreeUndergraduate = 4
	DegreeMaster        = 7
	DegreeDoctoral      = 8
)

// Accepted ID lengths.
const (
	ShortLength = 8
	LongLength  = 9
)

// ErrMalformedID is returned when text is not an 8 or 9 digit string.
var ErrMalformedID = errors.New("studentid: malformed id")

// familyBases are the 2-digit undergraduate department codes followed by a
// group digit (71 law, 74 sociology).
var familyBases = map[string]bool{
	"71": true,
	"74": true,
}

// StudentID is a decoded student ID.
type StudentID struct {
	Degree     int
	Year       int
	Century    bool   // true for 9-digit IDs, whose year field has 3 digits
	Department string // 2 digits, or 3 for family members (e.g. "712")
	Sequence   string // remaining digits, leading zeros kept
}

// Decode parses text into a StudentID.
// Unknown department codes are passed through unchanged.
func Decode(text string) (StudentID, error) {
	if !IsCandidate(text) {
		return StudentID{}, fmt.Errorf("%w: %q", ErrMalformedID, text)
	}

	yearDigits := 2
	if len(text) == LongLength {
		yearDigits = 3
	}

	deptStart := 1 + yearDigits
	deptEnd := deptStart + 2
	degree := int(text[0] - '0')
	if degree == DegreeUndergraduate && familyBases[text[deptStart:deptEnd]] {
		deptEnd++
	}

	year, _ := strconv.Atoi(text[1:deptStart])

	return StudentID{
		Degree:     degree,
		Year:       year,
		Century:    yearDigits == 3,
		Department: text[deptStart:deptEnd],
		Sequence:   text[deptEnd:],
	}, nil
}

// Encode is the inverse of Decode.
func Encode(id StudentID) string {
	yearFormat := "%02d"
	if id.Century {
		yearFormat = "%03d"
	}
	return strconv.Itoa(id.Degree) + fmt.Sprintf(yearFormat, id.Year) + id.Department + id.Sequence
}

// String returns the encoded form.
func (id StudentID) String() string {
	return Encode(id)
}

// Cohort returns the (entry year, department code) pair the ID belongs to.
func (id StudentID) Cohort() (int, string) {
	return id.Year, id.Department
}

// IsUndergraduate reports whether the ID belongs to a bachelor's student.
func (id StudentID) IsUndergraduate() bool {
	return id.Degree == DegreeUndergraduate
}

// IsCandidate reports whether text has the shape of a student ID.
func IsCandidate(text string) bool {
	if len(text) != ShortLength && len(text) != LongLength {
		return false
	}
	return isDigits(text)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
