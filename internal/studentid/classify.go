package studentid

import (
	"strconv"
	"time"
)

// FoundedYear is the ROC year NTPU was founded (2000).
const FoundedYear = 89

// rocOffset converts between Gregorian and ROC (民國) years.
const rocOffset = 1911

// Kind is the coarse class of a free-text input.
type Kind int

const (
	KindOther Kind = iota
	KindStudentID
	KindYear
	KindYearTooEarly
	KindYearTooFuture
)

func (k Kind) String() string {
	switch k {
	case KindStudentID:
		return "student_id"
	case KindYear:
		return "year"
	case KindYearTooEarly:
		return "year_too_early"
	case KindYearTooFuture:
		return "year_too_future"
	default:
		return "other"
	}
}

// Classification is the result of Classify.
type Classification struct {
	Kind Kind
	// Year is the ROC year for the year kinds, 0 otherwise.
	Year int
}

// IsYear reports whether the input looked like a year, in range or not.
func (c Classification) IsYear() bool {
	return c.Kind == KindYear || c.Kind == KindYearTooEarly || c.Kind == KindYearTooFuture
}

var taipei = loadTaipei()

func loadTaipei() *time.Location {
	loc, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// CurrentYear returns the ROC year of now in Taipei.
func CurrentYear(now time.Time) int {
	return now.In(taipei).Year() - rocOffset
}

// Classify classifies text against the current time.
func Classify(text string) Classification {
	return ClassifyAt(text, time.Now())
}

// ClassifyAt classifies text as a student ID, a year, or something else.
// Years are 2-4 digits, ROC or Gregorian; Gregorian values are normalised
// to ROC before range checks.
func ClassifyAt(text string, now time.Time) Classification {
	if IsCandidate(text) {
		return Classification{Kind: KindStudentID}
	}
	if len(text) < 2 || len(text) > 4 || !isDigits(text) {
		return Classification{Kind: KindOther}
	}

	year, err := strconv.Atoi(text)
	if err != nil {
		return Classification{Kind: KindOther}
	}
	if year >= rocOffset {
		year -= rocOffset
	}

	switch {
	case year > CurrentYear(now):
		return Classification{Kind: KindYearTooFuture, Year: year}
	case year < FoundedYear:
		return Classification{Kind: KindYearTooEarly, Year: year}
	default:
		return Classification{Kind: KindYear, Year: year}
	}
}
