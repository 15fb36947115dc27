package directory

import (
	"errors"
	"fmt"
)

// ErrServiceUnreachable is returned by Refresh when every attempted cohort
// failed because the directory service could not be reached.
var ErrServiceUnreachable = errors.New("directory: service unreachable")

// CohortFetchError records a failed fetch for one cohort. It never aborts
// a refresh; the cohort is retried on the next pass.
type CohortFetchError struct {
	Cohort Cohort
	Err    error
}

func (e *CohortFetchError) Error() string {
	return fmt.Sprintf("fetch cohort %s: %v", e.Cohort, e.Err)
}

func (e *CohortFetchError) Unwrap() error {
	return e.Err
}
