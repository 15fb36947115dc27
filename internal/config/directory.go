package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DirectoryConfig bounds the cohorts the directory index loads and how it
// refreshes them.
type DirectoryConfig struct {
	FloorYear       int           // oldest entry year loaded (ROC)
	CeilingYear     int           // newest entry year loaded; 0 means the current year
	TrailingYears   int           // newest years re-fetched on every refresh
	FanOut          int           // concurrent cohort fetches
	RefreshInterval time.Duration // period of the background refresh
	FetchTimeout    time.Duration // deadline for a single cohort fetch
}

// Validate validates the directory configuration.
func (c *DirectoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FloorYear, validation.Required, validation.Min(NTPUFoundedYear)),
		validation.Field(&c.CeilingYear,
			validation.When(c.CeilingYear != 0, validation.Min(c.FloorYear)),
		),
		validation.Field(&c.TrailingYears, validation.Min(0)),
		validation.Field(&c.FanOut, validation.Required, validation.Min(1), validation.Max(32)),
		validation.Field(&c.RefreshInterval, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.FetchTimeout, validation.Required, validation.Min(time.Second)),
	)
}
