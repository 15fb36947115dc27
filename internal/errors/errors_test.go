package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		checkFn  func(error) bool
		expected bool
	}{
		{"ErrNotFound", ErrNotFound, IsNotFound, true},
		{"wrapped ErrNotFound", fmt.Errorf("cohort 101/85: %w", ErrNotFound), IsNotFound, true},
		{"other error is not ErrNotFound", ErrRateLimitExceeded, IsNotFound, false},
		{"ErrRateLimitExceeded", ErrRateLimitExceeded, IsRateLimitExceeded, true},
		{"ErrInvalidInput", ErrInvalidInput, IsInvalidInput, true},
		{"ValidationError is invalid input", NewValidationError("year", "too early"), IsInvalidInput, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.checkFn(tt.err); got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError("year", "must be at least 89")
	want := "validation failed on year: must be at least 89"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestScraperError(t *testing.T) {
	t.Parallel()

	baseErr := errors.New("connection reset")
	err := NewScraperError("http://120.126.197.52/portfolio/search.php", 502, baseErr)

	if !errors.Is(err, baseErr) {
		t.Error("expected error to wrap base error")
	}
	if !strings.Contains(err.Error(), "status=502") {
		t.Errorf("Error() = %q, want status code", err.Error())
	}

	noStatus := NewScraperError("http://120.126.197.52", 0, baseErr)
	if strings.Contains(noStatus.Error(), "status=") {
		t.Errorf("Error() = %q, want no status", noStatus.Error())
	}
}
