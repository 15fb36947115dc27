package scraper

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"strings"
	"time"
)

// ErrAllURLsFailed is returned when no mirror of a domain answers.
var ErrAllURLsFailed = errors.New("all failover URLs failed")

// permanentError marks an error that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// RetryWithBackoff retries fn with exponential backoff and jitter.
// A permanentError stops the loop at once and its cause is returned.
//
// Backoff formula: delay = initialDelay * 2^attempt ± 25% jitter
// Example with initialDelay=4s, maxRetries=5:
//
//	attempt 0: immediate (first try)
//	attempt 1: ~4s  (3s - 5s)
//	attempt 2: ~8s  (6s - 10s)
//	attempt 3: ~16s (12s - 20s)
//	attempt 4: ~32s (24s - 40s)
//	attempt 5: ~64s (48s - 80s)
func RetryWithBackoff(ctx context.Context, maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var permErr *permanentError
		if errors.As(err, &permErr) {
			return permErr.Unwrap()
		}

		if attempt == maxRetries {
			break
		}

		if err := Sleep(ctx, backoff(initialDelay, attempt)); err != nil {
			return err
		}
	}

	return lastErr
}

func backoff(initialDelay time.Duration, attempt int) time.Duration {
	delay := time.Duration(float64(initialDelay) * math.Pow(2, float64(attempt)))

	halfDelay := int64(delay) / 2
	if halfDelay <= 0 {
		return delay
	}
	jitterBig, err := rand.Int(rand.Reader, big.NewInt(halfDelay))
	if err != nil {
		jitterBig = big.NewInt(0)
	}
	return delay - delay/4 + time.Duration(jitterBig.Int64())
}

// Sleep waits for the specified duration, respecting context cancellation
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsNetworkError reports whether err means the remote service could not be
// reached or is failing, as opposed to rejecting the request.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var permErr *permanentError
	if errors.As(err, &permErr) {
		return false
	}

	if errors.Is(err, ErrAllURLsFailed) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"i/o timeout",
		"server error",
		"rate limited",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
