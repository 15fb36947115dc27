// Package ratelimit provides token bucket rate limiters: a shared Limiter
// for outbound LINE API calls and LMS requests, and a KeyedLimiter that
// keeps one bucket per user.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter implements a token bucket rate limiter.
// It is safe for concurrent use.
//
// Tokens are added at refillRate per second up to maxTokens. Each request
// consumes one token; Allow rejects when the bucket is empty, Wait blocks.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// New creates a new rate limiter with a full bucket.
//
// Example:
//
//	// 100 LINE API calls per second with a burst of 100
//	limiter := ratelimit.New(100, 100)
func New(maxTokens, refillRate float64) *Limiter {
	return newWithClock(maxTokens, refillRate, time.Now)
}

// NewInterval creates a limiter that admits one request per interval with
// no burst. The scraper uses it to space LMS page requests.
func NewInterval(interval time.Duration) *Limiter {
	return New(1, 1/interval.Seconds())
}

func newWithClock(maxTokens, refillRate float64, now func() time.Time) *Limiter {
	return &Limiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// refill adds tokens based on elapsed time since last refill.
// Must be called with mu held.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	l.tokens += elapsed * l.refillRate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefill = now
}

// Allow consumes a token if one is available. It never blocks.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true
	}

	return false
}

// Wait blocks until a token is available or the context is canceled.
// It sleeps for exactly the time the next token needs instead of polling.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()

		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}

		if l.refillRate <= 0 {
			l.mu.Unlock()
			<-ctx.Done()
			return ctx.Err()
		}
		waitTime := time.Duration((1 - l.tokens) / l.refillRate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns the current number of available tokens.
func (l *Limiter) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	return l.tokens
}

// IsFull reports whether the bucket is at capacity, meaning the key has
// been idle long enough to be forgotten.
func (l *Limiter) IsFull() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	return l.tokens >= l.maxTokens
}

// Reset refills the bucket.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tokens = l.maxTokens
	l.lastRefill = l.now()
}
