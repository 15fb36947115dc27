package ratelimit

import (
	"sync"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
)

// KeyedConfig configures a KeyedLimiter instance.
type KeyedConfig struct {
	// Name identifies this limiter in metrics (e.g. "user").
	Name string

	Burst      float64 // Maximum tokens (burst capacity)
	RefillRate float64 // Tokens refilled per second

	CleanupPeriod time.Duration // How often idle buckets are dropped

	Metrics *metrics.Metrics
}

// KeyedLimiter keeps a token bucket per key (LINE user ID) and drops
// buckets that have refilled completely.
type KeyedLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	config   KeyedConfig
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewKeyedLimiter creates a per-key limiter and starts its cleanup loop.
// Call Stop when done.
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 5 * time.Minute
	}
	kl := &KeyedLimiter{
		limiters: make(map[string]*Limiter),
		config:   cfg,
		stopCh:   make(chan struct{}),
	}

	go kl.cleanupLoop()

	return kl
}

// Allow reports whether a request for key may proceed. Empty keys are
// never limited.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	if kl.limiterFor(key).Allow() {
		return true
	}
	if kl.config.Metrics != nil {
		kl.config.Metrics.RecordRateLimiterDrop(kl.config.Name)
	}
	return false
}

func (kl *KeyedLimiter) limiterFor(key string) *Limiter {
	kl.mu.RLock()
	limiter, ok := kl.limiters[key]
	kl.mu.RUnlock()
	if ok {
		return limiter
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()

	if limiter, ok = kl.limiters[key]; ok {
		return limiter
	}
	limiter = New(kl.config.Burst, kl.config.RefillRate)
	kl.limiters[key] = limiter
	return limiter
}

// GetAvailable returns the tokens left for key, or Burst for unseen keys.
func (kl *KeyedLimiter) GetAvailable(key string) float64 {
	kl.mu.RLock()
	limiter, ok := kl.limiters[key]
	kl.mu.RUnlock()

	if !ok {
		return kl.config.Burst
	}
	return limiter.Available()
}

// GetActiveCount returns the number of tracked keys.
func (kl *KeyedLimiter) GetActiveCount() int {
	kl.mu.RLock()
	defer kl.mu.RUnlock()
	return len(kl.limiters)
}

func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.cleanup()
		}
	}
}

func (kl *KeyedLimiter) cleanup() {
	kl.mu.Lock()
	for key, limiter := range kl.limiters {
		if limiter.IsFull() {
			delete(kl.limiters, key)
		}
	}
	active := len(kl.limiters)
	kl.mu.Unlock()

	if kl.config.Metrics != nil {
		kl.config.Metrics.SetRateLimiterUsers(active)
	}
}

// Stop ends the cleanup goroutine. Safe to call multiple times.
func (kl *KeyedLimiter) Stop() {
	kl.stopOnce.Do(func() { close(kl.stopCh) })
}
