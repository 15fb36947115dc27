package warmup

import (
	"context"
	"sync/atomic"
	"time"
)

// ReadinessState gates traffic until the directory index has completed its
// first pass or the grace period has elapsed, whichever comes first.
// startTime and timeout are immutable after construction.
type ReadinessState struct {
	ready     atomic.Bool
	startTime time.Time
	timeout   time.Duration
	now       func() time.Time
}

// ReadinessStatus is the /readyz response body.
type ReadinessStatus struct {
	Ready          bool   `json:"ready"`
	Reason         string `json:"reason,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Readiness reasons reported while gated or degraded.
const (
	ReasonInProgress = "directory warmup in progress"
	ReasonTimedOut   = "grace period elapsed (directory warmup may still be running)"
)

// NewReadinessState creates a state that is not ready yet.
func NewReadinessState(timeout time.Duration) *ReadinessState {
	return newReadinessState(timeout, time.Now)
}

func newReadinessState(timeout time.Duration, now func() time.Time) *ReadinessState {
	return &ReadinessState{
		startTime: now(),
		timeout:   timeout,
		now:       now,
	}
}

// IsReady reports whether traffic should be accepted: either MarkReady was
// called or the grace period has elapsed.
func (s *ReadinessState) IsReady() bool {
	if s.ready.Load() {
		return true
	}
	return s.now().Sub(s.startTime) >= s.timeout
}

// MarkReady records that the directory completed its first pass.
func (s *ReadinessState) MarkReady() {
	s.ready.Store(true)
}

// Follow marks the state ready once ready is closed. It returns when ready
// closes or ctx ends.
func (s *ReadinessState) Follow(ctx context.Context, ready <-chan struct{}) {
	select {
	case <-ready:
		s.MarkReady()
	case <-ctx.Done():
	}
}

// Status returns the current readiness status.
func (s *ReadinessState) Status() ReadinessStatus {
	isReady := s.IsReady()
	status := ReadinessStatus{
		Ready:          isReady,
		ElapsedSeconds: int(s.now().Sub(s.startTime).Seconds()),
		TimeoutSeconds: int(s.timeout.Seconds()),
	}

	switch {
	case !isReady:
		status.Reason = ReasonInProgress
	case !s.ready.Load():
		status.Reason = ReasonTimedOut
	}
	return status
}

// WarmupCompleted reports whether MarkReady was called. Unlike IsReady it
// ignores the grace period.
func (s *ReadinessState) WarmupCompleted() bool {
	return s.ready.Load()
}
