// Package ratelimit spaces calls to the Photos Library API so that consecutive
// requests respect a fixed per-client quota ("no more than one call every N
// seconds"), independent of how long each individual call takes.
package ratelimit

import (
	"errors"
	"time"
)

// ErrInvalidConfiguration is returned when a throttler or limiter is built
// with an unusable setting, such as a negative interval.
var ErrInvalidConfiguration = errors.New("invalid rate limit configuration")

// DefaultMinInterval is the spacing the Photos Library quota tolerates for
// write-heavy workloads (uploads, batch creates).
const DefaultMinInterval = 2 * time.Second

// ThrottleState is the pacing state owned by a single Throttler.
type ThrottleState struct {
	// MinimumInterval is the minimum gap between the start of two consecutive
	// invocations. Immutable after construction.
	MinimumInterval time.Duration `json:"minimum_interval"`

	// LastInvocation is the start time of the most recently completed
	// invocation. The zero value means "never", so the first call never waits.
	LastInvocation time.Time `json:"last_invocation"`

	// Invocations counts completed invocations.
	Invocations int64 `json:"invocations"`
}

// WaitNeeded returns how long a call starting at now must wait before it may
// proceed. A negative elapsed time (clock moved backwards) never waits.
func (s *ThrottleState) WaitNeeded(now time.Time) time.Duration {
	if s.MinimumInterval <= 0 || s.LastInvocation.IsZero() {
		return 0
	}

	elapsed := now.Sub(s.LastInvocation)
	if elapsed < 0 {
		return 0
	}
	if elapsed >= s.MinimumInterval {
		return 0
	}
	return s.MinimumInterval - elapsed
}

// Record marks an invocation that started at start as completed.
func (s *ThrottleState) Record(start time.Time) {
	s.LastInvocation = start
	s.Invocations++
}
