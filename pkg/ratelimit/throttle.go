package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/gphotos-client/pkg/logging"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for call pacing.
var (
	throttleWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gphotos_throttle_waits_total",
		Help: "Total number of calls that had to wait for the minimum interval",
	})

	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gphotos_throttle_wait_seconds",
		Help:    "Time spent waiting before a throttled call was allowed to run",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

// Throttler spaces consecutive invocations by at least a minimum interval,
// measured between the moments the wrapped operations start.
//
// The read-wait-execute-update sequence runs under one mutex, so a Throttler
// may be shared by several goroutines; they are serialized.
type Throttler struct {
	mu     sync.Mutex
	state  ThrottleState
	clock  clock.Clock
	logger zerolog.Logger
	name   string
}

// Option configures a Throttler.
type Option func(*Throttler)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(t *Throttler) {
		t.clock = c
	}
}

// WithLogger sets the logger used for wait diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Throttler) {
		t.logger = logger
	}
}

// WithName labels the throttler in log output.
func WithName(name string) Option {
	return func(t *Throttler) {
		t.name = name
	}
}

// NewThrottler creates a throttler enforcing interval between call starts.
// An interval of zero disables waiting.
func NewThrottler(interval time.Duration, opts ...Option) (*Throttler, error) {
	if interval < 0 {
		return nil, fmt.Errorf("%w: minimum interval must be >= 0 (got %s)", ErrInvalidConfiguration, interval)
	}

	t := &Throttler{
		state:  ThrottleState{MinimumInterval: interval},
		clock:  clock.New(),
		logger: logging.For(logging.ComponentThrottler),
		name:   "default",
	}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// MustThrottler is like NewThrottler but panics on a negative interval.
func MustThrottler(interval time.Duration, opts ...Option) *Throttler {
	t, err := NewThrottler(interval, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Interval returns the configured minimum interval.
func (t *Throttler) Interval() time.Duration {
	return t.state.MinimumInterval
}

// State returns a copy of the current pacing state.
func (t *Throttler) State() ThrottleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Do runs fn once the minimum interval since the previous start has passed.
// The error returned by fn is passed through untouched. If ctx is cancelled
// while waiting, fn is not run and ctx.Err() is returned.
//
// fn must not call Do on the same Throttler; the lock is not reentrant.
func (t *Throttler) Do(ctx context.Context, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := t.clock.Now()
	if wait := t.state.WaitNeeded(start); wait > 0 {
		t.logger.Debug().
			Str("throttler", t.name).
			Dur(logging.FieldWait, wait).
			Msg("Throttling call")

		throttleWaitsTotal.Inc()
		throttleWaitSeconds.Observe(wait.Seconds())

		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
		start = t.clock.Now()
	}

	// Bookkeeping happens even when fn fails.
	defer t.state.Record(start)

	return fn()
}

// sleep blocks for d. A context that can never be cancelled sleeps on the
// clock directly so fake clocks advance without a second goroutine.
func (t *Throttler) sleep(ctx context.Context, d time.Duration) error {
	if ctx == nil || ctx.Done() == nil {
		t.clock.Sleep(d)
		return nil
	}

	select {
	case <-ctx.Done():
		t.logger.Debug().
			Str("throttler", t.name).
			Err(ctx.Err()).
			Msg("Throttled call cancelled while waiting")
		return ctx.Err()
	case <-t.clock.After(d):
		return nil
	}
}

// Wrap returns fn paced by t.
func Wrap(t *Throttler, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return t.Do(ctx, func() error {
			return fn(ctx)
		})
	}
}

// Wrap0 returns fn paced by t, keeping its result.
func Wrap0[R any](t *Throttler, fn func(ctx context.Context) (R, error)) func(ctx context.Context) (R, error) {
	return func(ctx context.Context) (R, error) {
		var res R
		err := t.Do(ctx, func() error {
			var err error
			res, err = fn(ctx)
			return err
		})
		return res, err
	}
}

// Wrap1 returns fn paced by t.
func Wrap1[A, R any](t *Throttler, fn func(ctx context.Context, a A) (R, error)) func(ctx context.Context, a A) (R, error) {
	return func(ctx context.Context, a A) (R, error) {
		var res R
		err := t.Do(ctx, func() error {
			var err error
			res, err = fn(ctx, a)
			return err
		})
		return res, err
	}
}

// Wrap2 returns fn paced by t.
func Wrap2[A, B, R any](t *Throttler, fn func(ctx context.Context, a A, b B) (R, error)) func(ctx context.Context, a A, b B) (R, error) {
	return func(ctx context.Context, a A, b B) (R, error) {
		var res R
		err := t.Do(ctx, func() error {
			var err error
			res, err = fn(ctx, a, b)
			return err
		})
		return res, err
	}
}

// Throttle builds a dedicated Throttler for fn and returns the paced function.
func Throttle[A, R any](fn func(ctx context.Context, a A) (R, error), interval time.Duration, opts ...Option) (func(ctx context.Context, a A) (R, error), error) {
	t, err := NewThrottler(interval, opts...)
	if err != nil {
		return nil, err
	}
	return Wrap1(t, fn), nil
}
