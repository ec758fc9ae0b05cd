package ratelimit

import (
	"time"

	"go.uber.org/ratelimit"
)

// Default quota for the public RPC endpoint: 10 calls every 10 seconds.
const (
	DefaultPermits = 10
	DefaultWindow  = 10 * time.Second
)

// Clock is the time source used by the limiter. It matches ratelimit.Clock so a
// fake clock can be injected in tests.
type Clock = ratelimit.Clock

// Limiter gates outbound calls to a fixed quota per time window.
// A single Limiter is shared by every component that talks to the RPC endpoint
// or the price API; Acquire is safe for concurrent use.
type Limiter struct {
	limiter ratelimit.Limiter
	permits int
	window  time.Duration
}

// Option configures a Limiter.
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock replaces the wall clock, typically with a fake in tests.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// New creates a limiter that grants at most permits calls per window.
// Grants are spaced window/permits apart and unused capacity is not banked,
// so no window ever sees more than the configured number of calls.
func New(permits int, window time.Duration, opts ...Option) *Limiter {
	if permits <= 0 {
		permits = DefaultPermits
	}
	if window <= 0 {
		window = DefaultWindow
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	rlOpts := []ratelimit.Option{
		ratelimit.Per(window),
		ratelimit.WithoutSlack,
	}
	if o.clock != nil {
		rlOpts = append(rlOpts, ratelimit.WithClock(o.clock))
	}

	return &Limiter{
		limiter: ratelimit.New(permits, rlOpts...),
		permits: permits,
		window:  window,
	}
}

// NewUnlimited returns a limiter that never blocks.
func NewUnlimited() *Limiter {
	return &Limiter{limiter: ratelimit.NewUnlimited()}
}

// Acquire blocks until the caller may proceed. It never fails and cannot be cancelled.
func (l *Limiter) Acquire() time.Time {
	return l.limiter.Take()
}

// Permits returns the configured quota (0 for an unlimited limiter).
func (l *Limiter) Permits() int {
	return l.permits
}

// Window returns the configured window (0 for an unlimited limiter).
func (l *Limiter) Window() time.Duration {
	return l.window
}
