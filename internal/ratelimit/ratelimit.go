// Package ratelimit provides the single-slot gate in front of the summarize
// endpoint.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is the rolling window between accepted requests.
const DefaultWindow = 20 * time.Second

// Limiter accepts at most one request per rolling window, shared by all
// callers regardless of identity. State is process-local and resets on
// restart.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a synthetic clock. Tests use this to drive the window
// deterministically.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter with the given window. A non-positive window falls
// back to DefaultWindow. The zero-valued lastAcceptedAt guarantees the first
// call is always accepted.
func New(window time.Duration, opts ...Option) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire reports whether the caller may proceed. On rejection it returns
// the remaining wait. The check-then-set is serialized so concurrent calls
// within one window yield exactly one acceptance.
func (l *Limiter) TryAcquire() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !l.last.IsZero() && now.Sub(l.last) < l.window {
		return false, l.window - now.Sub(l.last)
	}
	l.last = now
	return true, 0
}

// Window returns the configured window.
func (l *Limiter) Window() time.Duration {
	return l.window
}
