package leaselock

import (
	"time"

	"k8s.io/utils/clock"
)

const (
	// FieldManager is the fixed server-side-apply field manager used on
	// every write this package issues. It must stay constant across the
	// lifetime of a lease: changing it would let two writers "share"
	// ownership of the same fields instead of contending for them.
	FieldManager = "lease-rs"

	// DefaultLeaseDurationSeconds is used when no WithLeaseDurationSeconds
	// option is supplied.
	DefaultLeaseDurationSeconds = 10

	// DefaultBackoffInitialInterval and DefaultBackoffMaxInterval bound
	// the default exponential back-off schedule used while waiting for a
	// held lease to free up.
	DefaultBackoffInitialInterval = 10 * time.Millisecond
	DefaultBackoffMaxInterval     = 1 * time.Second

	// renewalCadenceFactor sets the renewal interval at well under half
	// the lease duration, so a single missed renewal still leaves margin
	// before expiry.
	renewalCadenceFactor = 0.4

	// DefaultReleaseTimeout bounds the background release patch issued
	// when a handle is relinquished; release is best-effort, not retried.
	DefaultReleaseTimeout = 5 * time.Second
)

// Option configures a Locker at construction time.
type Option func(*Locker)

// WithLeaseDurationSeconds overrides the default lease duration of 10
// seconds. It governs both how long a write is valid for before the
// client clock considers it expired, and the cadence of the background
// renewal task (0.4 * duration).
func WithLeaseDurationSeconds(seconds int) Option {
	return func(l *Locker) {
		l.leaseDurationSeconds = seconds
	}
}

// WithBackoff overrides the default back-off schedule factory used while
// waiting for a held lease to free up. The factory is invoked fresh every
// time the acquire loop starts waiting, so it must be safe to call
// concurrently and must not share mutable state across the schedules it
// returns.
func WithBackoff(factory BackoffFactory) Option {
	return func(l *Locker) {
		l.backoffFactory = factory
	}
}

// WithClock overrides the clock used for expiry evaluation, back-off
// deadlines, and renewal cadence. Intended for tests; production callers
// should leave this at the default real clock.
func WithClock(c clock.Clock) Option {
	return func(l *Locker) {
		l.clock = c
	}
}
