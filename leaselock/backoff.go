package leaselock

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffSchedule produces the wait intervals AcquireLoop sleeps between
// successive reads while a lease is held by someone else. Next returns
// ok=false once the schedule is exhausted; the default schedule never
// exhausts (see defaultBackoffFactory), and an exhausted schedule is
// treated as a configuration error (see acquireLoop.waitFree).
type BackoffSchedule interface {
	Next() (time.Duration, bool)
}

// BackoffFactory produces a fresh BackoffSchedule. It is called at most
// once per waitFree pass, when that pass's first read finds the lease
// held; a schedule is never reused across passes, so a factory may safely
// return schedules with internal mutable state.
type BackoffFactory func() BackoffSchedule

type exponentialSchedule struct {
	b *backoff.ExponentialBackOff
}

func (s *exponentialSchedule) Next() (time.Duration, bool) {
	d := s.b.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

// defaultBackoffFactory builds the default schedule: exponential starting
// at DefaultBackoffInitialInterval, capped at DefaultBackoffMaxInterval,
// with no elapsed-time limit, i.e. effectively unbounded.
func defaultBackoffFactory() BackoffFactory {
	return func() BackoffSchedule {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = DefaultBackoffInitialInterval
		b.MaxInterval = DefaultBackoffMaxInterval
		b.MaxElapsedTime = 0
		b.Reset()
		return &exponentialSchedule{b: b}
	}
}
