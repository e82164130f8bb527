package leaselock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// completionTicket represents one outstanding release task registered
// with a Locker's completion barrier (see Locker.CompleteAllOperations).
// done must be called exactly once, which Release guarantees via sync.Once.
type completionTicket struct {
	wg *sync.WaitGroup
}

func (t *completionTicket) done() {
	t.wg.Done()
}

// LeaseHandle is a scoped acquisition: it exists only while its holder is
// believed to own the lease. Releasing it cancels the background renewal
// task and schedules an asynchronous, best-effort remote release; the
// release is not awaited here (see Locker.CompleteAllOperations to join
// it for graceful shutdown).
type LeaseHandle struct {
	gateway       LeaseGateway
	holderID      string
	snapshot      LeaseSnapshot
	cancelRenewal context.CancelFunc
	ticket        *completionTicket
	logger        logr.Logger
	releaseOnce   sync.Once
}

// HolderID returns the identity this handle was acquired under.
func (h *LeaseHandle) HolderID() string {
	return h.holderID
}

// Snapshot returns the lease state observed at acquisition time.
func (h *LeaseHandle) Snapshot() LeaseSnapshot {
	return h.snapshot
}

// Release relinquishes the lock. It cancels the renewal task immediately
// and synchronously, then spawns the remote release in the background.
// Release is idempotent: calling it more than once, or on a handle whose
// renewal already self-terminated due to lost ownership, has no further
// effect.
func (h *LeaseHandle) Release() {
	h.releaseOnce.Do(func() {
		h.cancelRenewal()
		go h.releaseRemote()
	})
}

func (h *LeaseHandle) releaseRemote() {
	defer h.ticket.done()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultReleaseTimeout)
	defer cancel()

	_, err := h.gateway.Apply(ctx, applyFields{
		resourceVersion:     h.snapshot.ResourceVersion,
		clearHolderIdentity: true,
	})
	if err != nil {
		if errors.Is(err, errConflict) {
			h.logger.V(1).Info("release lost a race; lease already reacquired or rewritten", "holder", h.holderID)
			return
		}
		h.logger.Error(err, "failed to release lease", "holder", h.holderID)
	}
}

// WithLease acquires the lock, runs fn with the resulting handle, and
// releases it on every exit path — normal return, error, or panic —
// since a deferred Release always runs during unwinding. It is the scoped
// combinator described in the design notes, for languages/situations
// where relying solely on an explicit Release call risks forgetting it.
func WithLease(ctx context.Context, l *Locker, holderID string, timeout *time.Duration, fn func(*LeaseHandle) error) error {
	h, err := l.Acquire(ctx, holderID, timeout)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h)
}
