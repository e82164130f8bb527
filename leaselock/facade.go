package leaselock

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/utils/clock"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Locker is the public entry point: a long-lived facade over one named
// Lease that configures duration, back-off, and holder identity, and
// produces LeaseHandle values on successful acquisition. A Locker may
// outlive any number of handles it has produced.
type Locker struct {
	gateway LeaseGateway
	clock   clock.Clock

	leaseDurationSeconds int
	backoffFactory       BackoffFactory

	mu      sync.Mutex
	barrier *sync.WaitGroup
}

// New constructs a Locker for the named Lease in namespace using c as the
// Kubernetes client. Leave namespace empty for a cluster-scoped caller
// that always passes a fully-qualified client; most callers will pass the
// namespace their process runs in.
func New(c client.Client, namespace, leaseName string, opts ...Option) *Locker {
	l := &Locker{
		gateway:              newClientGateway(c, namespace, leaseName),
		clock:                clock.RealClock{},
		leaseDurationSeconds: DefaultLeaseDurationSeconds,
		backoffFactory:       defaultBackoffFactory(),
		barrier:              &sync.WaitGroup{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until the lease is acquired under holderID, timeout
// elapses, or ctx is cancelled. A nil timeout waits indefinitely. A zero
// timeout behaves like TryAcquire: it fails immediately unless the lease
// is already free.
func (l *Locker) Acquire(ctx context.Context, holderID string, timeout *time.Duration) (*LeaseHandle, error) {
	logger := logf.FromContext(ctx).WithName("leaselock").WithValues("holder", holderID)

	var deadline *time.Time
	if timeout != nil {
		d := l.clock.Now().Add(*timeout)
		deadline = &d
	}

	loop := &acquireLoop{
		gateway:              l.gateway,
		clock:                l.clock,
		leaseDurationSeconds: l.leaseDurationSeconds,
		backoffFactory:       l.backoffFactory,
		logger:               logger,
	}

	snap, err := loop.run(ctx, holderID, deadline)
	if err != nil {
		return nil, err
	}

	renewalCtx, cancel := context.WithCancel(context.Background())
	task := &renewalTask{
		gateway:              l.gateway,
		clock:                l.clock,
		holderID:             holderID,
		leaseDurationSeconds: l.leaseDurationSeconds,
		logger:               logger,
	}
	go task.run(renewalCtx)

	l.mu.Lock()
	l.barrier.Add(1)
	wg := l.barrier
	l.mu.Unlock()

	return &LeaseHandle{
		gateway:       l.gateway,
		holderID:      holderID,
		snapshot:      snap,
		cancelRenewal: cancel,
		ticket:        &completionTicket{wg: wg},
		logger:        logger,
	}, nil
}

// TryAcquire acquires the lock only if it can be done immediately; it
// returns (nil, nil) rather than ErrAcquireTimeout when the lease is
// currently held by someone else.
func (l *Locker) TryAcquire(ctx context.Context, holderID string) (*LeaseHandle, error) {
	zero := time.Duration(0)
	h, err := l.Acquire(ctx, holderID, &zero)
	if err != nil {
		if errors.Is(err, ErrAcquireTimeout) {
			return nil, nil
		}
		return nil, err
	}
	return h, nil
}

// CompleteAllOperations blocks until every handle this Locker has produced
// so far has been released and its release task has finished, then rearms
// for the next generation. A handle from the current generation that is
// never released keeps this call blocked. Handles produced after this call
// belongs to the next generation and do not affect, or get affected by,
// this wait.
func (l *Locker) CompleteAllOperations() {
	l.mu.Lock()
	done := l.barrier
	l.barrier = &sync.WaitGroup{}
	l.mu.Unlock()

	done.Wait()
}
