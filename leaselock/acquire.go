package leaselock

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// acquireLoop drives the acquisition protocol against a single
// LeaseGateway: wait for the lease to be free or expired, then attempt an
// optimistic overwrite, repeating until our write wins or the deadline
// passes.
type acquireLoop struct {
	gateway              LeaseGateway
	clock                clock.Clock
	leaseDurationSeconds int
	backoffFactory       BackoffFactory
	logger               logr.Logger
}

// run repeatedly waits for the lease to free up and attempts an
// optimistic overwrite, until the post-write snapshot shows holderID as
// owner.
func (a *acquireLoop) run(ctx context.Context, holderID string, deadline *time.Time) (LeaseSnapshot, error) {
	for {
		snap, err := a.waitFree(ctx, holderID, deadline)
		if err != nil {
			return LeaseSnapshot{}, err
		}

		snap, err = a.tryOverwrite(ctx, holderID, snap)
		if err != nil {
			return LeaseSnapshot{}, err
		}

		if owner, ok := snap.Owner(a.clock.Now()); ok && owner == holderID {
			return snap, nil
		}
	}
}

func (a *acquireLoop) waitFree(ctx context.Context, holderID string, deadline *time.Time) (LeaseSnapshot, error) {
	snap, err := a.gateway.Read(ctx)
	if err != nil {
		return LeaseSnapshot{}, err
	}
	if _, ok := snap.Owner(a.clock.Now()); !ok {
		return snap, nil
	}

	sched := a.backoffFactory()
	for {
		interval, ok := sched.Next()
		if !ok {
			// The default schedule (see defaultBackoffFactory) never
			// exhausts. Reaching here means a caller configured a
			// finite schedule via WithBackoff, which is a programming
			// error: back-off schedules must be effectively unbounded.
			panic("leaselock: back-off schedule exhausted; configure an effectively unbounded schedule")
		}

		if deadline != nil && !a.clock.Now().Add(interval).Before(*deadline) {
			return LeaseSnapshot{}, ErrAcquireTimeout
		}

		a.logger.V(1).Info("waiting for lease", "holder", holderID, "currentHolder", snap.Holder, "backoff", interval)

		select {
		case <-ctx.Done():
			return LeaseSnapshot{}, ctx.Err()
		case <-a.clock.After(interval):
		}

		snap, err = a.gateway.Read(ctx)
		if err != nil {
			return LeaseSnapshot{}, err
		}
		if _, ok := snap.Owner(a.clock.Now()); !ok {
			return snap, nil
		}
	}
}

func (a *acquireLoop) tryOverwrite(ctx context.Context, holderID string, snap LeaseSnapshot) (LeaseSnapshot, error) {
	now := a.clock.Now()
	durationSeconds := int32(a.leaseDurationSeconds)

	newSnap, err := a.gateway.Apply(ctx, applyFields{
		resourceVersion:      snap.ResourceVersion,
		acquireTime:          &now,
		renewTime:            &now,
		holderIdentity:       &holderID,
		leaseDurationSeconds: &durationSeconds,
	})
	if err != nil {
		if errors.Is(err, errConflict) {
			a.logger.V(1).Info("overwrite lost to a concurrent contender", "holder", holderID)
			return snap, nil
		}
		return LeaseSnapshot{}, err
	}
	return newSnap, nil
}
