package leaselock

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// renewalTask keeps a lease alive on behalf of a held LeaseHandle. It runs
// until its context is cancelled (handle released) or it observes that
// ownership has moved to a different holder, at which point it
// self-terminates without any direct signal back to the handle.
type renewalTask struct {
	gateway              LeaseGateway
	clock                clock.Clock
	holderID             string
	leaseDurationSeconds int
	logger               logr.Logger
}

func (t *renewalTask) run(ctx context.Context) {
	cadence := time.Duration(float64(t.leaseDurationSeconds) * renewalCadenceFactor * float64(time.Second))

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.clock.After(cadence):
		}

		snap, err := t.gateway.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Error(err, "failed to read lease during renewal", "holder", t.holderID)
			continue
		}

		owner, ok := snap.Owner(t.clock.Now())
		if !ok || owner != t.holderID {
			t.logger.V(1).Info("ownership lost; stopping renewal", "holder", t.holderID, "currentOwner", owner)
			return
		}

		now := t.clock.Now()
		holder := t.holderID
		if _, err := t.gateway.Apply(ctx, applyFields{
			resourceVersion: snap.ResourceVersion,
			renewTime:       &now,
			holderIdentity:  &holder,
		}); err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, errConflict) {
				t.logger.V(1).Info("renew lost to a concurrent write; will retry next cycle", "holder", t.holderID)
				continue
			}
			t.logger.Error(err, "failed to renew lease", "holder", t.holderID)
		}
	}
}
