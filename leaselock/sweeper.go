package leaselock

import (
	"context"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// Sweeper periodically deletes Lease objects that have sat unclaimed for
// longer than GracePeriod. A caller that abandons a lease name it will
// never reuse otherwise leaves an empty Lease object behind forever: this
// package only ever clears holderIdentity, it never deletes the object
// itself (see LeaseHandle.releaseRemote). Only Leases with no declared
// holder are deleted; a Lease whose holder crashed without releasing keeps
// its holderIdentity and is never swept, even after it expires. Sweeper is
// an opt-in manager.Runnable for operators who want that cleanup; a
// Locker never needs one to function correctly.
type Sweeper struct {
	client    client.Client
	namespace string
	selector  client.MatchingLabels
	interval  time.Duration

	// GracePeriod is how long a Lease may show no holder and no recent
	// renewal before it is considered abandoned. Defaults to one hour.
	GracePeriod time.Duration
}

// NewSweeper builds a Sweeper over every Lease in namespace matching
// selector. Pass the same labels callers attach to leases they create
// through this package so the sweeper never touches unrelated Leases.
func NewSweeper(c client.Client, namespace string, selector client.MatchingLabels, interval time.Duration) *Sweeper {
	return &Sweeper{
		client:      c,
		namespace:   namespace,
		selector:    selector,
		interval:    interval,
		GracePeriod: time.Hour,
	}
}

// Start implements manager.Runnable.
func (s *Sweeper) Start(ctx context.Context) error {
	logger := logf.FromContext(ctx).WithName("leaselock-sweeper")
	logger.Info("starting lease sweeper", "interval", s.interval, "gracePeriod", s.GracePeriod)

	if err := s.sweep(ctx); err != nil {
		logger.Error(err, "initial sweep failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping lease sweeper")
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				logger.Error(err, "sweep failed")
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	logger := logf.FromContext(ctx).WithName("leaselock-sweeper")

	var list coordinationv1.LeaseList
	opts := []client.ListOption{s.selector}
	if s.namespace != "" {
		opts = append(opts, client.InNamespace(s.namespace))
	}
	if err := s.client.List(ctx, &list, opts...); err != nil {
		return err
	}

	now := time.Now()
	for i := range list.Items {
		lease := &list.Items[i]
		snap, err := snapshotFromLease(lease)
		if err != nil {
			logger.Error(err, "skipping malformed lease", "lease", lease.Name)
			continue
		}
		if snap.HasHolder {
			continue
		}
		if now.Sub(snap.RenewTime) < s.GracePeriod {
			continue
		}

		logger.Info("deleting abandoned lease", "lease", lease.Name, "lastRenew", snap.RenewTime)
		if err := s.client.Delete(ctx, lease); err != nil {
			logger.Error(err, "failed to delete abandoned lease", "lease", lease.Name)
		}
	}
	return nil
}
