package leaselock

import (
	"fmt"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// microTimeLayout formats timestamps the way coordination.k8s.io/v1 Lease
// fields expect: RFC 3339, UTC, microsecond precision.
const microTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// LeaseSnapshot is an immutable view of a remote Lease record at the
// moment it was read. Expired and Owner are evaluated against a supplied
// clock reading rather than time.Now, so the same snapshot is reusable
// across multiple predicate checks without hidden re-reads of wall time.
type LeaseSnapshot struct {
	LeaseName       string
	Holder          string
	HasHolder       bool
	RenewTime       time.Time
	LeaseDuration   time.Duration
	ResourceVersion string
}

// Expired reports whether now is at or past RenewTime+LeaseDuration.
func (s LeaseSnapshot) Expired(now time.Time) bool {
	return !now.Before(s.RenewTime.Add(s.LeaseDuration))
}

// Owner returns the declared holder if it is not expired as of now, and
// false otherwise. A lease with no declared holder always has no owner.
func (s LeaseSnapshot) Owner(now time.Time) (string, bool) {
	if !s.HasHolder {
		return "", false
	}
	if s.Expired(now) {
		return "", false
	}
	return s.Holder, true
}

func snapshotFromLease(lease *coordinationv1.Lease) (LeaseSnapshot, error) {
	if lease.Name == "" {
		return LeaseSnapshot{}, malformedRecordError("metadata.name")
	}
	if lease.ResourceVersion == "" {
		return LeaseSnapshot{}, malformedRecordError("metadata.resourceVersion")
	}

	snap := LeaseSnapshot{
		LeaseName:       lease.Name,
		ResourceVersion: lease.ResourceVersion,
	}

	if lease.Spec.HolderIdentity != nil && *lease.Spec.HolderIdentity != "" {
		snap.Holder = *lease.Spec.HolderIdentity
		snap.HasHolder = true
	}

	if lease.Spec.RenewTime != nil {
		snap.RenewTime = lease.Spec.RenewTime.Time.UTC()
	}

	if lease.Spec.LeaseDurationSeconds != nil {
		seconds := *lease.Spec.LeaseDurationSeconds
		if seconds < 0 {
			return LeaseSnapshot{}, ErrIntegerOverflow
		}
		snap.LeaseDuration = time.Duration(seconds) * time.Second
	}

	return snap, nil
}

func snapshotFromUnstructured(u *unstructured.Unstructured) (LeaseSnapshot, error) {
	name, found, _ := unstructured.NestedString(u.Object, "metadata", "name")
	if !found || name == "" {
		return LeaseSnapshot{}, malformedRecordError("metadata.name")
	}
	rv, found, _ := unstructured.NestedString(u.Object, "metadata", "resourceVersion")
	if !found || rv == "" {
		return LeaseSnapshot{}, malformedRecordError("metadata.resourceVersion")
	}

	snap := LeaseSnapshot{LeaseName: name, ResourceVersion: rv}

	if holder, found, _ := unstructured.NestedString(u.Object, "spec", "holderIdentity"); found && holder != "" {
		snap.Holder = holder
		snap.HasHolder = true
	}

	if renewStr, found, _ := unstructured.NestedString(u.Object, "spec", "renewTime"); found && renewStr != "" {
		t, err := time.Parse(time.RFC3339Nano, renewStr)
		if err != nil {
			return LeaseSnapshot{}, fmt.Errorf("%w: spec.renewTime: %v", ErrMalformedRecord, err)
		}
		snap.RenewTime = t.UTC()
	}

	if seconds, found, _ := unstructured.NestedInt64(u.Object, "spec", "leaseDurationSeconds"); found {
		if seconds < 0 {
			return LeaseSnapshot{}, ErrIntegerOverflow
		}
		snap.LeaseDuration = time.Duration(seconds) * time.Second
	}

	return snap, nil
}
