package leaselock

import (
	"context"
	"fmt"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// LeaseGateway is a thin typed adapter over the Kubernetes API for a
// single named Lease. It does not interpret the snapshots it returns; it
// only classifies write failures into a stale-version conflict versus
// everything else.
type LeaseGateway interface {
	// Read fetches the current record and builds a snapshot.
	Read(ctx context.Context) (LeaseSnapshot, error)

	// Apply issues a server-side apply patch containing only the fields
	// set on p. On a stale resourceVersion it returns errConflict; other
	// API failures are wrapped in ErrTransport.
	Apply(ctx context.Context, p applyFields) (LeaseSnapshot, error)
}

// applyFields describes a partial write to a Lease's spec. Only the
// non-nil fields are included in the patch; clearHolderIdentity sends an
// explicit null for spec.holderIdentity rather than omitting the key.
type applyFields struct {
	resourceVersion      string
	acquireTime          *time.Time
	renewTime            *time.Time
	holderIdentity       *string
	clearHolderIdentity  bool
	leaseDurationSeconds *int32
}

func (p applyFields) toUnstructured(namespace, name string) *unstructured.Unstructured {
	spec := map[string]interface{}{}
	if p.acquireTime != nil {
		spec["acquireTime"] = p.acquireTime.UTC().Format(microTimeLayout)
	}
	if p.renewTime != nil {
		spec["renewTime"] = p.renewTime.UTC().Format(microTimeLayout)
	}
	switch {
	case p.clearHolderIdentity:
		spec["holderIdentity"] = nil
	case p.holderIdentity != nil:
		spec["holderIdentity"] = *p.holderIdentity
	}
	if p.leaseDurationSeconds != nil {
		spec["leaseDurationSeconds"] = int64(*p.leaseDurationSeconds)
	}

	metadata := map[string]interface{}{
		"name":            name,
		"resourceVersion": p.resourceVersion,
	}
	if namespace != "" {
		metadata["namespace"] = namespace
	}

	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "coordination.k8s.io/v1",
		"kind":       "Lease",
		"metadata":   metadata,
		"spec":       spec,
	}}
}

// clientGateway is the production LeaseGateway, backed by a
// controller-runtime client.Client.
type clientGateway struct {
	client    client.Client
	namespace string
	name      string
}

func newClientGateway(c client.Client, namespace, name string) LeaseGateway {
	return &clientGateway{client: c, namespace: namespace, name: name}
}

func (g *clientGateway) Read(ctx context.Context) (LeaseSnapshot, error) {
	var lease coordinationv1.Lease
	key := client.ObjectKey{Namespace: g.namespace, Name: g.name}
	if err := g.client.Get(ctx, key, &lease); err != nil {
		return LeaseSnapshot{}, fmt.Errorf("%w: get lease %s: %v", ErrTransport, g.name, err)
	}
	return snapshotFromLease(&lease)
}

func (g *clientGateway) Apply(ctx context.Context, p applyFields) (LeaseSnapshot, error) {
	obj := p.toUnstructured(g.namespace, g.name)
	err := g.client.Patch(ctx, obj, client.Apply, client.ForceOwnership, client.FieldOwner(FieldManager))
	if err != nil {
		if apierrors.IsConflict(err) {
			return LeaseSnapshot{}, errConflict
		}
		return LeaseSnapshot{}, fmt.Errorf("%w: apply lease %s: %v", ErrTransport, g.name, err)
	}
	return snapshotFromUnstructured(obj)
}
