package leaselock_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	coordinationv1 "k8s.io/api/coordination/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/payback159/lease-lock/leaselock"
)

// This suite exercises Locker end-to-end against the real
// controller-runtime fake client rather than the in-memory test double
// used elsewhere in this package, to confirm the server-side-apply code
// path in gateway.go round-trips through an object tracker that
// actually understands typed Lease objects. It is deliberately narrow:
// the branching protocol logic (conflicts, expiry takeover, lost-race
// releases) is covered against the hand-rolled gateway double in
// acquire_test.go and handle_test.go, where version-conflict semantics
// are guaranteed rather than inferred from the fake client's behavior.
var _ = Describe("Locker against a real Kubernetes client", func() {
	var scheme *runtime.Scheme

	BeforeEach(func() {
		scheme = runtime.NewScheme()
		Expect(coordinationv1.AddToScheme(scheme)).To(Succeed())
	})

	It("acquires an existing lease with no holder and records itself as holder", func() {
		lease := &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{Name: "app-leader", Namespace: "default"},
		}
		c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(lease).Build()

		locker := leaselock.New(c, "default", "app-leader", leaselock.WithLeaseDurationSeconds(10))

		handle, err := locker.Acquire(context.Background(), "pod-a", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(handle.HolderID()).To(Equal("pod-a"))

		var got coordinationv1.Lease
		Expect(c.Get(context.Background(), client.ObjectKey{Namespace: "default", Name: "app-leader"}, &got)).To(Succeed())
		Expect(got.Spec.HolderIdentity).ToNot(BeNil())
		Expect(*got.Spec.HolderIdentity).To(Equal("pod-a"))

		handle.Release()
		locker.CompleteAllOperations()

		Eventually(func() *string {
			var after coordinationv1.Lease
			if err := c.Get(context.Background(), client.ObjectKey{Namespace: "default", Name: "app-leader"}, &after); err != nil {
				return nil
			}
			return after.Spec.HolderIdentity
		}, time.Second).Should(BeNil())
	})
})
