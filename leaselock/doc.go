// Package leaselock implements a distributed mutual-exclusion lock backed
// by a coordination.k8s.io/v1 Lease. At most one holder owns a named lease
// at a time; the holder renews it periodically in the background, and an
// expired or released lease can be taken over by another contender.
//
// Concurrency control against the remote Lease record is optimistic:
// every write carries the resourceVersion of the read that produced it,
// and the apiserver rejects stale writes with a 409 that this package
// treats as "someone else won" rather than an error.
package leaselock
