package leaselock

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// fakeGateway is an in-memory LeaseGateway used to exercise acquireLoop,
// renewalTask, and LeaseHandle without depending on the fake
// controller-runtime client's server-side-apply support. It implements
// the same optimistic-concurrency contract LeaseGateway promises: writes
// carrying a stale resourceVersion fail with errConflict.
type fakeGateway struct {
	mu sync.Mutex

	name            string
	hasHolder       bool
	holder          string
	renewTime       time.Time
	leaseDuration   time.Duration
	resourceVersion int

	readErr  error
	applyErr error
}

func newFakeGateway(name string) *fakeGateway {
	return &fakeGateway{name: name, resourceVersion: 1}
}

func (g *fakeGateway) Read(ctx context.Context) (LeaseSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.readErr != nil {
		return LeaseSnapshot{}, g.readErr
	}

	return g.snapshotLocked(), nil
}

func (g *fakeGateway) Apply(ctx context.Context, p applyFields) (LeaseSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.applyErr != nil {
		return LeaseSnapshot{}, g.applyErr
	}

	if p.resourceVersion != strconv.Itoa(g.resourceVersion) {
		return LeaseSnapshot{}, errConflict
	}

	if p.renewTime != nil {
		g.renewTime = *p.renewTime
	}
	if p.leaseDurationSeconds != nil {
		g.leaseDuration = time.Duration(*p.leaseDurationSeconds) * time.Second
	}
	switch {
	case p.clearHolderIdentity:
		g.hasHolder = false
		g.holder = ""
	case p.holderIdentity != nil:
		g.hasHolder = true
		g.holder = *p.holderIdentity
	}

	g.resourceVersion++

	return g.snapshotLocked(), nil
}

func (g *fakeGateway) snapshotLocked() LeaseSnapshot {
	return LeaseSnapshot{
		LeaseName:       g.name,
		Holder:          g.holder,
		HasHolder:       g.hasHolder,
		RenewTime:       g.renewTime,
		LeaseDuration:   g.leaseDuration,
		ResourceVersion: strconv.Itoa(g.resourceVersion),
	}
}

// setRemote lets a test simulate an out-of-band write (another client
// winning a race, or an external patch) without going through Apply's
// version check.
func (g *fakeGateway) setRemote(holder string, hasHolder bool, renew time.Time, leaseDuration time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.holder = holder
	g.hasHolder = hasHolder
	g.renewTime = renew
	g.leaseDuration = leaseDuration
	g.resourceVersion++
}
