package testutil

import (
	"context"
	"sync"

	"github.com/roach88/leafline/internal/entity"
	"github.com/roach88/leafline/internal/remote"
)

// FakeRemote is a scripted in-memory remote.Service.
//
// Saved entities are appended to the collection FetchAll returns, replacing
// any existing entity with the same id. Failures are scripted per call with
// FailNext or globally with SetDown.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeRemote struct {
	mu        sync.Mutex
	data      map[entity.Kind][]entity.Entity
	saves     []entity.Entity
	keys      []string
	fetches   int
	down      bool
	failures  []error
	rejectIDs map[string]error
	assignID  func(entity.Entity) string
	gate      chan struct{}
	inFlight  int
	maxFlight int
}

var _ remote.Service = (*FakeRemote)(nil)

// NewFakeRemote returns an empty, reachable fake.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		data:      make(map[entity.Kind][]entity.Entity),
		rejectIDs: make(map[string]error),
	}
}

// Seed sets the collection FetchAll returns for kind.
func (f *FakeRemote) Seed(kind entity.Kind, items ...entity.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[kind] = append([]entity.Entity(nil), items...)
}

// SetDown makes every call fail with remote.ErrUnreachable until cleared.
func (f *FakeRemote) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// FailNext queues errors returned by the next calls, one per call.
func (f *FakeRemote) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, errs...)
}

// RejectID makes every Save of the entity with id fail with err.
func (f *FakeRemote) RejectID(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectIDs[id] = err
}

// AssignIDs makes Save confirm entities under the id fn returns,
// simulating server-assigned identifiers.
func (f *FakeRemote) AssignIDs(fn func(entity.Entity) string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignID = fn
}

// Hold blocks every call until the returned release func is called.
func (f *FakeRemote) Hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Saves returns confirmed saves in the order the fake accepted them.
func (f *FakeRemote) Saves() []entity.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.Entity(nil), f.saves...)
}

// IdempotencyKeys returns the keys attached to accepted saves, in order.
func (f *FakeRemote) IdempotencyKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

// Fetches returns how many FetchAll calls succeeded.
func (f *FakeRemote) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (f *FakeRemote) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxFlight
}

// FetchAll returns the seeded collection for kind.
func (f *FakeRemote) FetchAll(ctx context.Context, kind entity.Kind) ([]entity.Entity, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	defer f.leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("fetch"); err != nil {
		return nil, err
	}
	f.fetches++
	return append([]entity.Entity{}, f.data[kind]...), nil
}

// Save confirms e, applying AssignIDs, and records it.
func (f *FakeRemote) Save(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	defer f.leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("save"); err != nil {
		return nil, err
	}
	if err, ok := f.rejectIDs[e.EntityID()]; ok {
		return nil, err
	}

	confirmed := e
	if f.assignID != nil {
		confirmed = entity.WithID(e, f.assignID(e))
	}
	f.saves = append(f.saves, confirmed)
	if key, ok := remote.IdempotencyKey(ctx); ok {
		f.keys = append(f.keys, key)
	}

	items := f.data[confirmed.Kind()]
	for i, existing := range items {
		if existing.EntityID() == confirmed.EntityID() {
			items[i] = confirmed
			return confirmed, nil
		}
	}
	f.data[confirmed.Kind()] = append(items, confirmed)
	return confirmed, nil
}

// enter waits on a Hold gate and tracks concurrency.
func (f *FakeRemote) enter(ctx context.Context) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	gate := f.gate
	f.mu.Unlock()

	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		f.leave()
		return &remote.UnreachableError{Op: "held", Err: ctx.Err()}
	}
}

func (f *FakeRemote) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

// scripted returns the next scripted failure. Must hold mu.
func (f *FakeRemote) scripted(op string) error {
	if f.down {
		return &remote.UnreachableError{Op: op, Err: remote.ErrUnreachable}
	}
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	return nil
}
