// Package admission bounds job concurrency: a global counting gate with a
// fixed capacity plus an exclusive gate per owner key, so one owner never
// runs two jobs at once. All shared mutable state of the orchestration layer
// lives here, behind the Acquire/Release pair.
package admission

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Controller grants admission tickets. Construct one with New and share it;
// there is no ambient global state.
type Controller struct {
	global *semaphore.Weighted

	mu     sync.Mutex
	owners map[string]*ownerGate
}

// ownerGate is the exclusive gate for one owner key, reference-counted so
// the entry can be evicted once nobody holds or awaits it.
type ownerGate struct {
	sem  *semaphore.Weighted
	refs int
}

// New creates a Controller with the given global capacity.
func New(capacity int64) *Controller {
	if capacity < 1 {
		capacity = 1
	}
	return &Controller{
		global: semaphore.NewWeighted(capacity),
		owners: make(map[string]*ownerGate),
	}
}

// Acquire blocks until both the owner's exclusive gate and a global slot are
// free, in that order, so a second request from the same owner queues behind
// the first's full lifecycle. Waiters are served FIFO per gate. If ctx is
// cancelled while waiting, no slot is consumed and the owner entry is
// released.
func (c *Controller) Acquire(ctx context.Context, ownerKey string) (*Ticket, error) {
	gate := c.retain(ownerKey)

	if err := gate.sem.Acquire(ctx, 1); err != nil {
		c.unref(ownerKey)
		return nil, fmt.Errorf("admission: waiting for owner gate: %w", err)
	}

	if err := c.global.Acquire(ctx, 1); err != nil {
		gate.sem.Release(1)
		c.unref(ownerKey)
		return nil, fmt.Errorf("admission: waiting for global slot: %w", err)
	}

	t := &Ticket{}
	t.release = func() {
		c.global.Release(1)
		gate.sem.Release(1)
		c.unref(ownerKey)
	}
	return t, nil
}

// retain returns the owner's gate, creating it on first use, and bumps its
// reference count.
func (c *Controller) retain(ownerKey string) *ownerGate {
	c.mu.Lock()
	defer c.mu.Unlock()

	gate, ok := c.owners[ownerKey]
	if !ok {
		gate = &ownerGate{sem: semaphore.NewWeighted(1)}
		c.owners[ownerKey] = gate
	}
	gate.refs++
	return gate
}

// unref drops one reference to the owner's gate and evicts the map entry at
// zero, keeping the lock table bounded by the number of live owners.
func (c *Controller) unref(ownerKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gate, ok := c.owners[ownerKey]
	if !ok {
		return
	}
	gate.refs--
	if gate.refs <= 0 {
		delete(c.owners, ownerKey)
	}
}

// OwnerGates returns the number of live owner-gate entries.
func (c *Controller) OwnerGates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.owners)
}

// Ticket is a granted admission. Release returns both the global slot and
// the owner's gate; calling it more than once is safe and only the first
// call has effect.
type Ticket struct {
	once    sync.Once
	release func()
}

// Release returns the admission. Safe to call multiple times.
func (t *Ticket) Release() {
	t.once.Do(t.release)
}
