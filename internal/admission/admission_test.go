package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_Release(t *testing.T) {
	c := New(2)
	ctx := context.Background()

	ticket, err := c.Acquire(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, ticket)

	assert.Equal(t, 1, c.OwnerGates())

	ticket.Release()
	assert.Equal(t, 0, c.OwnerGates(), "owner gate must be evicted after release")
}

func TestRelease_Idempotent(t *testing.T) {
	c := New(1)
	ctx := context.Background()

	ticket, err := c.Acquire(ctx, "owner-1")
	require.NoError(t, err)

	ticket.Release()
	ticket.Release()
	ticket.Release()

	// The slot was returned exactly once, so another acquire succeeds.
	ticket2, err := c.Acquire(ctx, "owner-1")
	require.NoError(t, err)
	ticket2.Release()
	assert.Equal(t, 0, c.OwnerGates())
}

func TestGlobalCeiling(t *testing.T) {
	const capacity = 3
	const workers = 10

	c := New(capacity)
	ctx := context.Background()

	var inFlight atomic.Int32
	var peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Distinct owners so only the global gate binds.
			ticket, err := c.Acquire(ctx, string(rune('a'+n)))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			defer ticket.Release()

			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(capacity),
		"in-flight admissions must never exceed the global ceiling")
	assert.Equal(t, 0, c.OwnerGates())
}

func TestPerOwnerExclusive(t *testing.T) {
	c := New(10)
	ctx := context.Background()

	var inFlight atomic.Int32
	var overlap atomic.Bool
	var wg sync.WaitGroup

	// Many concurrent acquisitions for the same owner must serialize.
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := c.Acquire(ctx, "chat-42")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			defer ticket.Release()

			if inFlight.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "same-owner admissions must be exclusive")
	assert.Equal(t, 0, c.OwnerGates())
}

func TestAcquire_CancelledWhileWaitingForOwnerGate(t *testing.T) {
	c := New(5)
	ctx := context.Background()

	first, err := c.Acquire(ctx, "owner-1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	_, err = c.Acquire(waitCtx, "owner-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned wait must not leak a reference: after the holder
	// releases, the owner table is empty and the gate reusable.
	first.Release()
	assert.Equal(t, 0, c.OwnerGates())

	again, err := c.Acquire(ctx, "owner-1")
	require.NoError(t, err)
	again.Release()
}

func TestAcquire_CancelledWhileWaitingForGlobalSlot(t *testing.T) {
	c := New(1)
	ctx := context.Background()

	holder, err := c.Acquire(ctx, "owner-1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	// Different owner, so the wait happens on the global gate.
	_, err = c.Acquire(waitCtx, "owner-2")
	require.Error(t, err)

	// owner-2's gate entry must have been rolled back.
	assert.Equal(t, 1, c.OwnerGates())

	holder.Release()
	assert.Equal(t, 0, c.OwnerGates())

	// The slot abandoned mid-wait was not consumed.
	next, err := c.Acquire(ctx, "owner-2")
	require.NoError(t, err)
	next.Release()
}

func TestSameOwnerQueuesFIFO(t *testing.T) {
	c := New(10)
	ctx := context.Background()

	first, err := c.Acquire(ctx, "chat-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := c.Acquire(ctx, "chat-1")
		if err == nil {
			second.Release()
		}
		close(acquired)
	}()

	// The second request waits behind the first.
	select {
	case <-acquired:
		t.Fatal("second acquire should block while first holds the gate")
	case <-time.After(20 * time.Millisecond):
	}

	first.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire should proceed after release")
	}
}

func TestNew_MinimumCapacity(t *testing.T) {
	c := New(0)
	ctx := context.Background()

	// Capacity is clamped to at least one slot.
	ticket, err := c.Acquire(ctx, "owner-1")
	require.NoError(t, err)
	ticket.Release()
}
