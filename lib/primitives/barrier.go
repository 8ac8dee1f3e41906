package primitives

import (
	"context"
	"time"
)

// Barrier is a reusable rendezvous point for a fixed number of participants.
// When the arrivals of the current phase reach the size, all waiters are released
// and the next phase starts with the overshoot.
type Barrier struct {
	cv      *ConditionVariable // cv.mu also guards size and arrived
	size    int64
	arrived int64
}

// NewBarrier creates a barrier for size participants (>= 1)
func NewBarrier(size int64) (*Barrier, error) {
	if size < 1 {
		return nil, newErrorf(RetCInvalidArgument, "barrier size must be at least 1, got %d", size)
	}
	return &Barrier{cv: NewConditionVariable(), size: size}, nil
}

// Size returns the current number of participants
func (b *Barrier) Size() int64 {
	b.cv.mu.Lock()
	defer b.cv.mu.Unlock()
	return b.size
}

// Arrived returns the arrivals of the current phase
func (b *Barrier) Arrived() int64 {
	b.cv.mu.Lock()
	defer b.cv.mu.Unlock()
	return b.arrived
}

// Arrive counts n arrivals without waiting
func (b *Barrier) Arrive(n int64) error {
	if n < 0 {
		return newErrorf(RetCInvalidArgument, "arrival count must not be negative, got %d", n)
	}

	b.cv.mu.Lock()
	defer b.cv.mu.Unlock()
	b.arriveLocked(n)
	return nil
}

// ArriveAndWait counts one arrival and waits for the end of the phase. The waiter is
// queued before it arrives, so it is released even if its own arrival completes
// the phase.
func (b *Barrier) ArriveAndWait(ctx context.Context, c Caller) error {
	b.cv.mu.Lock()
	r, err := b.cv.enrollLocked(c)
	if err != nil {
		b.cv.mu.Unlock()
		return err
	}
	b.arriveLocked(1)
	b.cv.mu.Unlock()

	_, err = b.cv.await(ctx, r, -1)
	return err
}

// ArriveAndDrop removes one participant for good and re-evaluates the phase
func (b *Barrier) ArriveAndDrop() {
	b.cv.mu.Lock()
	defer b.cv.mu.Unlock()

	if b.size > 0 {
		b.size--
	}
	b.arriveLocked(0)
}

// Engaged reports whether the connection waits at the barrier
func (b *Barrier) Engaged(id ConnID) bool {
	return b.cv.Engaged(id)
}

// Wait blocks until the current phase completes
func (b *Barrier) Wait(ctx context.Context, c Caller) error {
	return b.cv.Wait(ctx, c)
}

// WaitFor waits at most d for the current phase to complete
func (b *Barrier) WaitFor(ctx context.Context, c Caller, d time.Duration) (bool, error) {
	return b.cv.WaitFor(ctx, c, d)
}

func (b *Barrier) arriveLocked(n int64) {
	b.arrived += n
	if b.arrived < b.size {
		return
	}
	if b.size > 0 {
		b.arrived %= b.size
	} else {
		b.arrived = 0
	}
	b.cv.notifyAllLocked()
}
