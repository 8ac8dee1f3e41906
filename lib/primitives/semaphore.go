package primitives

import (
	"context"
	"sync"
	"time"
)

// Semaphore is a counting semaphore with a fixed capacity. Grants are tracked per
// connection so that a connection can never release more than it acquired.
//
// Thread-safety: all methods are safe for concurrent use.
type Semaphore struct {
	mu       sync.Mutex
	q        waitQueue
	capacity int64
	acquired int64
}

// NewSemaphore creates a semaphore with the given capacity (>= 1)
func NewSemaphore(capacity int64) (*Semaphore, error) {
	if capacity < 1 {
		return nil, newErrorf(RetCInvalidArgument, "semaphore capacity must be at least 1, got %d", capacity)
	}
	return &Semaphore{q: newWaitQueue(), capacity: capacity}, nil
}

// Max returns the capacity of the semaphore
func (s *Semaphore) Max() int64 {
	return s.capacity
}

// Acquired returns the number of slots currently granted
func (s *Semaphore) Acquired() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

// Held returns the number of slots granted to the given connection
func (s *Semaphore) Held(id ConnID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.q.granted(id)))
}

// Acquire blocks until c holds one slot
func (s *Semaphore) Acquire(ctx context.Context, c Caller) error {
	_, err := s.acquire(ctx, c, -1)
	return err
}

// Engaged reports whether the connection holds a slot or waits for one
func (s *Semaphore) Engaged(id ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.engaged(id)
}

// TryAcquire takes a slot if one is free
func (s *Semaphore) TryAcquire(c Caller) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.closedErr(); err != nil {
		return false, err
	}
	if s.acquired >= s.capacity {
		return false, nil
	}
	if _, err := s.q.enroll(c, AccessWrite, false, s.handleDisconnection); err != nil {
		return false, err
	}
	s.acquired++
	return true, nil
}

// TryAcquireFor waits at most d for a slot
func (s *Semaphore) TryAcquireFor(ctx context.Context, c Caller, d time.Duration) (bool, error) {
	return s.acquire(ctx, c, clampTimeout(d))
}

// Release gives back n slots held by c, oldest grants first, and admits up to n
// waiters. It fails with ErrOutOfRange without side effects if n < 1, n exceeds
// the capacity or n exceeds the number of slots c holds.
func (s *Semaphore) Release(c Caller, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 1 {
		return newErrorf(RetCOutOfRange, "release count must be at least 1, got %d", n)
	}
	if n > s.capacity {
		return newErrorf(RetCOutOfRange, "release count %d exceeds the capacity %d", n, s.capacity)
	}
	held := s.q.granted(c.ID)
	if n > int64(len(held)) {
		return newErrorf(RetCOutOfRange, "release count %d exceeds the %d slot(s) held by connection %d", n, len(held), c.ID)
	}

	for _, r := range held[:n] {
		s.q.erase(r)
	}
	s.acquired -= n
	s.sweep(n)
	return nil
}

func (s *Semaphore) acquire(ctx context.Context, c Caller, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	granted := s.acquired < s.capacity
	r, err := s.q.enroll(c, AccessWrite, !granted, s.handleDisconnection)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if granted {
		s.acquired++
	}
	s.mu.Unlock()

	if granted {
		return true, nil
	}
	return await(ctx, &s.mu, r, timeout, s.cancel)
}

// sweep grants up to n waiters in FIFO order while slots are free.
// Must be called with s.mu held.
func (s *Semaphore) sweep(n int64) {
	for e := s.q.queue.Front(); e != nil && n > 0 && s.acquired < s.capacity; e = e.Next() {
		if r := e.Value.(*request); r.resolve(true) {
			s.acquired++
			n--
		}
	}
}

func (s *Semaphore) cancel(r *request) {
	s.q.erase(r)
	r.resolve(false)
}

func (s *Semaphore) handleDisconnection(r *request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.discarded {
		return
	}
	if r.pending {
		s.cancel(r)
		return
	}
	s.q.erase(r)
	s.acquired--
	s.sweep(1)
}
