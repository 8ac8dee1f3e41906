package primitives

import (
	"context"
	"sync"
	"time"
)

// Mutex is a fair read/write lock shared by many connections.
//
// Every acquisition (pending or granted) is a request in one FIFO queue. A lock is
// released by removing its request and running the release sweep, which grants the
// maximal run of same-typed requests at the front of the queue, but never more than
// a single writer.
//
// Thread-safety: all methods are safe for concurrent use.
type Mutex struct {
	mu      sync.Mutex
	q       waitQueue
	writing int // queued + granted exclusive requests
	reading int // queued + granted shared requests
}

// MutexState is a point in time view of a Mutex
type MutexState struct {
	Writing int
	Reading int
	Queued  int
}

// NewMutex creates a free mutex
func NewMutex() *Mutex {
	return &Mutex{q: newWaitQueue()}
}

// --------------------------------------------------------------------------
// Exclusive Mode
// --------------------------------------------------------------------------

// Lock blocks until c holds the mutex exclusively
func (m *Mutex) Lock(ctx context.Context, c Caller) error {
	_, err := m.acquire(ctx, c, AccessWrite, -1)
	return err
}

// TryLock acquires the mutex exclusively if that is possible without waiting
func (m *Mutex) TryLock(c Caller) (bool, error) {
	return m.tryAcquire(c, AccessWrite)
}

// TryLockFor waits at most d for the exclusive lock. It returns false if d elapsed.
func (m *Mutex) TryLockFor(ctx context.Context, c Caller, d time.Duration) (bool, error) {
	return m.acquire(ctx, c, AccessWrite, clampTimeout(d))
}

// Unlock releases the exclusive lock held by c
func (m *Mutex) Unlock(c Caller) error {
	return m.unlock(c, AccessWrite)
}

// --------------------------------------------------------------------------
// Shared Mode
// --------------------------------------------------------------------------

// LockShared blocks until c holds the mutex in shared mode
func (m *Mutex) LockShared(ctx context.Context, c Caller) error {
	_, err := m.acquire(ctx, c, AccessRead, -1)
	return err
}

// TryLockShared acquires the mutex in shared mode if that is possible without waiting
func (m *Mutex) TryLockShared(c Caller) (bool, error) {
	return m.tryAcquire(c, AccessRead)
}

// TryLockSharedFor waits at most d for a shared lock
func (m *Mutex) TryLockSharedFor(ctx context.Context, c Caller, d time.Duration) (bool, error) {
	return m.acquire(ctx, c, AccessRead, clampTimeout(d))
}

// UnlockShared releases one shared lock held by c
func (m *Mutex) UnlockShared(c Caller) error {
	return m.unlock(c, AccessRead)
}

// State returns the current counters
func (m *Mutex) State() MutexState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MutexState{Writing: m.writing, Reading: m.reading, Queued: m.q.len()}
}

// Engaged reports whether the connection holds or waits for the mutex
func (m *Mutex) Engaged(id ConnID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.engaged(id)
}

// --------------------------------------------------------------------------
// Internal
// --------------------------------------------------------------------------

// admissible reports whether a request of the given type can be granted right now
func (m *Mutex) admissible(access AccessType) bool {
	if access == AccessWrite {
		return m.writing == 0 && m.reading == 0
	}
	return m.writing == 0
}

func (m *Mutex) count(access AccessType, delta int) {
	if access == AccessWrite {
		m.writing += delta
	} else {
		m.reading += delta
	}
}

func (m *Mutex) acquire(ctx context.Context, c Caller, access AccessType, timeout time.Duration) (bool, error) {
	m.mu.Lock()
	granted := m.admissible(access)
	r, err := m.q.enroll(c, access, !granted, m.handleDisconnection)
	if err != nil {
		m.mu.Unlock()
		return false, err
	}
	m.count(access, 1)
	m.mu.Unlock()

	if granted {
		return true, nil
	}
	return await(ctx, &m.mu, r, timeout, m.cancel)
}

func (m *Mutex) tryAcquire(c Caller, access AccessType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := c.closedErr(); err != nil {
		return false, err
	}
	if !m.admissible(access) {
		return false, nil
	}
	if _, err := m.q.enroll(c, access, false, m.handleDisconnection); err != nil {
		return false, err
	}
	m.count(access, 1)
	return true, nil
}

func (m *Mutex) unlock(c Caller, access AccessType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode := "unique"
	if access == AccessRead {
		mode = "shared"
	}

	front := m.q.front()
	if front == nil || front.access != access {
		return newErrorf(RetCNotOwner, "the mutex is not held in %s mode", mode)
	}

	local := m.q.localFront(c.ID)
	if local == nil || local.pending || local.access != access {
		return newErrorf(RetCNotOwner, "connection %d does not hold the %s lock", c.ID, mode)
	}
	if access == AccessWrite && local != front {
		return newErrorf(RetCNotOwner, "connection %d does not hold the unique lock", c.ID)
	}

	m.release(local)
	return nil
}

// release drops the granted request r and grants whoever is next.
// Must be called with m.mu held.
func (m *Mutex) release(r *request) {
	m.q.erase(r)
	m.count(r.access, -1)
	m.sweep()
}

// sweep grants the pending requests of the same-typed run at the front of the
// queue. It stops after the first writer. Must be called with m.mu held.
func (m *Mutex) sweep() {
	front := m.q.queue.Front()
	if front == nil {
		return
	}
	access := front.Value.(*request).access

	for e := front; e != nil; e = e.Next() {
		r := e.Value.(*request)
		if r.access != access {
			break
		}
		r.resolve(true)
		if r.access == AccessWrite {
			break
		}
	}
}

// cancel removes the pending request r. If r sat directly behind a granted request,
// removing it may expose a run that can be granted now. Must be called with m.mu held.
func (m *Mutex) cancel(r *request) {
	prev := r.elem.Prev()
	m.q.erase(r)
	m.count(r.access, -1)
	if prev != nil && !prev.Value.(*request).pending {
		m.sweep()
	}
	r.resolve(false)
}

func (m *Mutex) handleDisconnection(r *request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.discarded {
		return
	}
	if r.pending {
		m.cancel(r)
	} else {
		m.release(r)
	}
}

// clampTimeout maps negative durations to an immediate timeout
func clampTimeout(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
