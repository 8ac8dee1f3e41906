package primitives

import (
	"context"
	"sync"
	"time"
)

// ConditionVariable is a queue of waiters. It carries no state of its own, a
// notify only wakes whoever is waiting at that moment.
//
// Thread-safety: all methods are safe for concurrent use. The Barrier and the Latch
// keep their counters under the same mutex.
type ConditionVariable struct {
	mu sync.Mutex
	q  waitQueue
}

// NewConditionVariable creates a condition variable without waiters
func NewConditionVariable() *ConditionVariable {
	return &ConditionVariable{q: newWaitQueue()}
}

// Wait blocks until c is notified
func (cv *ConditionVariable) Wait(ctx context.Context, c Caller) error {
	_, err := cv.wait(ctx, c, -1)
	return err
}

// WaitFor blocks until c is notified or d elapsed. It returns true if c was woken.
func (cv *ConditionVariable) WaitFor(ctx context.Context, c Caller, d time.Duration) (bool, error) {
	return cv.wait(ctx, c, clampTimeout(d))
}

// NotifyOne wakes the oldest waiter. It returns the number of woken waiters (0 or 1).
func (cv *ConditionVariable) NotifyOne() int {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	r := cv.q.front()
	if r == nil {
		return 0
	}
	cv.q.erase(r)
	r.resolve(true)
	return 1
}

// NotifyAll wakes every current waiter and returns how many there were
func (cv *ConditionVariable) NotifyAll() int {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.notifyAllLocked()
}

// Waiting returns the number of queued waiters
func (cv *ConditionVariable) Waiting() int {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.q.len()
}

// Engaged reports whether the connection waits on the condition variable
func (cv *ConditionVariable) Engaged(id ConnID) bool {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.q.engaged(id)
}

func (cv *ConditionVariable) wait(ctx context.Context, c Caller, timeout time.Duration) (bool, error) {
	cv.mu.Lock()
	r, err := cv.enrollLocked(c)
	cv.mu.Unlock()
	if err != nil {
		return false, err
	}
	return cv.await(ctx, r, timeout)
}

// enrollLocked queues a waiter for c. Must be called with cv.mu held.
func (cv *ConditionVariable) enrollLocked(c Caller) (*request, error) {
	return cv.q.enroll(c, AccessWrite, true, cv.handleDisconnection)
}

func (cv *ConditionVariable) await(ctx context.Context, r *request, timeout time.Duration) (bool, error) {
	return await(ctx, &cv.mu, r, timeout, cv.cancel)
}

// notifyAllLocked empties the queue before any waiter is resumed, so the batch is
// fixed. Must be called with cv.mu held.
func (cv *ConditionVariable) notifyAllLocked() int {
	waiters := cv.q.snapshot()
	for _, r := range waiters {
		cv.q.erase(r)
	}
	for _, r := range waiters {
		r.resolve(true)
	}
	return len(waiters)
}

func (cv *ConditionVariable) cancel(r *request) {
	cv.q.erase(r)
	r.resolve(false)
}

func (cv *ConditionVariable) handleDisconnection(r *request) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	if r.discarded {
		return
	}
	cv.cancel(r)
}
