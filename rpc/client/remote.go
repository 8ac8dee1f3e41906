package client

import (
	"context"
	"github.com/ValentinKolb/dSync/lib/lockmgr"
	"time"
)

// --------------------------------------------------------------------------
// Thin proxies bound to a single name. They work on top of any
// lockmgr.ILockManager, remote or in process.
// --------------------------------------------------------------------------

// untilTimeout converts a deadline into a timeout, a deadline in the past
// becomes a zero timeout (try once)
func untilTimeout(at time.Time) time.Duration {
	d := time.Until(at)
	if d < 0 {
		return 0
	}
	return d
}

// RemoteMutex is a named read/write lock
type RemoteMutex struct {
	mutexes lockmgr.IMutexes
	name    string
}

// NewRemoteMutex binds the mutex name and returns a proxy for it
func NewRemoteMutex(ctx context.Context, locks lockmgr.ILockManager, name string) (*RemoteMutex, error) {
	if err := locks.Mutexes().Emplace(ctx, name); err != nil {
		return nil, err
	}
	return &RemoteMutex{mutexes: locks.Mutexes(), name: name}, nil
}

func (m *RemoteMutex) Name() string                     { return m.name }
func (m *RemoteMutex) Lock(ctx context.Context) error   { return m.mutexes.Lock(ctx, m.name) }
func (m *RemoteMutex) Unlock(ctx context.Context) error { return m.mutexes.Unlock(ctx, m.name) }
func (m *RemoteMutex) TryLock(ctx context.Context) (bool, error) {
	return m.mutexes.TryLock(ctx, m.name)
}
func (m *RemoteMutex) TryLockFor(ctx context.Context, timeout time.Duration) (bool, error) {
	return m.mutexes.TryLockFor(ctx, m.name, timeout)
}
func (m *RemoteMutex) TryLockUntil(ctx context.Context, at time.Time) (bool, error) {
	return m.mutexes.TryLockFor(ctx, m.name, untilTimeout(at))
}

func (m *RemoteMutex) LockShared(ctx context.Context) error   { return m.mutexes.LockShared(ctx, m.name) }
func (m *RemoteMutex) UnlockShared(ctx context.Context) error { return m.mutexes.UnlockShared(ctx, m.name) }
func (m *RemoteMutex) TryLockShared(ctx context.Context) (bool, error) {
	return m.mutexes.TryLockShared(ctx, m.name)
}
func (m *RemoteMutex) TryLockSharedFor(ctx context.Context, timeout time.Duration) (bool, error) {
	return m.mutexes.TryLockSharedFor(ctx, m.name, timeout)
}
func (m *RemoteMutex) TryLockSharedUntil(ctx context.Context, at time.Time) (bool, error) {
	return m.mutexes.TryLockSharedFor(ctx, m.name, untilTimeout(at))
}

// Close unbinds the name, the proxy must not be used afterwards
func (m *RemoteMutex) Close(ctx context.Context) error { return m.mutexes.Erase(ctx, m.name) }

// RemoteSemaphore is a named counting semaphore
type RemoteSemaphore struct {
	semaphores lockmgr.ISemaphores
	name       string
	max        int64
}

// NewRemoteSemaphore binds the semaphore name. If the semaphore already exists,
// its capacity is kept and reported by Max.
func NewRemoteSemaphore(ctx context.Context, locks lockmgr.ILockManager, name string, capacity int64) (*RemoteSemaphore, error) {
	max, err := locks.Semaphores().Emplace(ctx, name, capacity)
	if err != nil {
		return nil, err
	}
	return &RemoteSemaphore{semaphores: locks.Semaphores(), name: name, max: max}, nil
}

func (s *RemoteSemaphore) Name() string { return s.name }

// Max returns the capacity of the semaphore, it never changes
func (s *RemoteSemaphore) Max() int64 { return s.max }

func (s *RemoteSemaphore) Acquire(ctx context.Context) error { return s.semaphores.Acquire(ctx, s.name) }
func (s *RemoteSemaphore) TryAcquire(ctx context.Context) (bool, error) {
	return s.semaphores.TryAcquire(ctx, s.name)
}
func (s *RemoteSemaphore) TryAcquireFor(ctx context.Context, timeout time.Duration) (bool, error) {
	return s.semaphores.TryAcquireFor(ctx, s.name, timeout)
}
func (s *RemoteSemaphore) TryAcquireUntil(ctx context.Context, at time.Time) (bool, error) {
	return s.semaphores.TryAcquireFor(ctx, s.name, untilTimeout(at))
}
func (s *RemoteSemaphore) Release(ctx context.Context, n int64) error {
	return s.semaphores.Release(ctx, s.name, n)
}
func (s *RemoteSemaphore) Close(ctx context.Context) error { return s.semaphores.Erase(ctx, s.name) }

// Predicate is evaluated by the waiting side of a condition variable. It may
// itself talk to the server.
type Predicate func(ctx context.Context) (bool, error)

// RemoteConditionVariable is a named condition variable
type RemoteConditionVariable struct {
	conditions lockmgr.IConditionVariables
	name       string
}

// NewRemoteConditionVariable binds the condition variable name
func NewRemoteConditionVariable(ctx context.Context, locks lockmgr.ILockManager, name string) (*RemoteConditionVariable, error) {
	if err := locks.ConditionVariables().Emplace(ctx, name); err != nil {
		return nil, err
	}
	return &RemoteConditionVariable{conditions: locks.ConditionVariables(), name: name}, nil
}

func (c *RemoteConditionVariable) Name() string                   { return c.name }
func (c *RemoteConditionVariable) Wait(ctx context.Context) error { return c.conditions.Wait(ctx, c.name) }
func (c *RemoteConditionVariable) WaitFor(ctx context.Context, timeout time.Duration) (bool, error) {
	return c.conditions.WaitFor(ctx, c.name, timeout)
}
func (c *RemoteConditionVariable) WaitUntil(ctx context.Context, at time.Time) (bool, error) {
	return c.conditions.WaitFor(ctx, c.name, untilTimeout(at))
}

// WaitPred waits until pred holds. pred is checked before the first wait and
// after every notification.
func (c *RemoteConditionVariable) WaitPred(ctx context.Context, pred Predicate) error {
	for {
		ok, err := pred(ctx)
		if err != nil || ok {
			return err
		}
		if err := c.conditions.Wait(ctx, c.name); err != nil {
			return err
		}
	}
}

// WaitPredUntil waits until pred holds or at passed. It returns the last result
// of pred.
func (c *RemoteConditionVariable) WaitPredUntil(ctx context.Context, at time.Time, pred Predicate) (bool, error) {
	for {
		ok, err := pred(ctx)
		if err != nil || ok {
			return ok, err
		}
		notified, err := c.conditions.WaitFor(ctx, c.name, untilTimeout(at))
		if err != nil {
			return false, err
		}
		if !notified {
			return pred(ctx)
		}
	}
}

// WaitPredFor is WaitPredUntil with a timeout
func (c *RemoteConditionVariable) WaitPredFor(ctx context.Context, timeout time.Duration, pred Predicate) (bool, error) {
	return c.WaitPredUntil(ctx, time.Now().Add(timeout), pred)
}

func (c *RemoteConditionVariable) NotifyOne(ctx context.Context) error {
	return c.conditions.NotifyOne(ctx, c.name)
}
func (c *RemoteConditionVariable) NotifyAll(ctx context.Context) error {
	return c.conditions.NotifyAll(ctx, c.name)
}
func (c *RemoteConditionVariable) Close(ctx context.Context) error {
	return c.conditions.Erase(ctx, c.name)
}

// RemoteBarrier is a named reusable barrier
type RemoteBarrier struct {
	barriers lockmgr.IBarriers
	name     string
	size     int64
}

// NewRemoteBarrier binds the barrier name, Size reports the effective size at
// the time of binding
func NewRemoteBarrier(ctx context.Context, locks lockmgr.ILockManager, name string, size int64) (*RemoteBarrier, error) {
	actual, err := locks.Barriers().Emplace(ctx, name, size)
	if err != nil {
		return nil, err
	}
	return &RemoteBarrier{barriers: locks.Barriers(), name: name, size: actual}, nil
}

func (b *RemoteBarrier) Name() string { return b.name }
func (b *RemoteBarrier) Size() int64  { return b.size }
func (b *RemoteBarrier) Arrive(ctx context.Context, n int64) error {
	return b.barriers.Arrive(ctx, b.name, n)
}
func (b *RemoteBarrier) ArriveAndWait(ctx context.Context) error {
	return b.barriers.ArriveAndWait(ctx, b.name)
}
func (b *RemoteBarrier) ArriveAndDrop(ctx context.Context) error {
	return b.barriers.ArriveAndDrop(ctx, b.name)
}
func (b *RemoteBarrier) Wait(ctx context.Context) error { return b.barriers.Wait(ctx, b.name) }
func (b *RemoteBarrier) WaitFor(ctx context.Context, timeout time.Duration) (bool, error) {
	return b.barriers.WaitFor(ctx, b.name, timeout)
}
func (b *RemoteBarrier) WaitUntil(ctx context.Context, at time.Time) (bool, error) {
	return b.barriers.WaitFor(ctx, b.name, untilTimeout(at))
}
func (b *RemoteBarrier) Close(ctx context.Context) error { return b.barriers.Erase(ctx, b.name) }

// RemoteLatch is a named one-shot latch
type RemoteLatch struct {
	latches lockmgr.ILatches
	name    string
}

// NewRemoteLatch binds the latch name
func NewRemoteLatch(ctx context.Context, locks lockmgr.ILockManager, name string, count int64) (*RemoteLatch, error) {
	if _, err := locks.Latches().Emplace(ctx, name, count); err != nil {
		return nil, err
	}
	return &RemoteLatch{latches: locks.Latches(), name: name}, nil
}

func (l *RemoteLatch) Name() string { return l.name }
func (l *RemoteLatch) CountDown(ctx context.Context, n int64) error {
	return l.latches.CountDown(ctx, l.name, n)
}
func (l *RemoteLatch) ArriveAndWait(ctx context.Context) error {
	return l.latches.ArriveAndWait(ctx, l.name)
}
func (l *RemoteLatch) TryWait(ctx context.Context) (bool, error) { return l.latches.TryWait(ctx, l.name) }
func (l *RemoteLatch) Wait(ctx context.Context) error            { return l.latches.Wait(ctx, l.name) }
func (l *RemoteLatch) WaitFor(ctx context.Context, timeout time.Duration) (bool, error) {
	return l.latches.WaitFor(ctx, l.name, timeout)
}
func (l *RemoteLatch) WaitUntil(ctx context.Context, at time.Time) (bool, error) {
	return l.latches.WaitFor(ctx, l.name, untilTimeout(at))
}
func (l *RemoteLatch) Close(ctx context.Context) error { return l.latches.Erase(ctx, l.name) }
