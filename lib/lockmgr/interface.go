package lockmgr

import (
	"context"
	"time"
)

// ILockManager is the view of one connection onto a lock namespace. It is
// implemented by the server side Session and by the RPC client, so code written
// against it runs unchanged in process and over the network.
//
// Every primitive has to be bound with Emplace before it can be used by the
// connection. Using a name the connection never bound (or already erased) fails
// with primitives.ErrNotBound, even if other connections still use the name.
type ILockManager interface {
	Mutexes() IMutexes
	Semaphores() ISemaphores
	ConditionVariables() IConditionVariables
	Barriers() IBarriers
	Latches() ILatches

	// Close releases everything the connection holds or waits for and unbinds all
	// names. Calling Close more than once is a no-op.
	Close() error
}

// IMutexes gives access to the named read/write locks.
type IMutexes interface {
	// Emplace creates the mutex if needed and binds it to the connection.
	Emplace(ctx context.Context, name string) error
	// Erase unbinds the mutex. The mutex is deleted once no connection is bound.
	Erase(ctx context.Context, name string) error

	// Lock blocks until the mutex is held exclusively.
	Lock(ctx context.Context, name string) error
	// TryLock acquires the exclusive lock only if that is possible right away.
	TryLock(ctx context.Context, name string) (bool, error)
	// TryLockFor waits at most timeout for the exclusive lock.
	TryLockFor(ctx context.Context, name string, timeout time.Duration) (bool, error)
	// Unlock releases the exclusive lock. It fails with primitives.ErrNotOwner if the
	// connection does not hold it.
	Unlock(ctx context.Context, name string) error

	// LockShared blocks until the mutex is held in shared mode.
	LockShared(ctx context.Context, name string) error
	// TryLockShared acquires a shared lock only if that is possible right away.
	TryLockShared(ctx context.Context, name string) (bool, error)
	// TryLockSharedFor waits at most timeout for a shared lock.
	TryLockSharedFor(ctx context.Context, name string, timeout time.Duration) (bool, error)
	// UnlockShared releases one shared lock of the connection.
	UnlockShared(ctx context.Context, name string) error
}

// ISemaphores gives access to the named counting semaphores.
type ISemaphores interface {
	// Emplace creates the semaphore with the given capacity if needed and binds it.
	// It returns the effective capacity, which differs from the requested one if
	// the semaphore already existed.
	Emplace(ctx context.Context, name string, capacity int64) (int64, error)
	Erase(ctx context.Context, name string) error

	Acquire(ctx context.Context, name string) error
	TryAcquire(ctx context.Context, name string) (bool, error)
	TryAcquireFor(ctx context.Context, name string, timeout time.Duration) (bool, error)
	// Release gives back n slots. It fails with primitives.ErrOutOfRange if n is
	// not between 1 and the number of slots the connection holds.
	Release(ctx context.Context, name string, n int64) error
}

// IConditionVariables gives access to the named condition variables.
type IConditionVariables interface {
	Emplace(ctx context.Context, name string) error
	Erase(ctx context.Context, name string) error

	Wait(ctx context.Context, name string) error
	// WaitFor returns true if the connection was notified and false if timeout elapsed.
	WaitFor(ctx context.Context, name string, timeout time.Duration) (bool, error)
	NotifyOne(ctx context.Context, name string) error
	NotifyAll(ctx context.Context, name string) error
}

// IBarriers gives access to the named reusable barriers.
type IBarriers interface {
	// Emplace returns the effective size of the barrier.
	Emplace(ctx context.Context, name string, size int64) (int64, error)
	Erase(ctx context.Context, name string) error

	Arrive(ctx context.Context, name string, n int64) error
	ArriveAndWait(ctx context.Context, name string) error
	ArriveAndDrop(ctx context.Context, name string) error
	Wait(ctx context.Context, name string) error
	WaitFor(ctx context.Context, name string, timeout time.Duration) (bool, error)
}

// ILatches gives access to the named one-shot latches.
type ILatches interface {
	// Emplace returns the remaining count of the latch.
	Emplace(ctx context.Context, name string, count int64) (int64, error)
	Erase(ctx context.Context, name string) error

	CountDown(ctx context.Context, name string, n int64) error
	ArriveAndWait(ctx context.Context, name string) error
	TryWait(ctx context.Context, name string) (bool, error)
	Wait(ctx context.Context, name string) error
	WaitFor(ctx context.Context, name string, timeout time.Duration) (bool, error)
}
