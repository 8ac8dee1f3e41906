// Package primitives implements the synchronization engines of the lock server.
// Every engine instance is shared by many connections and keeps track of which
// connection holds or waits for what, so that everything a connection owns can be
// released when it goes away.
//
// Key Components:
//
//   - Mutex: Fair read/write lock. Requests are granted in FIFO order, a run of
//     shared requests at the front of the queue is granted as one batch, a writer
//     is always granted alone.
//
//   - Semaphore: Counting semaphore with a fixed capacity. A connection can only
//     release slots it acquired itself.
//
//   - ConditionVariable: Queue of waiters woken by NotifyOne / NotifyAll.
//
//   - Barrier / Latch: Counters on top of a ConditionVariable. The barrier is
//     reusable, the latch opens once and stays open.
//
//   - HookList: Ordered disconnect hooks of one connection. Every request that is
//     queued (pending or granted) registers one hook. Running the list cancels all
//     pending requests and releases all granted ones of the connection.
//
// Usage:
//
//	hooks := primitives.NewHookList()
//	c := primitives.Caller{ID: 1, Hooks: hooks}
//
//	m := primitives.NewMutex()
//	if err := m.Lock(ctx, c); err != nil {
//	    return err
//	}
//	defer m.Unlock(c)
//
//	// on disconnect
//	hooks.Run()
//
// Blocking methods take a context. A cancelled context behaves like an elapsed
// timeout: the pending request is removed from the queue, but a grant that
// happened first stands and is reported as success.
package primitives
