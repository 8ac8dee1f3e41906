package primitives

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// AccessType distinguishes exclusive from shared requests. Only the Mutex
// looks at it, all other primitives enqueue AccessWrite.
type AccessType uint8

const (
	AccessWrite AccessType = iota // exclusive
	AccessRead                    // shared
)

// --------------------------------------------------------------------------
// Request
// --------------------------------------------------------------------------

// request is the slot of one call in the wait queue of a primitive.
//
// A pending request owns a buffered channel that receives exactly one value when
// it is resolved (true = granted / woken, false = cancelled). Resolution flips
// pending to false first, so release sweeps, timers and disconnect hooks can never
// resolve the same request twice. All fields are guarded by the mutex of the
// primitive that owns the queue.
type request struct {
	caller    ConnID
	access    AccessType
	pending   bool
	done      chan bool
	elem      *list.Element // position in the global queue
	local     *list.Element // position in the local area of the caller
	hooks     *HookList
	hook      *Hook
	discarded bool
}

// resolve resumes a pending request with v. It returns false if the request was
// not pending anymore.
func (r *request) resolve(v bool) bool {
	if !r.pending {
		return false
	}
	r.pending = false
	r.done <- v
	return true
}

// --------------------------------------------------------------------------
// Wait Queue
// --------------------------------------------------------------------------

// waitQueue is the global FIFO of one primitive instance plus one sub-queue per
// connection (the local area) holding the same requests in the same order.
//
// Thread-safety: not thread-safe, guarded by the mutex of the owning primitive.
type waitQueue struct {
	queue  *list.List
	locals map[ConnID]*list.List
}

func newWaitQueue() waitQueue {
	return waitQueue{
		queue:  list.New(),
		locals: make(map[ConnID]*list.List),
	}
}

// enroll creates a request for c, registers its disconnect hook and appends it to
// the global queue and to the local area of c. Nothing is mutated if the hook
// cannot be registered (the connection is already closed).
func (q *waitQueue) enroll(c Caller, access AccessType, pending bool, onDisconnect func(*request)) (*request, error) {
	if c.Hooks == nil {
		return nil, newErrorf(RetCInvalidArgument, "caller %d has no hook list", c.ID)
	}

	r := &request{
		caller:  c.ID,
		access:  access,
		pending: pending,
		hooks:   c.Hooks,
	}
	if pending {
		r.done = make(chan bool, 1)
	}

	h, err := c.Hooks.add(func() { onDisconnect(r) })
	if err != nil {
		return nil, err
	}
	r.hook = h

	// Global queue
	r.elem = q.queue.PushBack(r)

	// Local area
	local, ok := q.locals[c.ID]
	if !ok {
		local = list.New()
		q.locals[c.ID] = local
	}
	r.local = local.PushBack(r)

	return r, nil
}

// erase removes r from both queues and drops its disconnect hook. A request is
// erased at most once, later calls are no-ops.
func (q *waitQueue) erase(r *request) {
	if r.discarded {
		return
	}
	r.discarded = true

	q.queue.Remove(r.elem)
	if local, ok := q.locals[r.caller]; ok {
		local.Remove(r.local)
		if local.Len() == 0 {
			delete(q.locals, r.caller)
		}
	}
	r.hooks.remove(r.hook)
}

// front returns the oldest request or nil
func (q *waitQueue) front() *request {
	if e := q.queue.Front(); e != nil {
		return e.Value.(*request)
	}
	return nil
}

// localFront returns the oldest request of the connection or nil
func (q *waitQueue) localFront(id ConnID) *request {
	local, ok := q.locals[id]
	if !ok {
		return nil
	}
	if e := local.Front(); e != nil {
		return e.Value.(*request)
	}
	return nil
}

// engaged reports whether the connection has a pending or granted request
func (q *waitQueue) engaged(id ConnID) bool {
	_, ok := q.locals[id]
	return ok
}

// granted returns the granted requests of the connection, oldest first
func (q *waitQueue) granted(id ConnID) []*request {
	local, ok := q.locals[id]
	if !ok {
		return nil
	}
	var res []*request
	for e := local.Front(); e != nil; e = e.Next() {
		if r := e.Value.(*request); !r.pending {
			res = append(res, r)
		}
	}
	return res
}

// snapshot returns all requests in FIFO order
func (q *waitQueue) snapshot() []*request {
	res := make([]*request, 0, q.queue.Len())
	for e := q.queue.Front(); e != nil; e = e.Next() {
		res = append(res, e.Value.(*request))
	}
	return res
}

func (q *waitQueue) len() int {
	return q.queue.Len()
}

// --------------------------------------------------------------------------
// Suspension
// --------------------------------------------------------------------------

// await blocks until the pending request r is resolved. A negative timeout waits
// forever. If the timeout elapses or ctx is done while r is still pending, cancel
// is called with mu held and r counts as not granted. A grant that raced with the
// timer stands.
//
// It returns true if r was granted. A request cancelled by the disconnect of its
// connection yields ErrClosed, an aborted context yields ctx.Err().
func await(ctx context.Context, mu sync.Locker, r *request, timeout time.Duration, cancel func(*request)) (bool, error) {
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	// abort cancels r if it is still pending, otherwise it collects the result
	abort := func(cause error) (bool, error) {
		mu.Lock()
		if r.pending {
			cancel(r)
			mu.Unlock()
			return false, cause
		}
		mu.Unlock()
		return settle(<-r.done)
	}

	select {
	case ok := <-r.done:
		return settle(ok)
	case <-expired:
		return abort(nil)
	case <-ctx.Done():
		return abort(ctx.Err())
	}
}

// settle converts the value a request was resolved with into a result
func settle(granted bool) (bool, error) {
	if !granted {
		return false, newErrorf(RetCClosed, "the request was cancelled because the connection closed")
	}
	return true, nil
}
