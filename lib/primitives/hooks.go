package primitives

import (
	"container/list"
	"sync"
)

// ConnID is the stable identity of a client connection.
type ConnID uint64

// Caller identifies the connection on whose behalf an operation runs.
// Every pending or granted request the caller creates registers exactly one
// disconnect hook in Hooks.
type Caller struct {
	ID    ConnID
	Hooks *HookList
}

// closedErr returns ErrClosed once the hook list of c was run. Engines call it
// before any state change that does not enroll a request.
func (c Caller) closedErr() error {
	if c.Hooks != nil && c.Hooks.Closed() {
		return newErrorf(RetCClosed, "the connection is closed")
	}
	return nil
}

// Hook is the cleanup callback of a single request. It is removed from its list
// when the request completes normally, or run once when the connection goes away.
type Hook struct {
	fn     func()
	elem   *list.Element
	erased bool
}

// HookList is the ordered list of disconnect hooks of one connection.
//
// Thread-safety: all methods are safe for concurrent use. Engines call add and
// remove while holding their own mutex, Run never holds the list lock while a
// hook executes, so the lock order is always engine -> hook list.
type HookList struct {
	mu     sync.Mutex
	hooks  *list.List
	closed bool
}

// NewHookList creates an empty, open hook list
func NewHookList() *HookList {
	return &HookList{hooks: list.New()}
}

// add registers fn. It fails with ErrClosed once Run was called, which keeps a
// request that races with the teardown from being enqueued without a hook.
func (l *HookList) add(fn func()) (*Hook, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, newErrorf(RetCClosed, "the connection is closed")
	}

	h := &Hook{fn: fn}
	h.elem = l.hooks.PushBack(h)
	return h, nil
}

// remove erases h from the list. Calling it for an already erased hook is a no-op.
func (l *HookList) remove(h *Hook) {
	if h == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if h.erased {
		return
	}
	h.erased = true
	l.hooks.Remove(h.elem)
}

// Run closes the list and invokes every registered hook in insertion order.
// It returns the number of hooks that were run. A second call is a no-op and
// returns 0.
func (l *HookList) Run() int {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0
	}
	l.closed = true

	// Snapshot and clear, the hooks themselves are executed without the lock
	pending := make([]*Hook, 0, l.hooks.Len())
	for e := l.hooks.Front(); e != nil; e = e.Next() {
		h := e.Value.(*Hook)
		h.erased = true
		pending = append(pending, h)
	}
	l.hooks.Init()
	l.mu.Unlock()

	for _, h := range pending {
		h.fn()
	}
	return len(pending)
}

// Len returns the number of hooks currently registered
func (l *HookList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hooks.Len()
}

// Closed reports whether Run was already called
func (l *HookList) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
