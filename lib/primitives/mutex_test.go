package primitives

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMutexExclusive(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()
	a, b := newCaller(1), newCaller(2)

	if err := m.Lock(ctx, a); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if ok, err := m.TryLock(b); err != nil || ok {
		t.Fatalf("TryLock should fail while locked, got %v, %v", ok, err)
	}
	if ok, err := m.TryLockShared(b); err != nil || ok {
		t.Fatalf("TryLockShared should fail while locked, got %v, %v", ok, err)
	}

	ch := async(func() error { return m.Lock(ctx, b) })
	expectBlocked(t, ch, "second Lock")

	if err := m.Unlock(a); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := expectDone(t, ch, "second Lock"); err != nil {
		t.Fatalf("second Lock failed: %v", err)
	}
	if err := m.Unlock(b); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	if s := m.State(); s != (MutexState{}) {
		t.Errorf("Expected a free mutex, got %+v", s)
	}
}

func TestMutexFIFO(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()
	owner := newCaller(0)

	if err := m.Lock(ctx, owner); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	var mu sync.Mutex
	var order []ConnID
	var wg sync.WaitGroup

	const waiters = 5
	for i := 1; i <= waiters; i++ {
		c := newCaller(ConnID(i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Lock(ctx, c); err != nil {
				t.Errorf("Lock of %d failed: %v", c.ID, err)
				return
			}
			mu.Lock()
			order = append(order, c.ID)
			mu.Unlock()
			if err := m.Unlock(c); err != nil {
				t.Errorf("Unlock of %d failed: %v", c.ID, err)
			}
		}()
		// wait until the waiter is queued to fix the arrival order
		eventually(t, func() bool { return m.State().Queued == i+1 }, "waiter queued")
	}

	if err := m.Unlock(owner); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	wg.Wait()

	if len(order) != waiters {
		t.Fatalf("Expected %d grants, got %d", waiters, len(order))
	}
	for i, id := range order {
		if id != ConnID(i+1) {
			t.Errorf("Expected grant %d to go to %d, got %d (order %v)", i, i+1, id, order)
		}
	}
}

func TestMutexSharedBatch(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()
	w1 := newCaller(1)

	if err := m.Lock(ctx, w1); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	// queue: W1(granted) R2 R3 R4 W5 R6
	readers := []Caller{newCaller(2), newCaller(3), newCaller(4)}
	var readerCh []<-chan error
	for i, r := range readers {
		r := r
		readerCh = append(readerCh, async(func() error { return m.LockShared(ctx, r) }))
		eventually(t, func() bool { return m.State().Queued == i+2 }, "reader queued")
	}
	w5 := newCaller(5)
	w5Ch := async(func() error { return m.Lock(ctx, w5) })
	eventually(t, func() bool { return m.State().Queued == 5 }, "writer queued")
	r6 := newCaller(6)
	r6Ch := async(func() error { return m.LockShared(ctx, r6) })
	eventually(t, func() bool { return m.State().Queued == 6 }, "late reader queued")

	if err := m.Unlock(w1); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	// the three readers are released as one batch
	for i, ch := range readerCh {
		if err := expectDone(t, ch, "LockShared"); err != nil {
			t.Fatalf("LockShared %d failed: %v", i, err)
		}
	}
	// the writer and the reader behind it keep waiting
	expectBlocked(t, w5Ch, "queued writer")
	expectBlocked(t, r6Ch, "reader behind writer")

	// a reader may not unlock the writer's mode
	if err := m.Unlock(readers[0]); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}

	// release the readers out of order
	for _, i := range []int{1, 0, 2} {
		if err := m.UnlockShared(readers[i]); err != nil {
			t.Fatalf("UnlockShared failed: %v", err)
		}
	}

	if err := expectDone(t, w5Ch, "queued writer"); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	expectBlocked(t, r6Ch, "reader behind writer")

	if err := m.Unlock(w5); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := expectDone(t, r6Ch, "reader behind writer"); err != nil {
		t.Fatalf("LockShared failed: %v", err)
	}
	if err := m.UnlockShared(r6); err != nil {
		t.Fatalf("UnlockShared failed: %v", err)
	}
	if s := m.State(); s != (MutexState{}) {
		t.Errorf("Expected a free mutex, got %+v", s)
	}
}

func TestMutexUsageErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()
	a, b := newCaller(1), newCaller(2)

	tests := map[string]func() error{
		"unlock free":        func() error { return m.Unlock(a) },
		"unlock_shared free": func() error { return m.UnlockShared(a) },
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			if err := fn(); !errors.Is(err, ErrNotOwner) {
				t.Errorf("Expected ErrNotOwner, got %v", err)
			}
		})
	}

	if err := m.Lock(ctx, a); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	before := m.State()

	tests = map[string]func() error{
		"unlock by other":         func() error { return m.Unlock(b) },
		"unlock_shared of writer": func() error { return m.UnlockShared(a) },
		"unlock_shared by other":  func() error { return m.UnlockShared(b) },
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			if err := fn(); !errors.Is(err, ErrNotOwner) {
				t.Errorf("Expected ErrNotOwner, got %v", err)
			}
			if s := m.State(); s != before {
				t.Errorf("State changed by a rejected call: %+v -> %+v", before, s)
			}
		})
	}

	// b waits for the lock, its pending request does not make it an owner
	ch := async(func() error { return m.Lock(ctx, b) })
	eventually(t, func() bool { return m.State().Queued == 2 }, "waiter queued")
	if err := m.Unlock(b); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner for a pending caller, got %v", err)
	}

	if err := m.Unlock(a); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := expectDone(t, ch, "Lock"); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
}

func TestMutexTryLockForTimeout(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()
	a, b := newCaller(1), newCaller(2)

	if err := m.Lock(ctx, a); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	start := time.Now()
	ok, err := m.TryLockFor(ctx, b, 50*time.Millisecond)
	elapsed := time.Since(start)
	if err != nil || ok {
		t.Fatalf("TryLockFor should time out, got %v, %v", ok, err)
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("TryLockFor returned too early after %v", elapsed)
	}

	if s := m.State(); s.Writing != 1 || s.Queued != 1 {
		t.Errorf("Timed out request was not removed: %+v", s)
	}
	if n := b.Hooks.Len(); n != 0 {
		t.Errorf("Timed out request left %d hook(s)", n)
	}

	// free lock: granted without waiting
	if err := m.Unlock(a); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if ok, err := m.TryLockSharedFor(ctx, b, 0); err != nil || !ok {
		t.Fatalf("TryLockSharedFor on a free mutex failed: %v, %v", ok, err)
	}
}

func TestMutexCancelledWriterUnblocksReaders(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()
	r1, w, r2 := newCaller(1), newCaller(2), newCaller(3)

	if err := m.LockShared(ctx, r1); err != nil {
		t.Fatalf("LockShared failed: %v", err)
	}

	wCh := make(chan bool, 1)
	go func() {
		ok, _ := m.TryLockFor(ctx, w, 100*time.Millisecond)
		wCh <- ok
	}()
	eventually(t, func() bool { return m.State().Queued == 2 }, "writer queued")

	r2Ch := async(func() error { return m.LockShared(ctx, r2) })
	expectBlocked(t, r2Ch, "reader behind writer")

	// the writer times out, which exposes the reader behind it
	if ok := <-wCh; ok {
		t.Fatalf("TryLockFor should time out")
	}
	if err := expectDone(t, r2Ch, "reader behind writer"); err != nil {
		t.Fatalf("LockShared failed: %v", err)
	}
	if s := m.State(); s.Reading != 2 || s.Writing != 0 {
		t.Errorf("Expected two readers, got %+v", s)
	}
}

func TestMutexContextCancel(t *testing.T) {
	m := NewMutex()
	a, b := newCaller(1), newCaller(2)

	if err := m.Lock(context.Background(), a); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := async(func() error { return m.Lock(ctx, b) })
	eventually(t, func() bool { return m.State().Queued == 2 }, "waiter queued")
	cancel()

	if err := expectDone(t, ch, "cancelled Lock"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if s := m.State(); s.Writing != 1 || s.Queued != 1 {
		t.Errorf("Cancelled request was not removed: %+v", s)
	}
}

func TestMutexDisconnectReleasesLock(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()
	a, b := newCaller(1), newCaller(2)

	if err := m.Lock(ctx, a); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	ch := async(func() error { return m.Lock(ctx, b) })
	expectBlocked(t, ch, "Lock of b")

	// a goes away without unlocking
	if n := a.Hooks.Run(); n != 1 {
		t.Errorf("Expected 1 hook to run, got %d", n)
	}
	if err := expectDone(t, ch, "Lock of b"); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	// teardown is idempotent
	if n := a.Hooks.Run(); n != 0 {
		t.Errorf("Second teardown ran %d hook(s)", n)
	}
	if s := m.State(); s.Writing != 1 || s.Queued != 1 {
		t.Errorf("Expected b to be the only holder, got %+v", s)
	}

	// a closed connection cannot queue new requests
	if err := m.Lock(ctx, a); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if ok, err := m.TryLockShared(a); ok || !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v, %v", ok, err)
	}
}

func TestMutexDisconnectWhilePending(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()
	a, b, c := newCaller(1), newCaller(2), newCaller(3)

	if err := m.LockShared(ctx, a); err != nil {
		t.Fatalf("LockShared failed: %v", err)
	}
	bCh := async(func() error { return m.Lock(ctx, b) })
	eventually(t, func() bool { return m.State().Queued == 2 }, "writer queued")
	cCh := async(func() error { return m.LockShared(ctx, c) })
	eventually(t, func() bool { return m.State().Queued == 3 }, "reader queued")

	b.Hooks.Run()

	if err := expectDone(t, bCh, "Lock of b"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
	if err := expectDone(t, cCh, "LockShared of c"); err != nil {
		t.Fatalf("LockShared failed: %v", err)
	}
	if s := m.State(); s.Writing != 0 || s.Reading != 2 {
		t.Errorf("Unexpected state %+v", s)
	}
}

func TestMutexDisconnectReleasesSharedLocks(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()
	a, b := newCaller(1), newCaller(2)

	// a holds the shared lock twice
	for i := 0; i < 2; i++ {
		if err := m.LockShared(ctx, a); err != nil {
			t.Fatalf("LockShared failed: %v", err)
		}
	}
	ch := async(func() error { return m.Lock(ctx, b) })
	expectBlocked(t, ch, "Lock of b")

	if n := a.Hooks.Run(); n != 2 {
		t.Errorf("Expected 2 hooks to run, got %d", n)
	}
	if err := expectDone(t, ch, "Lock of b"); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
}

func TestMutexConcurrentExclusion(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()

	var writers, readers, violations atomic.Int32
	var wg sync.WaitGroup

	const workers = 8
	const rounds = 200
	for i := 0; i < workers; i++ {
		c := newCaller(ConnID(i))
		shared := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				if shared {
					if err := m.LockShared(ctx, c); err != nil {
						t.Errorf("LockShared failed: %v", err)
						return
					}
					readers.Add(1)
					if writers.Load() != 0 {
						violations.Add(1)
					}
					readers.Add(-1)
					if err := m.UnlockShared(c); err != nil {
						t.Errorf("UnlockShared failed: %v", err)
						return
					}
					continue
				}

				if err := m.Lock(ctx, c); err != nil {
					t.Errorf("Lock failed: %v", err)
					return
				}
				if writers.Add(1) != 1 || readers.Load() != 0 {
					violations.Add(1)
				}
				writers.Add(-1)
				if err := m.Unlock(c); err != nil {
					t.Errorf("Unlock failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if v := violations.Load(); v != 0 {
		t.Errorf("Detected %d exclusion violation(s)", v)
	}
	if s := m.State(); s != (MutexState{}) {
		t.Errorf("Expected a free mutex, got %+v", s)
	}
}

func TestMutexTryLockClosedCaller(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()
	a, b := newCaller(1), newCaller(2)
	a.Hooks.Run()

	// free mutex
	if ok, err := m.TryLock(a); ok || !errors.Is(err, ErrClosed) {
		t.Errorf("Free mutex: expected ErrClosed, got %v, %v", ok, err)
	}

	// busy mutex
	if err := m.Lock(ctx, b); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if ok, err := m.TryLock(a); ok || !errors.Is(err, ErrClosed) {
		t.Errorf("Busy mutex: expected ErrClosed, got %v, %v", ok, err)
	}
	if ok, err := m.TryLockShared(a); ok || !errors.Is(err, ErrClosed) {
		t.Errorf("Busy mutex: expected ErrClosed, got %v, %v", ok, err)
	}
	if s := m.State(); s.Writing != 1 || s.Reading != 0 || s.Queued != 1 {
		t.Errorf("Rejected calls changed the mutex: %+v", s)
	}
}

func TestMutexEngaged(t *testing.T) {
	ctx := context.Background()
	m := NewMutex()
	a, b := newCaller(1), newCaller(2)

	if m.Engaged(a.ID) {
		t.Errorf("a should not be engaged yet")
	}
	if err := m.Lock(ctx, a); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	ch := async(func() error { return m.Lock(ctx, b) })
	eventually(t, func() bool { return m.Engaged(b.ID) }, "b queued")
	if !m.Engaged(a.ID) {
		t.Errorf("a holds the mutex and should be engaged")
	}

	if err := m.Unlock(a); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := expectDone(t, ch, "Lock of b"); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if m.Engaged(a.ID) {
		t.Errorf("a released the mutex and should not be engaged")
	}
}
