package primitives

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConditionVariableNotify(t *testing.T) {
	ctx := context.Background()
	cv := NewConditionVariable()

	if n := cv.NotifyOne(); n != 0 {
		t.Errorf("NotifyOne without waiters woke %d", n)
	}

	const waiters = 5
	woken := make(chan ConnID, waiters)
	for i := 1; i <= waiters; i++ {
		c := newCaller(ConnID(i))
		go func() {
			if err := cv.Wait(ctx, c); err != nil {
				t.Errorf("Wait failed: %v", err)
				return
			}
			woken <- c.ID
		}()
		eventually(t, func() bool { return cv.Waiting() == i }, "waiter queued")
	}

	// notify_one wakes the oldest waiter only
	if n := cv.NotifyOne(); n != 1 {
		t.Fatalf("NotifyOne woke %d waiters", n)
	}
	select {
	case id := <-woken:
		if id != 1 {
			t.Errorf("Expected waiter 1 to be woken, got %d", id)
		}
	case <-time.After(settleTimeout):
		t.Fatalf("No waiter was woken")
	}
	select {
	case id := <-woken:
		t.Fatalf("Unexpected wakeup of %d", id)
	case <-time.After(blockedWindow):
	}

	// notify_all wakes the rest as one batch
	if n := cv.NotifyAll(); n != waiters-1 {
		t.Errorf("NotifyAll woke %d waiters, expected %d", n, waiters-1)
	}
	for i := 0; i < waiters-1; i++ {
		select {
		case <-woken:
		case <-time.After(settleTimeout):
			t.Fatalf("Only %d of %d waiters were woken", i, waiters-1)
		}
	}
	if n := cv.Waiting(); n != 0 {
		t.Errorf("Expected an empty queue, got %d waiters", n)
	}
}

func TestConditionVariableNotifyAllBatchIsFixed(t *testing.T) {
	ctx := context.Background()
	cv := NewConditionVariable()

	// every woken waiter waits again right away, the batch must not include them
	const waiters = 4
	rounds := make(chan struct{}, 2*waiters)
	for i := 1; i <= waiters; i++ {
		c := newCaller(ConnID(i))
		go func() {
			for j := 0; j < 2; j++ {
				if err := cv.Wait(ctx, c); err != nil {
					return
				}
				rounds <- struct{}{}
			}
		}()
		eventually(t, func() bool { return cv.Waiting() == i }, "waiter queued")
	}

	if n := cv.NotifyAll(); n != waiters {
		t.Fatalf("NotifyAll woke %d waiters, expected %d", n, waiters)
	}
	for i := 0; i < waiters; i++ {
		<-rounds
	}
	eventually(t, func() bool { return cv.Waiting() == waiters }, "waiters queued again")
	if n := cv.NotifyAll(); n != waiters {
		t.Fatalf("Second NotifyAll woke %d waiters, expected %d", n, waiters)
	}
}

func TestConditionVariableWaitFor(t *testing.T) {
	ctx := context.Background()
	cv := NewConditionVariable()
	c := newCaller(1)

	start := time.Now()
	woken, err := cv.WaitFor(ctx, c, 30*time.Millisecond)
	if err != nil || woken {
		t.Fatalf("WaitFor should time out, got %v, %v", woken, err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("WaitFor returned too early after %v", elapsed)
	}
	if n := cv.Waiting(); n != 0 {
		t.Errorf("Timed out waiter is still queued (%d)", n)
	}

	done := make(chan bool, 1)
	go func() {
		woken, _ := cv.WaitFor(ctx, c, time.Minute)
		done <- woken
	}()
	eventually(t, func() bool { return cv.Waiting() == 1 }, "waiter queued")
	cv.NotifyAll()
	select {
	case woken := <-done:
		if !woken {
			t.Errorf("Notified WaitFor reported a timeout")
		}
	case <-time.After(settleTimeout):
		t.Fatalf("WaitFor was not woken")
	}
}

func TestConditionVariableDisconnect(t *testing.T) {
	ctx := context.Background()
	cv := NewConditionVariable()
	a, b := newCaller(1), newCaller(2)

	aCh := async(func() error { return cv.Wait(ctx, a) })
	eventually(t, func() bool { return cv.Waiting() == 1 }, "a queued")
	bCh := async(func() error { return cv.Wait(ctx, b) })
	eventually(t, func() bool { return cv.Waiting() == 2 }, "b queued")

	a.Hooks.Run()
	if err := expectDone(t, aCh, "Wait of a"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}

	// the next notify goes to b
	if n := cv.NotifyOne(); n != 1 {
		t.Fatalf("NotifyOne woke %d waiters", n)
	}
	if err := expectDone(t, bCh, "Wait of b"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
}
