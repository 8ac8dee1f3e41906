package primitives

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLatchCountDown(t *testing.T) {
	ctx := context.Background()
	l, err := NewLatch(3)
	if err != nil {
		t.Fatalf("NewLatch failed: %v", err)
	}

	var chs []<-chan error
	for i := 1; i <= 3; i++ {
		c := newCaller(ConnID(i))
		chs = append(chs, async(func() error { return l.Wait(ctx, c) }))
	}
	eventually(t, func() bool { return l.cv.Waiting() == 3 }, "waiters queued")

	if err := l.CountDown(2); err != nil {
		t.Fatalf("CountDown failed: %v", err)
	}
	if l.TryWait() {
		t.Errorf("Latch opened early")
	}
	expectBlocked(t, chs[0], "Wait")

	// overshooting opens the latch without going below zero
	if err := l.CountDown(5); err != nil {
		t.Fatalf("CountDown failed: %v", err)
	}
	for _, ch := range chs {
		if err := expectDone(t, ch, "Wait"); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	if got := l.Count(); got != 0 {
		t.Errorf("Expected count 0, got %d", got)
	}
	if !l.TryWait() {
		t.Errorf("Latch should be open")
	}

	// an open latch stays open
	if err := l.CountDown(1); err != nil {
		t.Errorf("CountDown on an open latch failed: %v", err)
	}
	if got := l.Count(); got != 0 {
		t.Errorf("Expected count 0, got %d", got)
	}
	if err := l.Wait(ctx, newCaller(9)); err != nil {
		t.Errorf("Wait on an open latch failed: %v", err)
	}
	if ok, err := l.WaitFor(ctx, newCaller(9), 0); err != nil || !ok {
		t.Errorf("WaitFor on an open latch failed: %v, %v", ok, err)
	}
}

func TestLatchArriveAndWait(t *testing.T) {
	ctx := context.Background()
	l, _ := NewLatch(2)

	ch := async(func() error { return l.ArriveAndWait(ctx, newCaller(1)) })
	eventually(t, func() bool { return l.Count() == 1 }, "first arrival")
	expectBlocked(t, ch, "ArriveAndWait")

	if err := l.ArriveAndWait(ctx, newCaller(2)); err != nil {
		t.Fatalf("ArriveAndWait failed: %v", err)
	}
	if err := expectDone(t, ch, "ArriveAndWait"); err != nil {
		t.Fatalf("ArriveAndWait failed: %v", err)
	}
}

func TestLatchWaitFor(t *testing.T) {
	ctx := context.Background()
	l, _ := NewLatch(1)
	c := newCaller(1)

	start := time.Now()
	ok, err := l.WaitFor(ctx, c, 30*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("WaitFor should time out, got %v, %v", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("WaitFor returned too early after %v", elapsed)
	}
	if n := c.Hooks.Len(); n != 0 {
		t.Errorf("Timed out waiter left %d hook(s)", n)
	}
}

func TestLatchInvalidArguments(t *testing.T) {
	if _, err := NewLatch(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
	l, err := NewLatch(0)
	if err != nil {
		t.Fatalf("NewLatch(0) failed: %v", err)
	}
	if !l.TryWait() {
		t.Errorf("A latch with count 0 should be open")
	}
	if err := l.CountDown(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestLatchClosedCallerKeepsCount(t *testing.T) {
	ctx := context.Background()
	a := newCaller(1)
	a.Hooks.Run()

	tests := map[string]int64{
		"stays closed": 3,
		"would open":   1,
	}
	for name, count := range tests {
		t.Run(name, func(t *testing.T) {
			l, err := NewLatch(count)
			if err != nil {
				t.Fatalf("NewLatch failed: %v", err)
			}
			if err := l.ArriveAndWait(ctx, a); !errors.Is(err, ErrClosed) {
				t.Errorf("Expected ErrClosed, got %v", err)
			}
			if got := l.Count(); got != count {
				t.Errorf("Expected the count to stay %d, got %d", count, got)
			}
		})
	}
}
