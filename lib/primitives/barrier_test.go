package primitives

import (
	"context"
	"errors"
	"testing"
)

func TestNewBarrierInvalidSize(t *testing.T) {
	if _, err := NewBarrier(0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestBarrierPhases(t *testing.T) {
	ctx := context.Background()
	b, err := NewBarrier(3)
	if err != nil {
		t.Fatalf("NewBarrier failed: %v", err)
	}

	for phase := 0; phase < 2; phase++ {
		var chs []<-chan error
		for i := 1; i <= 2; i++ {
			c := newCaller(ConnID(i))
			chs = append(chs, async(func() error { return b.ArriveAndWait(ctx, c) }))
		}
		eventually(t, func() bool { return b.Arrived() == 2 }, "two arrivals")
		for _, ch := range chs {
			expectBlocked(t, ch, "incomplete phase")
		}

		// the last participant completes the phase and is released as well
		if err := b.ArriveAndWait(ctx, newCaller(3)); err != nil {
			t.Fatalf("ArriveAndWait failed: %v", err)
		}
		for _, ch := range chs {
			if err := expectDone(t, ch, "ArriveAndWait"); err != nil {
				t.Fatalf("ArriveAndWait failed: %v", err)
			}
		}
		if got := b.Arrived(); got != 0 {
			t.Errorf("Phase %d: expected a reset counter, got %d", phase, got)
		}
	}
}

func TestBarrierArriveGroupsAndOvershoot(t *testing.T) {
	ctx := context.Background()
	b, _ := NewBarrier(3)
	c := newCaller(1)

	ch := async(func() error { return b.Wait(ctx, c) })
	eventually(t, func() bool { return b.cv.Waiting() == 1 }, "waiter queued")

	if err := b.Arrive(2); err != nil {
		t.Fatalf("Arrive failed: %v", err)
	}
	expectBlocked(t, ch, "Wait")

	if err := b.Arrive(2); err != nil {
		t.Fatalf("Arrive failed: %v", err)
	}
	if err := expectDone(t, ch, "Wait"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if got := b.Arrived(); got != 1 {
		t.Errorf("Expected the overshoot of 1 to carry over, got %d", got)
	}

	if err := b.Arrive(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestBarrierArriveAndDrop(t *testing.T) {
	ctx := context.Background()
	b, _ := NewBarrier(3)

	var chs []<-chan error
	for i := 1; i <= 2; i++ {
		c := newCaller(ConnID(i))
		chs = append(chs, async(func() error { return b.ArriveAndWait(ctx, c) }))
	}
	eventually(t, func() bool { return b.Arrived() == 2 }, "two arrivals")

	// the third participant leaves, two arrivals now complete the phase
	b.ArriveAndDrop()
	for _, ch := range chs {
		if err := expectDone(t, ch, "ArriveAndWait"); err != nil {
			t.Fatalf("ArriveAndWait failed: %v", err)
		}
	}
	if got := b.Size(); got != 2 {
		t.Errorf("Expected size 2, got %d", got)
	}
}

func TestBarrierWaitFor(t *testing.T) {
	ctx := context.Background()
	b, _ := NewBarrier(2)

	woken, err := b.WaitFor(ctx, newCaller(1), 0)
	if err != nil || woken {
		t.Errorf("WaitFor should time out, got %v, %v", woken, err)
	}
}

func TestBarrierDisconnect(t *testing.T) {
	ctx := context.Background()
	b, _ := NewBarrier(2)
	c := newCaller(1)

	ch := async(func() error { return b.ArriveAndWait(ctx, c) })
	eventually(t, func() bool { return b.Arrived() == 1 }, "arrival")

	c.Hooks.Run()
	if err := expectDone(t, ch, "ArriveAndWait"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
	if n := b.cv.Waiting(); n != 0 {
		t.Errorf("Disconnected waiter is still queued")
	}
}
