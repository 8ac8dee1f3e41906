package primitives

import (
	"errors"
	"testing"
)

func TestHookListRunOrder(t *testing.T) {
	l := NewHookList()

	var order []int
	for i := 0; i < 4; i++ {
		i := i
		if _, err := l.add(func() { order = append(order, i) }); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	// removed hooks are not run
	h, _ := l.add(func() { t.Errorf("removed hook was run") })
	l.remove(h)
	l.remove(h)

	if n := l.Run(); n != 4 {
		t.Errorf("Expected 4 hooks to run, got %d", n)
	}
	for i, v := range order {
		if v != i {
			t.Errorf("Hooks ran out of order: %v", order)
			break
		}
	}

	if n := l.Run(); n != 0 {
		t.Errorf("Second Run executed %d hook(s)", n)
	}
	if !l.Closed() {
		t.Errorf("List should be closed")
	}
	if l.Len() != 0 {
		t.Errorf("Expected an empty list, got %d", l.Len())
	}
}

func TestHookListClosed(t *testing.T) {
	l := NewHookList()
	l.Run()

	if _, err := l.add(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestHookRemovalDuringRun(t *testing.T) {
	l := NewHookList()

	// a hook may remove another hook that was already snapshotted
	var second *Hook
	ran := 0
	if _, err := l.add(func() { ran++; l.remove(second) }); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	second, _ = l.add(func() { ran++ })

	if n := l.Run(); n != 2 || ran != 2 {
		t.Errorf("Expected both hooks to run, got %d / %d", n, ran)
	}
}

func TestErrorIs(t *testing.T) {
	err := NewError(RetCNotOwner, "connection 3 does not hold the lock")
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("errors.Is should match on the code")
	}
	if errors.Is(err, ErrClosed) {
		t.Errorf("errors.Is matched a different code")
	}
	if got, want := err.Error(), "NotOwner: connection 3 does not hold the lock"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
