package primitives

import (
	"testing"
	"time"
)

const (
	settleTimeout = 2 * time.Second
	blockedWindow = 50 * time.Millisecond
)

// newCaller creates a caller with its own hook list
func newCaller(id ConnID) Caller {
	return Caller{ID: id, Hooks: NewHookList()}
}

// async runs fn in a goroutine and returns a channel receiving its error
func async(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

// expectDone waits for ch and returns the received error
func expectDone(t *testing.T, ch <-chan error, what string) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(settleTimeout):
		t.Fatalf("%s did not complete in time", what)
		return nil
	}
}

// expectBlocked fails if ch receives a value within blockedWindow
func expectBlocked(t *testing.T, ch <-chan error, what string) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("%s should block, but returned %v", what, err)
	case <-time.After(blockedWindow):
	}
}

// eventually polls cond until it holds or settleTimeout elapsed
func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(settleTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time: %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
