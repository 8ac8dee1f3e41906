package client

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dSync/lib/lockmgr"
	"github.com/ValentinKolb/dSync/lib/primitives"
	"sync/atomic"
	"testing"
	"time"
)

func TestRemoteSemaphoreKeepsCapacity(t *testing.T) {
	ctx := context.Background()
	g := lockmgr.NewGroup(t.Name())
	a, b := g.NewSession(1), g.NewSession(2)
	defer a.Close()
	defer b.Close()

	first, err := NewRemoteSemaphore(ctx, a, "sem", 2)
	if err != nil {
		t.Fatalf("NewRemoteSemaphore failed: %v", err)
	}
	second, err := NewRemoteSemaphore(ctx, b, "sem", 10)
	if err != nil {
		t.Fatalf("NewRemoteSemaphore failed: %v", err)
	}
	if first.Max() != 2 || second.Max() != 2 {
		t.Errorf("Expected capacity 2 for both proxies, got %d and %d", first.Max(), second.Max())
	}

	for i := 0; i < 2; i++ {
		if ok, err := second.TryAcquire(ctx); err != nil || !ok {
			t.Fatalf("TryAcquire %d failed: %v, %v", i, ok, err)
		}
	}
	if ok, err := first.TryAcquireUntil(ctx, time.Now().Add(-time.Second)); err != nil || ok {
		t.Errorf("TryAcquireUntil with a past deadline should fail right away, got %v, %v", ok, err)
	}
}

func TestRemoteMutexTryLockUntil(t *testing.T) {
	ctx := context.Background()
	g := lockmgr.NewGroup(t.Name())
	a, b := g.NewSession(1), g.NewSession(2)
	defer a.Close()
	defer b.Close()

	ma, err := NewRemoteMutex(ctx, a, "m")
	if err != nil {
		t.Fatalf("NewRemoteMutex failed: %v", err)
	}
	mb, err := NewRemoteMutex(ctx, b, "m")
	if err != nil {
		t.Fatalf("NewRemoteMutex failed: %v", err)
	}

	if err := ma.Lock(ctx); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	start := time.Now()
	ok, err := mb.TryLockUntil(ctx, start.Add(100*time.Millisecond))
	if err != nil || ok {
		t.Fatalf("TryLockUntil should time out, got %v, %v", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("TryLockUntil returned too early after %s", elapsed)
	}

	if err := mb.Unlock(ctx); !errors.Is(err, primitives.ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if err := ma.Unlock(ctx); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if ok, err := mb.TryLockShared(ctx); err != nil || !ok {
		t.Errorf("TryLockShared failed: %v, %v", ok, err)
	}
}

func TestRemoteConditionVariablePredicate(t *testing.T) {
	ctx := context.Background()
	g := lockmgr.NewGroup(t.Name())
	a, b := g.NewSession(1), g.NewSession(2)
	defer a.Close()
	defer b.Close()

	waiter, err := NewRemoteConditionVariable(ctx, a, "cv")
	if err != nil {
		t.Fatalf("NewRemoteConditionVariable failed: %v", err)
	}
	notifier, err := NewRemoteConditionVariable(ctx, b, "cv")
	if err != nil {
		t.Fatalf("NewRemoteConditionVariable failed: %v", err)
	}

	var value atomic.Int32
	var checks atomic.Int32
	pred := func(context.Context) (bool, error) {
		checks.Add(1)
		return value.Load() >= 2, nil
	}

	done := make(chan error, 1)
	go func() { done <- waiter.WaitPred(ctx, pred) }()

	// notify until the waiter saw the value, each notification wakes it once
	deadline := time.Now().Add(2 * time.Second)
	for step := int32(1); ; {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("WaitPred failed: %v", err)
			}
			if value.Load() < 2 {
				t.Fatalf("WaitPred returned before the predicate held")
			}
			if checks.Load() < 2 {
				t.Errorf("Expected the predicate to be checked at least twice, got %d", checks.Load())
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("WaitPred did not return in time")
		}
		if step <= 2 {
			value.Store(step)
			step++
		}
		if err := notifier.NotifyAll(ctx); err != nil {
			t.Fatalf("NotifyAll failed: %v", err)
		}
	}
}

func TestRemoteConditionVariablePredicateTimeout(t *testing.T) {
	ctx := context.Background()
	g := lockmgr.NewGroup(t.Name())
	s := g.NewSession(1)
	defer s.Close()

	cv, err := NewRemoteConditionVariable(ctx, s, "cv")
	if err != nil {
		t.Fatalf("NewRemoteConditionVariable failed: %v", err)
	}

	never := func(context.Context) (bool, error) { return false, nil }
	ok, err := cv.WaitPredFor(ctx, 50*time.Millisecond, never)
	if err != nil || ok {
		t.Errorf("Expected false after the timeout, got %v, %v", ok, err)
	}

	always := func(context.Context) (bool, error) { return true, nil }
	if ok, err := cv.WaitPredFor(ctx, time.Hour, always); err != nil || !ok {
		t.Errorf("Expected true without waiting, got %v, %v", ok, err)
	}
}

func TestRemoteBarrierAndLatch(t *testing.T) {
	ctx := context.Background()
	g := lockmgr.NewGroup(t.Name())
	a, b := g.NewSession(1), g.NewSession(2)
	defer a.Close()
	defer b.Close()

	ba, err := NewRemoteBarrier(ctx, a, "b", 2)
	if err != nil {
		t.Fatalf("NewRemoteBarrier failed: %v", err)
	}
	bb, err := NewRemoteBarrier(ctx, b, "b", 5)
	if err != nil {
		t.Fatalf("NewRemoteBarrier failed: %v", err)
	}
	if bb.Size() != 2 {
		t.Errorf("Expected the existing size 2, got %d", bb.Size())
	}

	done := make(chan error, 1)
	go func() { done <- ba.ArriveAndWait(ctx) }()
	if err := bb.ArriveAndWait(ctx); err != nil {
		t.Fatalf("ArriveAndWait failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ArriveAndWait failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ArriveAndWait did not return in time")
	}

	latch, err := NewRemoteLatch(ctx, a, "l", 2)
	if err != nil {
		t.Fatalf("NewRemoteLatch failed: %v", err)
	}
	if err := latch.CountDown(ctx, 2); err != nil {
		t.Fatalf("CountDown failed: %v", err)
	}
	if ok, err := latch.WaitUntil(ctx, time.Now().Add(time.Second)); err != nil || !ok {
		t.Errorf("Latch should be open, got %v, %v", ok, err)
	}
	if err := latch.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, err := latch.TryWait(ctx); !errors.Is(err, primitives.ErrNotBound) {
		t.Errorf("Expected ErrNotBound after Close, got %v", err)
	}
}
