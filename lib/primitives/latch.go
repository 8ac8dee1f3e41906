package primitives

import (
	"context"
	"time"
)

// Latch is a one-shot countdown. Once the count reaches zero it stays open and
// every wait returns immediately.
type Latch struct {
	cv    *ConditionVariable // cv.mu also guards count
	count int64
}

// NewLatch creates a latch that opens after count arrivals (>= 0)
func NewLatch(count int64) (*Latch, error) {
	if count < 0 {
		return nil, newErrorf(RetCInvalidArgument, "latch count must not be negative, got %d", count)
	}
	return &Latch{cv: NewConditionVariable(), count: count}, nil
}

// Count returns the remaining count, never below zero
func (l *Latch) Count() int64 {
	l.cv.mu.Lock()
	defer l.cv.mu.Unlock()
	return l.count
}

// CountDown subtracts n. Counting down an open latch is a no-op.
func (l *Latch) CountDown(n int64) error {
	if n < 0 {
		return newErrorf(RetCInvalidArgument, "count down must not be negative, got %d", n)
	}

	l.cv.mu.Lock()
	defer l.cv.mu.Unlock()
	l.countDownLocked(n)
	return nil
}

// TryWait reports whether the latch is open
func (l *Latch) TryWait() bool {
	l.cv.mu.Lock()
	defer l.cv.mu.Unlock()
	return l.count <= 0
}

// Wait blocks until the latch is open
func (l *Latch) Wait(ctx context.Context, c Caller) error {
	_, err := l.wait(ctx, c, 0, -1)
	return err
}

// WaitFor waits at most d for the latch to open. It returns true if it is open.
func (l *Latch) WaitFor(ctx context.Context, c Caller, d time.Duration) (bool, error) {
	return l.wait(ctx, c, 0, clampTimeout(d))
}

// ArriveAndWait counts down by one and waits for the latch to open
func (l *Latch) ArriveAndWait(ctx context.Context, c Caller) error {
	_, err := l.wait(ctx, c, 1, -1)
	return err
}

// wait counts down by n and, if the latch is still closed, queues c as a waiter
// in the same critical section. The count is left untouched if c is closed.
func (l *Latch) wait(ctx context.Context, c Caller, n int64, timeout time.Duration) (bool, error) {
	l.cv.mu.Lock()

	// opens now, no waiter needed
	if l.count-n <= 0 {
		if err := c.closedErr(); err != nil {
			l.cv.mu.Unlock()
			return false, err
		}
		l.countDownLocked(n)
		l.cv.mu.Unlock()
		return true, nil
	}

	r, err := l.cv.enrollLocked(c)
	if err != nil {
		l.cv.mu.Unlock()
		return false, err
	}
	l.countDownLocked(n)
	l.cv.mu.Unlock()

	return l.cv.await(ctx, r, timeout)
}

// Engaged reports whether the connection waits on the latch
func (l *Latch) Engaged(id ConnID) bool {
	return l.cv.Engaged(id)
}

func (l *Latch) countDownLocked(n int64) {
	if l.count <= 0 || n == 0 {
		return
	}
	l.count -= n
	if l.count <= 0 {
		l.count = 0
		l.cv.notifyAllLocked()
	}
}
