package lockmgr

import (
	"context"
	"github.com/ValentinKolb/dSync/lib/primitives"
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// Session is the state of one connection within a Group. It remembers which
// names the connection bound and owns the disconnect hooks of all requests the
// connection created. Closing the session releases everything.
type Session struct {
	group  *Group
	caller primitives.Caller

	mu     sync.Mutex
	names  map[Kind]map[string]struct{}
	closed bool
}

var _ ILockManager = (*Session)(nil)

// NewSession opens a session for the connection with the given id
func (g *Group) NewSession(id primitives.ConnID) *Session {
	names := make(map[Kind]map[string]struct{}, len(Kinds))
	for _, k := range Kinds {
		names[k] = make(map[string]struct{})
	}

	g.sessions.Add(1)
	g.sessionGauge().Inc()

	return &Session{
		group:  g,
		caller: primitives.Caller{ID: id, Hooks: primitives.NewHookList()},
		names:  names,
	}
}

// ID returns the connection id of the session
func (s *Session) ID() primitives.ConnID {
	return s.caller.ID
}

func (s *Session) Mutexes() IMutexes                       { return sessionMutexes{s} }
func (s *Session) Semaphores() ISemaphores                 { return sessionSemaphores{s} }
func (s *Session) ConditionVariables() IConditionVariables { return sessionConditions{s} }
func (s *Session) Barriers() IBarriers                     { return sessionBarriers{s} }
func (s *Session) Latches() ILatches                       { return sessionLatches{s} }

// Close runs the disconnect hooks of the connection, which cancels its pending
// requests and releases its grants, and then unbinds every name it bound.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	names := s.names
	s.names = nil
	s.mu.Unlock()

	hooks := s.caller.Hooks.Run()

	unbound := 0
	for kind, set := range names {
		for name := range set {
			if _, err := s.group.erase(kind, name, s.caller.ID); err != nil {
				Logger.Warningf("session %d: could not unbind %s %q: %v", s.caller.ID, kind, name, err)
				continue
			}
			unbound++
		}
	}

	s.group.sessions.Add(-1)
	s.group.sessionGauge().Dec()
	s.group.hooksRun().Add(hooks)

	Logger.Debugf("session %d closed (group=%s, hooks=%d, names=%d)", s.caller.ID, s.group.name, hooks, unbound)
	return nil
}

// Closed reports whether Close was called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// bind emplaces name in reg and remembers it for this session
func bind[T any](s *Session, reg *Registry[T], name string, param int64) (int64, error) {
	s.group.requests(reg.Kind(), "emplace").Inc()
	if err := validateName(name); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, closedSession()
	}
	_, actual, err := reg.Emplace(name, s.caller.ID, param)
	if err != nil {
		return 0, err
	}
	s.names[reg.Kind()][name] = struct{}{}
	return actual, nil
}

// unbind erases name from reg
func unbind[T any](s *Session, reg *Registry[T], name string) error {
	s.group.requests(reg.Kind(), "erase").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return closedSession()
	}
	if _, ok := s.names[reg.Kind()][name]; !ok {
		return notBound(reg.Kind(), name)
	}

	removed, err := reg.Erase(name, s.caller.ID)
	if err != nil {
		return err
	}
	delete(s.names[reg.Kind()], name)

	if removed {
		Logger.Debugf("%s %q deleted (group=%s)", reg.Kind(), name, s.group.name)
	}
	return nil
}

// lookup returns the instance bound under name
func lookup[T any](s *Session, reg *Registry[T], name, op string) (T, error) {
	s.group.requests(reg.Kind(), op).Inc()

	s.mu.Lock()
	closed := s.closed
	_, bound := s.names[reg.Kind()][name]
	s.mu.Unlock()

	var zero T
	if closed {
		return zero, closedSession()
	}
	if !bound {
		return zero, notBound(reg.Kind(), name)
	}
	v, ok := reg.Load(name)
	if !ok {
		return zero, notBound(reg.Kind(), name)
	}
	return v, nil
}

// timed counts elapsed timeouts of *For calls
func (s *Session) timed(kind Kind, ok bool, err error) (bool, error) {
	if !ok && err == nil {
		s.group.counter("dsync_timeouts_total", kind).Inc()
	}
	return ok, err
}

// --------------------------------------------------------------------------
// Mutexes
// --------------------------------------------------------------------------

type sessionMutexes struct{ s *Session }

func (v sessionMutexes) Emplace(_ context.Context, name string) error {
	_, err := bind(v.s, v.s.group.mutexes, name, 0)
	return err
}

func (v sessionMutexes) Erase(_ context.Context, name string) error {
	return unbind(v.s, v.s.group.mutexes, name)
}

func (v sessionMutexes) Lock(ctx context.Context, name string) error {
	m, err := lookup(v.s, v.s.group.mutexes, name, "lock")
	if err != nil {
		return err
	}
	return m.Lock(ctx, v.s.caller)
}

func (v sessionMutexes) TryLock(_ context.Context, name string) (bool, error) {
	m, err := lookup(v.s, v.s.group.mutexes, name, "try_lock")
	if err != nil {
		return false, err
	}
	return m.TryLock(v.s.caller)
}

func (v sessionMutexes) TryLockFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	m, err := lookup(v.s, v.s.group.mutexes, name, "try_lock_for")
	if err != nil {
		return false, err
	}
	ok, err := m.TryLockFor(ctx, v.s.caller, timeout)
	return v.s.timed(KindMutex, ok, err)
}

func (v sessionMutexes) Unlock(_ context.Context, name string) error {
	m, err := lookup(v.s, v.s.group.mutexes, name, "unlock")
	if err != nil {
		return err
	}
	return m.Unlock(v.s.caller)
}

func (v sessionMutexes) LockShared(ctx context.Context, name string) error {
	m, err := lookup(v.s, v.s.group.mutexes, name, "lock_shared")
	if err != nil {
		return err
	}
	return m.LockShared(ctx, v.s.caller)
}

func (v sessionMutexes) TryLockShared(_ context.Context, name string) (bool, error) {
	m, err := lookup(v.s, v.s.group.mutexes, name, "try_lock_shared")
	if err != nil {
		return false, err
	}
	return m.TryLockShared(v.s.caller)
}

func (v sessionMutexes) TryLockSharedFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	m, err := lookup(v.s, v.s.group.mutexes, name, "try_lock_shared_for")
	if err != nil {
		return false, err
	}
	ok, err := m.TryLockSharedFor(ctx, v.s.caller, timeout)
	return v.s.timed(KindMutex, ok, err)
}

func (v sessionMutexes) UnlockShared(_ context.Context, name string) error {
	m, err := lookup(v.s, v.s.group.mutexes, name, "unlock_shared")
	if err != nil {
		return err
	}
	return m.UnlockShared(v.s.caller)
}

// --------------------------------------------------------------------------
// Semaphores
// --------------------------------------------------------------------------

type sessionSemaphores struct{ s *Session }

func (v sessionSemaphores) Emplace(_ context.Context, name string, capacity int64) (int64, error) {
	return bind(v.s, v.s.group.semaphores, name, capacity)
}

func (v sessionSemaphores) Erase(_ context.Context, name string) error {
	return unbind(v.s, v.s.group.semaphores, name)
}

func (v sessionSemaphores) Acquire(ctx context.Context, name string) error {
	sem, err := lookup(v.s, v.s.group.semaphores, name, "acquire")
	if err != nil {
		return err
	}
	return sem.Acquire(ctx, v.s.caller)
}

func (v sessionSemaphores) TryAcquire(_ context.Context, name string) (bool, error) {
	sem, err := lookup(v.s, v.s.group.semaphores, name, "try_acquire")
	if err != nil {
		return false, err
	}
	return sem.TryAcquire(v.s.caller)
}

func (v sessionSemaphores) TryAcquireFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	sem, err := lookup(v.s, v.s.group.semaphores, name, "try_acquire_for")
	if err != nil {
		return false, err
	}
	ok, err := sem.TryAcquireFor(ctx, v.s.caller, timeout)
	return v.s.timed(KindSemaphore, ok, err)
}

func (v sessionSemaphores) Release(_ context.Context, name string, n int64) error {
	sem, err := lookup(v.s, v.s.group.semaphores, name, "release")
	if err != nil {
		return err
	}
	return sem.Release(v.s.caller, n)
}

// --------------------------------------------------------------------------
// Condition Variables
// --------------------------------------------------------------------------

type sessionConditions struct{ s *Session }

func (v sessionConditions) Emplace(_ context.Context, name string) error {
	_, err := bind(v.s, v.s.group.conditions, name, 0)
	return err
}

func (v sessionConditions) Erase(_ context.Context, name string) error {
	return unbind(v.s, v.s.group.conditions, name)
}

func (v sessionConditions) Wait(ctx context.Context, name string) error {
	cv, err := lookup(v.s, v.s.group.conditions, name, "wait")
	if err != nil {
		return err
	}
	return cv.Wait(ctx, v.s.caller)
}

func (v sessionConditions) WaitFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	cv, err := lookup(v.s, v.s.group.conditions, name, "wait_for")
	if err != nil {
		return false, err
	}
	ok, err := cv.WaitFor(ctx, v.s.caller, timeout)
	return v.s.timed(KindConditionVariable, ok, err)
}

func (v sessionConditions) NotifyOne(_ context.Context, name string) error {
	cv, err := lookup(v.s, v.s.group.conditions, name, "notify_one")
	if err != nil {
		return err
	}
	cv.NotifyOne()
	return nil
}

func (v sessionConditions) NotifyAll(_ context.Context, name string) error {
	cv, err := lookup(v.s, v.s.group.conditions, name, "notify_all")
	if err != nil {
		return err
	}
	cv.NotifyAll()
	return nil
}

// --------------------------------------------------------------------------
// Barriers
// --------------------------------------------------------------------------

type sessionBarriers struct{ s *Session }

func (v sessionBarriers) Emplace(_ context.Context, name string, size int64) (int64, error) {
	return bind(v.s, v.s.group.barriers, name, size)
}

func (v sessionBarriers) Erase(_ context.Context, name string) error {
	return unbind(v.s, v.s.group.barriers, name)
}

func (v sessionBarriers) Arrive(_ context.Context, name string, n int64) error {
	b, err := lookup(v.s, v.s.group.barriers, name, "arrive")
	if err != nil {
		return err
	}
	return b.Arrive(n)
}

func (v sessionBarriers) ArriveAndWait(ctx context.Context, name string) error {
	b, err := lookup(v.s, v.s.group.barriers, name, "arrive_and_wait")
	if err != nil {
		return err
	}
	return b.ArriveAndWait(ctx, v.s.caller)
}

func (v sessionBarriers) ArriveAndDrop(_ context.Context, name string) error {
	b, err := lookup(v.s, v.s.group.barriers, name, "arrive_and_drop")
	if err != nil {
		return err
	}
	b.ArriveAndDrop()
	return nil
}

func (v sessionBarriers) Wait(ctx context.Context, name string) error {
	b, err := lookup(v.s, v.s.group.barriers, name, "wait")
	if err != nil {
		return err
	}
	return b.Wait(ctx, v.s.caller)
}

func (v sessionBarriers) WaitFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	b, err := lookup(v.s, v.s.group.barriers, name, "wait_for")
	if err != nil {
		return false, err
	}
	ok, err := b.WaitFor(ctx, v.s.caller, timeout)
	return v.s.timed(KindBarrier, ok, err)
}

// --------------------------------------------------------------------------
// Latches
// --------------------------------------------------------------------------

type sessionLatches struct{ s *Session }

func (v sessionLatches) Emplace(_ context.Context, name string, count int64) (int64, error) {
	return bind(v.s, v.s.group.latches, name, count)
}

func (v sessionLatches) Erase(_ context.Context, name string) error {
	return unbind(v.s, v.s.group.latches, name)
}

func (v sessionLatches) CountDown(_ context.Context, name string, n int64) error {
	l, err := lookup(v.s, v.s.group.latches, name, "count_down")
	if err != nil {
		return err
	}
	return l.CountDown(n)
}

func (v sessionLatches) ArriveAndWait(ctx context.Context, name string) error {
	l, err := lookup(v.s, v.s.group.latches, name, "arrive_and_wait")
	if err != nil {
		return err
	}
	return l.ArriveAndWait(ctx, v.s.caller)
}

func (v sessionLatches) TryWait(_ context.Context, name string) (bool, error) {
	l, err := lookup(v.s, v.s.group.latches, name, "try_wait")
	if err != nil {
		return false, err
	}
	return l.TryWait(), nil
}

func (v sessionLatches) Wait(ctx context.Context, name string) error {
	l, err := lookup(v.s, v.s.group.latches, name, "wait")
	if err != nil {
		return err
	}
	return l.Wait(ctx, v.s.caller)
}

func (v sessionLatches) WaitFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	l, err := lookup(v.s, v.s.group.latches, name, "wait_for")
	if err != nil {
		return false, err
	}
	ok, err := l.WaitFor(ctx, v.s.caller, timeout)
	return v.s.timed(KindLatch, ok, err)
}
