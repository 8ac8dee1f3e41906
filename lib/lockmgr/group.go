package lockmgr

import (
	"fmt"
	"github.com/ValentinKolb/dSync/lib/primitives"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"sync/atomic"
)

var Logger = logger.GetLogger("lockmgr")

// --------------------------------------------------------------------------
// Group
// --------------------------------------------------------------------------

// Group is one independent lock namespace: a registry per primitive kind.
// Names of different kinds never collide.
type Group struct {
	name       string
	mutexes    *Registry[*primitives.Mutex]
	semaphores *Registry[*primitives.Semaphore]
	conditions *Registry[*primitives.ConditionVariable]
	barriers   *Registry[*primitives.Barrier]
	latches    *Registry[*primitives.Latch]

	sessions atomic.Int64
}

// NewGroup creates an empty namespace. The name is used as the "group" label of
// the exported metrics.
func NewGroup(name string) *Group {
	g := &Group{
		name: name,
		mutexes: NewRegistry(KindMutex,
			func(int64) (*primitives.Mutex, error) { return primitives.NewMutex(), nil },
			func(*primitives.Mutex) int64 { return 0 }),
		semaphores: NewRegistry(KindSemaphore,
			primitives.NewSemaphore,
			(*primitives.Semaphore).Max),
		conditions: NewRegistry(KindConditionVariable,
			func(int64) (*primitives.ConditionVariable, error) { return primitives.NewConditionVariable(), nil },
			func(*primitives.ConditionVariable) int64 { return 0 }),
		barriers: NewRegistry(KindBarrier,
			primitives.NewBarrier,
			(*primitives.Barrier).Size),
		latches: NewRegistry(KindLatch,
			primitives.NewLatch,
			(*primitives.Latch).Count),
	}

	g.mutexes.instances = g.counter("dsync_instances", KindMutex)
	g.semaphores.instances = g.counter("dsync_instances", KindSemaphore)
	g.conditions.instances = g.counter("dsync_instances", KindConditionVariable)
	g.barriers.instances = g.counter("dsync_instances", KindBarrier)
	g.latches.instances = g.counter("dsync_instances", KindLatch)
	return g
}

// Name returns the name of the group
func (g *Group) Name() string {
	return g.name
}

// Sessions returns the number of open sessions
func (g *Group) Sessions() int64 {
	return g.sessions.Load()
}

// Instances returns the number of registered instances of the given kind
func (g *Group) Instances(kind Kind) int {
	switch kind {
	case KindMutex:
		return g.mutexes.Len()
	case KindSemaphore:
		return g.semaphores.Len()
	case KindConditionVariable:
		return g.conditions.Len()
	case KindBarrier:
		return g.barriers.Len()
	case KindLatch:
		return g.latches.Len()
	default:
		return 0
	}
}

// erase unbinds the connection from the named instance of the given kind
func (g *Group) erase(kind Kind, name string, id primitives.ConnID) (bool, error) {
	switch kind {
	case KindMutex:
		return g.mutexes.Erase(name, id)
	case KindSemaphore:
		return g.semaphores.Erase(name, id)
	case KindConditionVariable:
		return g.conditions.Erase(name, id)
	case KindBarrier:
		return g.barriers.Erase(name, id)
	case KindLatch:
		return g.latches.Erase(name, id)
	default:
		return false, primitives.NewError(primitives.RetCInvalidArgument, fmt.Sprintf("unknown kind %d", kind))
	}
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// counter returns the counter with the given name labeled with group and kind
func (g *Group) counter(name string, kind Kind) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`%s{group=%q,kind=%q}`, name, g.name, kind))
}

func (g *Group) requests(kind Kind, op string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dsync_requests_total{group=%q,kind=%q,op=%q}`, g.name, kind, op))
}

func (g *Group) sessionGauge() *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dsync_sessions{group=%q}`, g.name))
}

func (g *Group) hooksRun() *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dsync_disconnect_hooks_total{group=%q}`, g.name))
}
