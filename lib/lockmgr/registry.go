package lockmgr

import (
	"github.com/ValentinKolb/dSync/lib/primitives"
	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// entry is one named instance and the set of connections bound to it.
// bound is only accessed inside MapOf.Compute, which serializes per key.
type entry[T any] struct {
	value T
	bound map[primitives.ConnID]struct{}
}

// engaged is implemented by every engine, it reports whether a connection holds
// or waits for the instance
type engaged interface {
	Engaged(id primitives.ConnID) bool
}

// Registry maps names to the engine instances of one kind. An instance is created
// by the first Emplace of its name and deleted when the last bound connection
// erases it.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry[T any] struct {
	kind      Kind
	entries   *xsync.MapOf[string, *entry[T]]
	create    func(param int64) (T, error)
	param     func(T) int64
	instances *metrics.Counter
}

// NewRegistry creates an empty registry. create builds a new instance from the
// construction parameter, param reports the effective parameter of an instance.
func NewRegistry[T any](kind Kind, create func(param int64) (T, error), param func(T) int64) *Registry[T] {
	return &Registry[T]{
		kind:    kind,
		entries: xsync.NewMapOf[string, *entry[T]](),
		create:  create,
		param:   param,
	}
}

// Kind returns the kind of the stored instances
func (r *Registry[T]) Kind() Kind {
	return r.kind
}

// Emplace binds the connection to the instance registered under name, creating it
// with param if it does not exist. The construction parameter is ignored for
// existing instances, the effective parameter is returned instead.
func (r *Registry[T]) Emplace(name string, id primitives.ConnID, param int64) (T, int64, error) {
	var createErr error
	e, ok := r.entries.Compute(name, func(old *entry[T], loaded bool) (*entry[T], bool) {
		if loaded {
			old.bound[id] = struct{}{}
			return old, false
		}

		v, err := r.create(param)
		if err != nil {
			createErr = err
			return nil, true
		}
		if r.instances != nil {
			r.instances.Inc()
		}
		return &entry[T]{
			value: v,
			bound: map[primitives.ConnID]struct{}{id: {}},
		}, false
	})

	if createErr != nil || !ok {
		var zero T
		if createErr == nil {
			createErr = primitives.NewError(primitives.RetCInternalError, "instance could not be registered")
		}
		return zero, 0, createErr
	}
	return e.value, r.param(e.value), nil
}

// Erase unbinds the connection from name. The instance is deleted if no
// connection is bound anymore, in that case true is returned. A connection that
// still holds or waits for the instance can not unbind it.
func (r *Registry[T]) Erase(name string, id primitives.ConnID) (bool, error) {
	bound, busy, removed := false, false, false
	r.entries.Compute(name, func(old *entry[T], loaded bool) (*entry[T], bool) {
		if !loaded {
			return old, true
		}
		if _, ok := old.bound[id]; !ok {
			return old, false
		}

		bound = true
		if e, ok := any(old.value).(engaged); ok && e.Engaged(id) {
			busy = true
			return old, false
		}
		delete(old.bound, id)
		if len(old.bound) == 0 {
			removed = true
			return old, true
		}
		return old, false
	})

	if !bound {
		return false, notBound(r.kind, name)
	}
	if busy {
		return false, inUse(r.kind, name, id)
	}
	if removed && r.instances != nil {
		r.instances.Dec()
	}
	return removed, nil
}

// Load returns the instance registered under name
func (r *Registry[T]) Load(name string) (T, bool) {
	e, ok := r.entries.Load(name)
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Len returns the number of registered instances
func (r *Registry[T]) Len() int {
	return r.entries.Size()
}

// Names returns the names of all registered instances
func (r *Registry[T]) Names() []string {
	names := make([]string, 0, r.entries.Size())
	r.entries.Range(func(name string, _ *entry[T]) bool {
		names = append(names, name)
		return true
	})
	return names
}
