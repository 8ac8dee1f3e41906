package lockmgr

import (
	"fmt"
	"github.com/ValentinKolb/dSync/lib/primitives"
	"strings"
)

// Kind identifies the type of a primitive
type Kind uint8

const (
	KindMutex Kind = iota
	KindSemaphore
	KindConditionVariable
	KindBarrier
	KindLatch
)

// Kinds lists all primitive kinds
var Kinds = []Kind{KindMutex, KindSemaphore, KindConditionVariable, KindBarrier, KindLatch}

func (k Kind) String() string {
	switch k {
	case KindMutex:
		return "mutex"
	case KindSemaphore:
		return "semaphore"
	case KindConditionVariable:
		return "condition_variable"
	case KindBarrier:
		return "barrier"
	case KindLatch:
		return "latch"
	default:
		return "unknown"
	}
}

// validateName rejects names that can not be used as registry keys
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return primitives.NewError(primitives.RetCInvalidArgument, "the name must not be empty")
	}
	return nil
}

// notBound is returned when a connection uses a name it has not bound
func notBound(kind Kind, name string) error {
	return primitives.NewError(primitives.RetCNotBound, fmt.Sprintf("%s %q is not bound by this connection", kind, name))
}

// inUse is returned when a connection erases a name it still holds or waits for
func inUse(kind Kind, name string, id primitives.ConnID) error {
	return primitives.NewError(primitives.RetCInvalidArgument, fmt.Sprintf("connection %d still holds or waits for %s %q", id, kind, name))
}

// closedSession is returned for every call on a closed session
func closedSession() error {
	return primitives.NewError(primitives.RetCClosed, "the session is closed")
}
