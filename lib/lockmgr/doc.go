// Package lockmgr manages named synchronization primitives for many connections.
// It sits between the transport and the engines of the primitives package: the
// server opens one Session per connection and routes every call of that
// connection through it.
//
// Core Functionality:
//   - Named instances with reference counting (Emplace / Erase)
//   - Ownership checks, a connection can only use names it bound
//   - Release of everything a connection held or waited for when it goes away
//
// Implementation Approach:
//
//	- Registry: One xsync.MapOf per primitive kind. Emplace and Erase run inside
//	  MapOf.Compute, so creating an instance and binding the first connection (or
//	  unbinding the last connection and deleting the instance) is atomic.
//
//	- Group: A namespace with one registry per kind. The server keeps one group
//	  per shard.
//
//	- Session: Remembers the names a connection bound and owns the disconnect
//	  hooks of the connection. Close runs the hooks first (cancel pending requests,
//	  release grants) and then unbinds every name.
//
// Metrics:
//
//	All counters are registered in the default VictoriaMetrics set and labeled
//	with the group name:
//
//	- dsync_requests_total{group,kind,op}
//	- dsync_timeouts_total{group,kind}
//	- dsync_instances{group,kind}
//	- dsync_sessions{group}
//	- dsync_disconnect_hooks_total{group}
//
// Usage Example:
//
//	group := lockmgr.NewGroup("default")
//	session := group.NewSession(connID)
//	defer session.Close()
//
//	if err := session.Mutexes().Emplace(ctx, "jobs"); err != nil {
//	    return err
//	}
//	if err := session.Mutexes().Lock(ctx, "jobs"); err != nil {
//	    return err
//	}
//	defer session.Mutexes().Unlock(ctx, "jobs")
package lockmgr
