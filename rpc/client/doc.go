// Package client implements the RPC client of the lock service. It provides an
// implementation of the lockmgr.ILockManager interface that communicates with a
// remote server via RPC, and thin proxies bound to a single primitive name.
//
// The package focuses on:
//   - Transparent RPC access to the lock manager
//   - Integration with the transport and serialization layers
//   - Error handling and conversion between RPC and domain errors
//
// Key Components:
//
//   - NewRPCLockMgr: Factory function that creates a client implementing the
//     lockmgr.ILockManager interface. All primitives used through it belong to the
//     connection of the transport; closing the client releases them on the server.
//
//   - RemoteMutex, RemoteSemaphore, RemoteConditionVariable, RemoteBarrier,
//     RemoteLatch: Proxies for one name. They add deadline variants (*Until) and
//     predicate waits for condition variables. They accept any
//     lockmgr.ILockManager, so they also work in process on a lockmgr.Session.
//
// Errors:
//
//	Errors of the server arrive as *primitives.Error and can be classified with
//	errors.Is (e.g. errors.Is(err, primitives.ErrNotOwner)). If the connection is
//	lost, pending and following requests fail with primitives.ErrClosed until the
//	transport connected again. The new connection starts without any bound names.
//
// Cancellation:
//
//	Blocking requests end when their context ends. The server does not know about
//	that: if a lock or a semaphore slot is granted after the context ended, the
//	client gives it back right away.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:  []string{"localhost:8080"},
//	    RetryCount: 3,
//	  },
//	}
//
//	// Create the lock manager
//	locks, err := client.NewRPCLockMgr(200, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  return err
//	}
//	defer locks.Close()
//
//	// Use a mutex
//	mutex, err := client.NewRemoteMutex(ctx, locks, "jobs")
//	if err != nil {
//	  return err
//	}
//	if err := mutex.Lock(ctx); err != nil {
//	  return err
//	}
//	defer mutex.Unlock(ctx)
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization. Locks are owned by the
//	connection, not by the goroutine.
package client
