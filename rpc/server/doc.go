// Package server implements the RPC server of the lock service. It routes the
// requests of every connection to the lock manager session of that connection,
// and closes the sessions once the connection is gone.
//
// The package focuses on:
//   - Server-side RPC request handling for lock manager operations
//   - Adapter pattern to decouple application logic from RPC mechanisms
//   - One session per connection and shard, created on first use
//   - Releasing everything a connection held when it disconnects
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a
//     lockmgr.ILockManager.
//
//   - NewLockManagerServerAdapter: Factory function creating an adapter that
//     translates RPC requests to lockmgr.ILockManager method calls.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLockManager},
//	  },
//	  Transport: common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  TimeoutSecond: 60,
//	  MetricsEndpoint: ":9090",
//	  LogLevel: "info",
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	// Start the server
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Blocking requests (Lock, Acquire, Wait, ...) occupy a worker of their
// connection until they return. They never hold up other connections.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Serve should be called only once.
package server
