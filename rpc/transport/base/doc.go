// Package base provides a foundation for transport layers of the lock server,
// implementing core functionality for RPC communication independent of the specific
// network protocol (TCP, Unix sockets, websockets). It serves as a base layer that
// can be extended with protocol-specific connectors.
//
// The package focuses on:
//   - Protocol-agnostic client and server transport implementations
//   - Frame-based message protocol with shardID and requestID tracking
//   - Automatic request routing and response correlation
//   - Connection lifecycle: every accepted connection gets a unique id, and the
//     server is told when it goes away
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Core client implementation. It keeps a single connection,
//     because the server ties locks to the connection that acquired them. If the
//     connection fails, pending requests fail and the next request connects again,
//     trying the configured endpoints in order.
//
//   - serverTransport: Core server implementation that accepts connections and
//     routes requests to the appropriate handler based on shardID.
//
// Connection Lifecycle:
//
//   - Requests of one connection are processed concurrently by up to
//     WorkersPerConn workers, a blocking request (e.g. a lock) occupies a worker
//     until it returns.
//
//   - A connection is idle if no frame arrived within TimeoutSecond and no request
//     is in progress. Idle connections are closed.
//
//   - When a connection ends, the disconnect handler runs before the transport
//     waits for the workers of that connection. The handler releases everything
//     the connection held, which also ends its blocked requests.
//
// Performance Optimizations:
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse buffers, reducing
//     GC pressure and memory allocations.
//
//   - Asynchronous Processing: The client sends requests and correlates responses
//     asynchronously using unique request IDs, so a blocked lock request does not
//     stall other requests on the same connection.
//
//   - Frame Batching: The transport uses net.Buffers to reduce syscalls when
//     writing frames, combining header and payload into a single write operation.
//
// Thread Safety:
//
//	All public methods are thread-safe. The server creates a dedicated goroutine
//	for each connection.
package base
