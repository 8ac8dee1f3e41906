// Package rpc provides the remote procedure call layer of the dSync lock
// server. It carries lock manager calls from a client process to the server
// and tells the server which connection issued them.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, WebSocket). Connections are long lived, their identity
//     is the identity of the client.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: lockmgr.ILockManager over RPC and the Remote* primitive proxies.
//
//   - server: RPC server that opens one lock manager session per connection and
//     shard and closes it when the connection goes away.
package rpc
