// Package transport defines the interfaces and abstractions for RPC communication
// of the lock server. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Supporting shard-based request routing
//   - Reporting the connection lifecycle to the server, since locks belong to connections
//   - Enabling multiple transport implementations (TCP, Unix sockets, websockets)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc, ConnectHandleFunc, DisconnectHandleFunc: Callbacks for
//     requests and the connection lifecycle.
package transport
