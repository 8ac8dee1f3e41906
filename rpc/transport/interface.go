package transport

import (
	"context"
	"github.com/ValentinKolb/dSync/rpc/common"
	"net"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes the id of the connection, a shardId and a request as parameters and
// returns a response. It may block (e.g. while waiting for a lock) until the
// connection is disconnected.
type ServerHandleFunc func(connID, shardId uint64, req []byte) (resp []byte)

// ConnectHandleFunc is called for every accepted connection before its first
// request is read. Returning false closes the connection.
type ConnectHandleFunc func(connID uint64, addr net.Addr) bool

// DisconnectHandleFunc is called exactly once when a connection is gone,
// before the transport waits for the in-flight requests of that connection.
type DisconnectHandleFunc func(connID uint64)

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a RPCServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	// The transport layer is responsible for routing the request to the appropriate shard
	RegisterHandler(handler ServerHandleFunc)
	// RegisterConnectionHandlers registers the callbacks for the connection
	// lifecycle. Both may be nil.
	RegisterConnectionHandlers(onConnect ConnectHandleFunc, onDisconnect DisconnectHandleFunc)
	// Listen starts the transport layer and listens for incoming requests.
	// It blocks until Close is called (returns nil) or the listener fails.
	Listen(config common.ServerConfig) error
	// Close stops accepting connections and disconnects all clients
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response.
	// If ctx is done before the response arrives, Send returns ctx.Err(); the
	// request may still be executed by the server.
	Send(ctx context.Context, shardId uint64, req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
