package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrTransportClosed is returned by Send after Close was called
var ErrTransportClosed = errors.New("transport closed")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection based on the provided configuration
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientConnection represents a single net connection. All locks of a client
// belong to the server side session of this connection, so the transport uses
// exactly one connection at a time.
type clientConnection struct {
	conn         net.Conn
	endpoint     string
	requestChans *xsync.MapOf[uint64, chan responseResult]
	writeMu      sync.Mutex    // Serializes frame writes
	done         chan struct{} // Closed when the reader goroutine stops
	err          error         // Reason the connection stopped, set before done is closed
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	mu            sync.Mutex // Protects current and stopping
	current       *clientConnection
	nextEndpoint  int           // Endpoint tried first on the next dial
	nextRequestID atomic.Uint64 // Atomic counter for unique request IDs
	stopping      bool          // Signals shutdown
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Store the config
	t.config = config
	t.stopping = false
	t.nextEndpoint = 0

	// Close an existing connection
	if t.current != nil {
		t.current.conn.Close()
		t.current = nil
	}

	_, err := t.dialLocked()
	return err
}

func (t *clientTransport) Send(ctx context.Context, shardId uint64, req []byte) (resp []byte, err error) {
	connection, err := t.connection()
	if err != nil {
		return nil, err
	}

	// Generate a unique request ID
	requestID := t.nextRequestID.Add(1)

	// Create a channel for the response and register the request
	respCh := make(chan responseResult, 1)
	connection.requestChans.Store(requestID, respCh)
	defer connection.requestChans.Delete(requestID)

	// Set write timeout
	if t.config.TimeoutSecond > 0 {
		timeout := time.Duration(t.config.TimeoutSecond) * time.Second
		connection.conn.SetWriteDeadline(time.Now().Add(timeout))
	}

	// Lock the connection only for writing
	connection.writeMu.Lock()
	err = writeFrame(connection.conn, shardId, requestID, req)
	connection.writeMu.Unlock()

	if err != nil {
		// A partial frame corrupts the stream, drop the connection
		connection.conn.Close()
		return nil, fmt.Errorf("failed to send request to %s: %v", connection.endpoint, err)
	}

	// Wait for the response, the connection to fail or the context to end
	select {
	case result := <-respCh:
		return result.data, result.err
	case <-connection.done:
		// the response may have arrived just before the connection failed
		select {
		case result := <-respCh:
			return result.data, result.err
		default:
			return nil, connection.err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *clientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopping = true
	if t.current != nil {
		err := t.current.conn.Close()
		t.current = nil
		return err
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// connection returns the active connection. If the last connection failed, a
// new one is established; the server side state of the old one is lost.
func (t *clientTransport) connection() (*clientConnection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopping {
		return nil, ErrTransportClosed
	}

	if t.current != nil {
		select {
		case <-t.current.done:
			Logger.Warningf("Connection to %s lost (%v), reconnecting", t.current.endpoint, t.current.err)
			t.current = nil
		default:
			return t.current, nil
		}
	}

	return t.dialLocked()
}

// dialLocked connects to the first reachable endpoint, starting with the one
// after the endpoint of the last failed connection. t.mu must be held.
func (t *clientTransport) dialLocked() (*clientConnection, error) {
	endpoints := t.config.Transport.Endpoints
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("not connected")
	}

	// We always try at least once per endpoint
	attempts := t.config.Transport.RetryCount
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < len(endpoints); i++ {
		idx := (t.nextEndpoint + i) % len(endpoints)
		endpoint := endpoints[idx]

		// Initial backoff duration in milliseconds
		backoffMs := 50

		for attempt := 0; attempt < attempts; attempt++ {
			connection, err := t.open(endpoint)
			if err == nil {
				t.current = connection
				t.nextEndpoint = (idx + 1) % len(endpoints)
				Logger.Infof("Connected to %s using %s transport", endpoint, t.connector.GetName())
				return connection, nil
			}

			lastErr = err
			Logger.Debugf("Connection attempt %d/%d to %s failed: %v", attempt+1, attempts, endpoint, err)

			if attempt+1 < attempts {
				// Exponential backoff with a small random jitter (+-10%)
				jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
				time.Sleep(time.Duration(jitter) * time.Millisecond)
				backoffMs *= 2
			}
		}
		Logger.Warningf("Failed to connect to %s: %v", endpoint, lastErr)
	}

	return nil, fmt.Errorf("failed to connect to any endpoint: %v", lastErr)
}

// open dials a single endpoint and starts its response reader
func (t *clientTransport) open(endpoint string) (*clientConnection, error) {
	conn, err := t.connector.Connect(endpoint)
	if err != nil {
		return nil, err
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %v", endpoint, err)
	}

	connection := &clientConnection{
		conn:         conn,
		endpoint:     endpoint,
		requestChans: xsync.NewMapOf[uint64, chan responseResult](),
		done:         make(chan struct{}),
	}
	go connection.readResponses()
	return connection, nil
}

// readResponses reads responses in a loop and distributes them to waiting
// requests. There is no read deadline, a response to a blocking request may
// take arbitrarily long.
func (c *clientConnection) readResponses() {
	for {
		shardID, requestID, data, err := readFrame(c.conn, nil)
		if err != nil {
			c.err = fmt.Errorf("connection to %s closed: %v", c.endpoint, err)
			close(c.done)

			// Fail all waiting requests
			c.requestChans.Range(func(_ uint64, respCh chan responseResult) bool {
				select {
				case respCh <- responseResult{nil, c.err}:
				default:
				}
				return true
			})
			c.conn.Close()
			return
		}

		// Find the corresponding request channel
		respCh, found := c.requestChans.Load(requestID)
		if !found {
			// The caller gave up (context done) before the response arrived
			Logger.Debugf("Received response for unknown request ID %d with shard ID %d", requestID, shardID)
			continue
		}

		// Send the response to the waiting request
		select {
		case respCh <- responseResult{data, nil}:
		default:
		}
	}
}
