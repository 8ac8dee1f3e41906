package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultWorkersPerConn is used if the config does not set WorkersPerConn.
	// Blocking requests (Lock, Wait, ...) occupy a worker until they return.
	DefaultWorkersPerConn = 256
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector    IServerConnector
	handler      transport.ServerHandleFunc
	onConnect    transport.ConnectHandleFunc
	onDisconnect transport.DisconnectHandleFunc
	config       common.ServerConfig
	bufferPool   *sync.Pool
	bufferSize   int

	mu       sync.Mutex // protects listener
	listener net.Listener
	closed   atomic.Bool

	nextConnID atomic.Uint64
	conns      *xsync.MapOf[uint64, net.Conn]
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with per-connection worker pool
func NewBaseServerTransport(connector IServerConnector, bufferSize int) transport.IRPCServerTransport {
	return &serverTransport{
		connector:  connector,
		bufferSize: bufferSize,
		conns:      xsync.NewMapOf[uint64, net.Conn](),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) RegisterConnectionHandlers(onConnect transport.ConnectHandleFunc, onDisconnect transport.DisconnectHandleFunc) {
	t.onConnect = onConnect
	t.onDisconnect = onDisconnect
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}

	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		listener.Close()
		return nil
	}
	t.listener = listener
	t.mu.Unlock()

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), config.Transport.Endpoint, t.workersPerConn())

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		connID := t.nextConnID.Add(1)

		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade connection %d from %s: %v", connID, conn.RemoteAddr(), err)
			conn.Close()
			continue
		}

		if t.onConnect != nil && !t.onConnect(connID, conn.RemoteAddr()) {
			Logger.Debugf("Connection %d from %s rejected", connID, conn.RemoteAddr())
			conn.Close()
			continue
		}

		// Handle the connection in a goroutine
		go t.handleConnection(connID, conn)
	}
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	t.closed.Store(true)
	listener := t.listener
	t.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	// Closing the connections ends their read loops, which run the disconnect handlers
	t.conns.Range(func(_ uint64, conn net.Conn) bool {
		conn.Close()
		return true
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// workersPerConn returns the configured number of workers, at least one
func (t *serverTransport) workersPerConn() int {
	if t.config.Transport.WorkersPerConn < 1 {
		return DefaultWorkersPerConn
	}
	return t.config.Transport.WorkersPerConn
}

// handleConnection handles incoming requests for one connection
func (t *serverTransport) handleConnection(connID uint64, conn net.Conn) {
	defer conn.Close()

	t.conns.Store(connID, conn)
	defer t.conns.Delete(connID)

	// Close may have run between accept and Store
	if t.closed.Load() {
		if t.onDisconnect != nil {
			t.onDisconnect(connID)
		}
		return
	}

	Logger.Debugf("Connection %d from %s opened", connID, conn.RemoteAddr())

	// Timeout in seconds
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	// Create a semaphore to limit concurrent workers for this connection
	// The buffered channel acts as a counting semaphore
	workerSemaphore := make(chan struct{}, t.workersPerConn())

	// Create a wait group to wait for all workers to finish
	var wg sync.WaitGroup

	// Number of requests in progress, a connection with pending requests is not idle
	var inFlight atomic.Int64

	// Create a mutex to protect writes to the connection
	var connMutex sync.Mutex

	// Handler function that processes requests in worker goroutines
	handleResponse := func(shardID, requestID uint64, data []byte) {
		// When done, release the semaphore and mark worker as done
		defer func() {
			inFlight.Add(-1)
			<-workerSemaphore // Release semaphore slot
			wg.Done()         // Mark worker as done
		}()

		// Process the request
		start := time.Now()
		resp := t.handler(connID, shardID, data)
		Logger.Debugf("Processed request %d of connection %d for shard %d took %s", requestID, connID, shardID, time.Since(start))

		// Protect writes to the connection with a mutex
		connMutex.Lock()
		defer connMutex.Unlock()

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Debugf("Failed to set write deadline: %v", err)
				return
			}
		}

		// Write the response with the same requestID
		if err := writeFrame(conn, shardID, requestID, resp); err != nil {
			Logger.Debugf("Failed to write response to connection %d: %v", connID, err)
		}
	}

	// Function to handle incoming requests
	handleRequest := func() error {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("failed to set read deadline: %v", err)
			}
		}

		// Get a buffer from the pool
		buf := t.bufferPool.Get().([]byte)

		// Read the frame with requestID
		shardID, requestID, data, err := readFrame(conn, buf)

		// Error reading frame
		if err != nil {
			t.bufferPool.Put(buf)
			return err
		}

		// Acquire a slot in the semaphore (blocks if the worker limit is reached)
		workerSemaphore <- struct{}{}

		// Increment the wait group counter
		wg.Add(1)
		inFlight.Add(1)

		// Process in a goroutine
		go func() {
			defer t.bufferPool.Put(buf)
			handleResponse(shardID, requestID, data)
		}()

		return nil
	}

	// Handle requests in a loop
	for {
		// Handle request
		err := handleRequest()
		if err == nil {
			continue
		}

		// Case idle: keep connections that wait for a blocking request
		if errors.Is(err, errIdle) {
			if inFlight.Load() > 0 {
				continue
			}
			Logger.Infof("Connection %d idle for %s, closing", connID, timeout)
			break
		}

		// Case EOF: Connection closed by client
		if errors.Is(err, io.EOF) || t.closed.Load() {
			Logger.Debugf("Connection %d closed", connID)
			break
		}

		// Case error: log and close connection
		Logger.Warningf("Error handling request of connection %d: %v", connID, err)
		break
	}

	// Release everything the connection holds before waiting for the workers,
	// pending lock requests only return once the disconnect handler ran
	if t.onDisconnect != nil {
		t.onDisconnect(connID)
	}

	// Wait for all workers to finish before closing the connection
	wg.Wait()
}
