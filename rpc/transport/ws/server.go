package ws

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/base"
	"github.com/ValentinKolb/dSync/rpc/transport/tcp"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/net/websocket"
	"net"
	"net/http"
	"sync"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	defaultBufferSize = 64 * 1024 // 64 KB

	// Path is the HTTP path of the websocket endpoint
	Path = "/rpc"
)

// serverConnector implements the IServerConnector interface for websockets.
// The websocket handshake runs inside an http.Server; accepted websockets are
// handed to the base transport through a net.Listener adapter.
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "ws"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	ln, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %v", err)
	}

	l := &listener{
		ln:    ln,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	var handler http.Handler = websocket.Server{Handler: l.serve}
	if config.LogLevel == "debug" {
		handler = loggerMiddleware(handler)
	}
	mux.Handle(Path, handler)

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ConnState: func(conn net.Conn, state http.ConnState) {
			if state != http.StateNew {
				return
			}
			if err := tcp.ApplyOptions(conn, config.Transport.SocketConf, config.Transport.TCPConf); err != nil {
				Logger.Warningf("Failed to apply socket options to %s: %v", conn.RemoteAddr(), err)
			}
		},
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Websocket server stopped: %v", err)
		}
	}()

	return l, nil
}

// UpgradeConnection is a no-op, the socket options are applied by the http.Server
func (c *serverConnector) UpgradeConnection(net.Conn, common.ServerConfig) error {
	return nil
}

// --------------------------------------------------------------------------
// Listener Adapter
// --------------------------------------------------------------------------

// listener implements net.Listener on top of the websocket handler
type listener struct {
	server *http.Server
	ln     net.Listener
	conns  chan net.Conn
	done   chan struct{}
	once   sync.Once
}

// serve hands the websocket to Accept and blocks until the base transport
// closed it, the websocket library closes the connection once serve returns
func (l *listener) serve(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	c := &conn{Conn: ws, closed: make(chan struct{})}

	select {
	case l.conns <- c:
	case <-l.done:
		return
	}

	select {
	case <-c.closed:
	case <-l.done:
	}
}

func (l *listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *listener) Close() error {
	l.once.Do(func() { close(l.done) })
	return l.server.Close()
}

func (l *listener) Addr() net.Addr {
	return l.ln.Addr()
}

// conn signals the handler goroutine when the base transport closes it
type conn struct {
	*websocket.Conn
	closed chan struct{}
	once   sync.Once
}

func (c *conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.Conn.Close()
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// loggerMiddleware logs the lifetime of websocket connections
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Process request
		next.ServeHTTP(w, r)

		// Log the request
		duration := time.Since(start)
		Logger.Debugf("%s %s from %s closed after %s", r.Method, r.URL.Path, r.RemoteAddr, duration)
	})
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewWSDefaultServerTransport creates a new websocket server transport with default buffer size
func NewWSDefaultServerTransport() transport.IRPCServerTransport {
	return NewWSServerTransport(defaultBufferSize)
}

// NewWSServerTransport creates a new websocket server transport with specified buffer size
func NewWSServerTransport(bufferSize int) transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, bufferSize)
}
