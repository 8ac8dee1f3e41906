package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/lockmgr"
	"github.com/ValentinKolb/dSync/lib/primitives"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the lock namespace of the shard and the adapter
// that handles requests for it
type serverShard struct {
	Group   *lockmgr.Group
	Adapter IRPCServerAdapter
}

// connection holds the sessions of one client connection, one per shard the
// connection used
type connection struct {
	id       primitives.ConnID
	addr     net.Addr
	mu       sync.Mutex
	sessions map[uint64]*lockmgr.Session
	closed   bool
}

// Acceptor decides if a new connection is accepted
type Acceptor func(addr net.Addr) bool

// Option configures the RPC server
type Option func(*rpcServer)

// WithAcceptor installs a filter for new connections. Rejected connections are
// closed before their first request is read.
func WithAcceptor(acceptor Acceptor) Option {
	return func(s *rpcServer) {
		s.acceptor = acceptor
	}
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPDefaultServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	opts ...Option,
) *rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	// Create the RPC server
	s := &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
		conns:      xsync.NewMapOf[primitives.ConnID, *connection](),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return s
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	conns      *xsync.MapOf[primitives.ConnID, *connection]
	acceptor   Acceptor

	stop     chan struct{}
	stopOnce sync.Once
}

// --------------------------------------------------------------------------
// Connection Handling
// --------------------------------------------------------------------------

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterConnectionHandlers(s.onConnect, s.onDisconnect)

	s.transport.RegisterHandler(func(connID, shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Get appropriate shard
		shard, ok := s.shards.Load(shardId)

		// Case shard does not exist -> error
		if !ok {
			respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			// Case request can not be decoded -> error
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else if session, err := s.session(primitives.ConnID(connID), shardId, shard); err != nil {
			// Case connection is already gone -> error with code
			respMsg = common.NewResponse(msg.MsgType, false, 0, err)
		} else {
			// Let the adapter handle the request
			respMsg = shard.Adapter.Handle(context.Background(), &msg, session)
		}

		// Return result
		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// onConnect registers a new connection
func (s *rpcServer) onConnect(connID uint64, addr net.Addr) bool {
	if s.acceptor != nil && !s.acceptor(addr) {
		Logger.Infof("Rejected connection %d from %s", connID, addr)
		return false
	}

	s.conns.Store(primitives.ConnID(connID), &connection{
		id:       primitives.ConnID(connID),
		addr:     addr,
		sessions: make(map[uint64]*lockmgr.Session),
	})
	return true
}

// onDisconnect closes all sessions of the connection, which releases every lock
// it held and ends its pending requests
func (s *rpcServer) onDisconnect(connID uint64) {
	conn, ok := s.conns.LoadAndDelete(primitives.ConnID(connID))
	if !ok {
		return
	}

	conn.mu.Lock()
	conn.closed = true
	sessions := conn.sessions
	conn.sessions = nil
	conn.mu.Unlock()

	for shardID, session := range sessions {
		if err := session.Close(); err != nil {
			Logger.Warningf("failed to close session of connection %d on shard %d: %v", connID, shardID, err)
		}
	}
	Logger.Debugf("Connection %d from %s closed %d session(s)", connID, conn.addr, len(sessions))
}

// session returns the session of the connection for the shard, creating it on
// first use
func (s *rpcServer) session(connID primitives.ConnID, shardID uint64, shard serverShard) (*lockmgr.Session, error) {
	conn, ok := s.conns.Load(connID)
	if !ok {
		return nil, primitives.NewError(primitives.RetCClosed, fmt.Sprintf("connection %d is closed", connID))
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.closed {
		return nil, primitives.NewError(primitives.RetCClosed, fmt.Sprintf("connection %d is closed", connID))
	}

	session, ok := conn.sessions[shardID]
	if !ok {
		session = shard.Group.NewSession(connID)
		conn.sessions[shardID] = session
	}
	return session, nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (s *rpcServer) init() error {

	// Init logger
	common.InitLoggers(s.config)

	if len(s.config.Shards) == 0 {
		return fmt.Errorf("no shards configured")
	}

	// CREATE SHARDS

	/*
		Note: A single RPC Server can have any number of shards. Each shard is an
		independent lock namespace, the same name refers to different primitives
		in different shards.
	*/

	for _, shardConfig := range s.config.Shards {
		if shardConfig.Type != common.ShardTypeLockManager {
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
		if _, loaded := s.shards.Load(shardConfig.ShardID); loaded {
			return fmt.Errorf("duplicate shard id: %d", shardConfig.ShardID)
		}

		s.shards.Store(shardConfig.ShardID, serverShard{
			Group:   lockmgr.NewGroup(fmt.Sprintf("shard-%d", shardConfig.ShardID)),
			Adapter: NewLockManagerServerAdapter(),
		})
		Logger.Infof("created lock manager for shard %d", shardConfig.ShardID)
	}

	Logger.Infof("dSync setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// Serve starts the RPC server
// This function will also initialize the shards, start the transport layer and,
// if configured, the metrics endpoint. It blocks until Shutdown is called or one
// of them fails.
func (s *rpcServer) Serve() error {
	err := s.init()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(context.Background())

	// Transport
	g.Go(func() error {
		return s.transport.Listen(s.config)
	})

	// Metrics endpoint
	var metricsServer *http.Server
	if s.config.MetricsEndpoint != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			metrics.WritePrometheus(w, true)
		})
		metricsServer = &http.Server{
			Addr:              s.config.MetricsEndpoint,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics endpoint failed: %w", err)
			}
			return nil
		})
	}

	// Stop everything on Shutdown or on the first failure
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-s.stop:
		}

		if metricsServer != nil {
			metricsServer.Close()
		}
		return s.transport.Close()
	})

	return g.Wait()
}

// Shutdown stops the server. All connections are closed, which releases
// everything they held.
func (s *rpcServer) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// Groups returns the lock namespace of every shard
func (s *rpcServer) Groups() map[uint64]*lockmgr.Group {
	groups := make(map[uint64]*lockmgr.Group)
	s.shards.Range(func(id uint64, shard serverShard) bool {
		groups[id] = shard.Group
		return true
	})
	return groups
}
