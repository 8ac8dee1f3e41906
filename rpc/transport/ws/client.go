package ws

import (
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/base"
	"golang.org/x/net/websocket"
	"net"
	"strings"
	"time"
)

// dialTimeout bounds a single connection attempt
const dialTimeout = 5 * time.Second

// clientConnector implements the IClientConnector interface for websockets
type clientConnector struct {
	keepAlive time.Duration
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "ws"
}

// Connect dials endpoint, which is either host:port or a full ws:// or wss:// url
func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	url := endpoint
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + endpoint + Path
	}

	config, err := websocket.NewConfig(url, "http://localhost/")
	if err != nil {
		return nil, err
	}
	config.Dialer = &net.Dialer{Timeout: dialTimeout, KeepAlive: c.keepAlive}

	ws, err := websocket.DialConfig(config)
	if err != nil {
		return nil, err
	}
	ws.PayloadType = websocket.BinaryFrame
	return ws, nil
}

// UpgradeConnection stores the keep-alive period for the following dials, the
// underlying socket of a websocket is not accessible
func (c *clientConnector) UpgradeConnection(_ net.Conn, config common.ClientConfig) error {
	c.keepAlive = time.Duration(config.Transport.TCPKeepAliveSec) * time.Second
	return nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewWSClientTransport creates a new websocket client transport
func NewWSClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
