// Package ws implements a websocket transport for the lock server's RPC system.
// It lets clients reach the server through HTTP infrastructure (reverse proxies,
// load balancers) while keeping one long lived connection per client, which the
// server needs to tie locks to their holder.
//
// The package reuses the base transport: frames are written as binary websocket
// messages, and the server side adapts the websocket handler of golang.org/x/net
// to a net.Listener.
//
// Key Components:
//
//   - clientConnector: Dials ws://<endpoint>/rpc (or a given ws:// or wss:// url)
//
//   - serverConnector: Serves the websocket endpoint on Path and hands accepted
//     connections to the base transport
package ws
