// Package tcp implements TCP socket-based transport for the lock server's RPC
// system. It provides concrete implementations of the base package's connector
// interfaces optimized for TCP connections.
//
// This package builds on the base package's transport functionality, inheriting
// its buffer reuse, request routing and connection lifecycle handling. See the
// base package documentation for details.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
//   - ApplyOptions: Applies SocketConf and TCPConf to a connection. Keep-alive
//     matters for a lock server: a peer that vanished without closing its socket
//     is only detected (and its locks released) once keep-alive messages go unanswered.
package tcp
