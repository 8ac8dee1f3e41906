// Package common provides core data structures and utilities shared across
// the lock server and its clients. It defines the wire message, the
// configuration structures and the logging setup used by other packages.
//
// The package focuses on:
//   - Message protocol definition for client server communication
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with the Dragonboat logger
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. One message type
//     exists per operation of the lock manager (e.g. mutex.lock, semaphore.release).
//     Errors travel as text plus a primitives.RetCode, so clients can classify
//     them with errors.Is.
//
//   - MessageType: Enumeration of all supported operations, grouped by primitive
//     kind (mutex, semaphore, condition variable, barrier, latch).
//
//   - ServerConfig: Configuration of the server: shards, transport, metrics
//     endpoint and log level.
//
//   - ClientConfig: Configuration for client components, controlling endpoints,
//     timeouts and retry behavior.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
