// Package cmd implements the command-line interface of the dSync lock server.
// It provides a hierarchical command structure with operations for running the
// server and coordinating processes as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the dSync server
//   - lock: Client commands (run a command under a mutex or semaphore, barrier,
//     latch and condition variable helpers, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dsync -help for a list of all commands.
package cmd
