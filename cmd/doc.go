// Package cmd implements the command-line interface of dDoc. It provides a
// hierarchical command structure with operations for running the server and
// for reading and updating documents as a client.
//
// The package is organized into several subpackages:
//
//   - doc: Commands for document operations (get, update, bench)
//   - lock: Commands for locking operations (acquire, release, is-locked)
//   - serve: Commands for starting and configuring the dDoc server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See ddoc -help for a list of all commands.
package cmd
