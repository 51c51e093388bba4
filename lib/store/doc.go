// Package store provides a high-level interface for key-value storage operations
// with lease style deletion times, conditional writes and unified error handling.
// It serves as an abstraction layer over the lower-level db.KVDB implementations
// and owns the clock: the store reads the time once per operation and hands it
// down to the database.
//
// Key Components:
//
//   - IStore Interface: The core abstraction used by the lock manager, the
//     session and the distributed cache. Conditional writes (SetEIfUnset,
//     DeleteIfValue) are atomic, which is all the lock manager needs.
//
//   - Error System: Errors carry a RetCode, so callers can tell an unreachable
//     store (RetCUnavailable) from a rejected request.
//
//   - DBFactory: A function type that abstracts the creation of the underlying
//     db.KVDB instance.
//
// Implementations:
//
//   - Local Store (lstore): wraps a db.KVDB in the same process.
//   - Distributed Store (dstore): replicates the operations with Dragonboat
//     RAFT. The proposing node stamps each command with its time so all
//     replicas apply the same deletion deadlines.
//
// A third implementation talks to a remote server, see rpc/client.
package store
