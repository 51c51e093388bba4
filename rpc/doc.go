// Package rpc exposes stores and lock managers over the network so that several
// processes can share one distributed cache and one set of document locks.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol, server and client configuration, and logging.
//
//   - transport: Framed request/response transports over TCP and Unix sockets.
//
//   - serializer: Message encodings (binary, JSON).
//
//   - client: store.IStore and lockmgr.ILockManager implementations that forward
//     every call to a shard of a remote server.
//
//   - server: The RPC server with one adapter per shard.
package rpc
