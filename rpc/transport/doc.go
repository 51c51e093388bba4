// Package transport defines the interfaces of the RPC transport layer. A
// transport moves opaque request and response bytes between client and server
// and routes every request to a shard id; serialization happens above it.
//
// Implementations live in the sub packages: base holds the framing, connection
// pooling and worker logic, tcp and unix plug in the network specific parts.
package transport
