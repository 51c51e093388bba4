// Package common provides the data structures shared by the RPC client, the
// RPC server and the transports.
//
// Key Components:
//
//   - Message: the single request/response structure of the wire protocol.
//     Factory functions create the request and response for every IStore and
//     ILockManager operation. Durations travel as milliseconds (see ToMillis),
//     errors as text plus the store.RetCode they carried (see Message.Error).
//
//   - MessageType: enumeration of all operations, serialized as a string in JSON.
//
//   - ServerConfig / ClientConfig: configuration of server nodes (shards, RAFT
//     parameters, transport, metrics endpoint) and of clients (endpoints,
//     timeouts, retries). ServerConfig converts itself to Dragonboat configs.
//
//   - Logger: dragonboat logger.ILogger implementation that formats every line
//     as "LEVEL | name | message". InitLoggers installs it for dragonboat and for
//     all packages of this module.
package common
