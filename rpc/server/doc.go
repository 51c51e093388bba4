// Package server exposes stores and lock managers over an RPC transport so that
// several processes can share one document cache and one set of distributed
// locks.
//
// A server hosts any number of shards, each identified by a shard id and backed
// by one of four types:
//
//   - ShardTypeLocalIStore: an in-process maple store (lstore).
//   - ShardTypeRemoteIStore: a raft replicated store (dstore). Requires the RAFT
//     settings (RTTMillisecond, SnapshotEntries, CompactionOverhead, DataDir,
//     ReplicaID, ClusterMembers).
//   - ShardTypeLocalILockManager: a lock manager on top of a local store.
//   - ShardTypeRemoteILockManager: a lock manager on top of a raft replicated store.
//
// Requests are answered by an IRPCServerAdapter created for the shard's
// backend. Every request increments ddoc_rpc_requests_total{type}; when
// MetricsEndpoint is set all VictoriaMetrics metrics of the process are served
// on <MetricsEndpoint>/metrics.
//
// Usage:
//
//	s := server.NewRPCServer(common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocalIStore},
//	    {ShardID: 200, Type: common.ShardTypeLocalILockManager},
//	  },
//	  TimeoutSecond: 5,
//	  Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  LogLevel:      "info",
//	}, tcp.NewTCPDefaultServerTransport(), serializer.NewBinarySerializer())
//
//	go s.Serve()
//	defer s.Close()
package server
