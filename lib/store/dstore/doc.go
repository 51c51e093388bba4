// Package dstore implements store.IStore on a Dragonboat RAFT shard, so the
// distributed cache, the document locks and the committed documents survive
// the loss of a minority of nodes.
//
// Every write is serialized into a Command (see the internal package) and
// proposed with SyncPropose. Reads go through SyncRead and are linearizable.
//
// Time is taken once, on the proposing node: Command.Now and Query.Now carry
// the proposer's clock, and the state machine hands that value to the engine.
// All replicas therefore compute the same deletion deadline for SetE and
// SetEIfUnset, and a lease expires at the same log position everywhere.
//
// SetEIfUnset and DeleteIfValue are decided inside the state machine. The
// result bytes report whether the command was applied, which is what makes
// the lock manager safe on top of this store.
//
// ErrSystemBusy is retried up to 5 times. Any other Dragonboat error, and a
// proposal that still finds the system busy after the retries, is returned as
// a *store.Error with RetCUnavailable.
//
// Usage:
//
//	nh.StartConcurrentReplica(members, false, dstore.CreateStateMaschineFactory(dbFactory), cfg)
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second, nil)
package dstore
