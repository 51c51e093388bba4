// Package maple implements a sharded in-memory key-value database that
// satisfies the db.KVDB interface.
//
// Keys are spread across shards by a seeded FNV-1a hash. Each shard is an
// xsync.MapOf, every write goes through MapOf.Compute so conditional writes
// (SetEIfUnset, DeleteIfValue) are atomic per key without a global lock.
//
// Time: the database never reads the system clock. Every call carries a
// unix-nanosecond timestamp, the database clock is the maximum seen so far.
// An entry written with deleteIn > 0 stores DeleteAt = now + deleteIn and is
// invisible to reads once the clock reaches DeleteAt. Since replicas apply the
// same timestamps, the outcome is deterministic when the database backs a
// raft state machine.
//
// Garbage collection: a background goroutine wakes up every GCInterval and
// removes logically deleted entries. Shards that hold no entry with a
// deletion time are skipped.
//
// Persistence format (little endian):
//  1. Magic number "MAPLEDB\x00"
//  2. Version (uint8, currently 4)
//  3. Clock (int64)
//  4. Number of entries (uint64)
//  5. Per entry: key length, key, deleteAt, writeAt, value length, value
//
// Snapshots are fuzzy, the caller has to provide consistency if needed.
package maple
