// Package db provides a standardized interface for the key-value engines that
// back the distributed cache, the lock leases and the durable document store.
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides plain writes (Set), writes with an automatic deletion time (SetE),
//     conditional writes (SetEIfUnset, DeleteIfValue), reads (Get, Has) and
//     persistence (Save, Load).
//
//   - Database Information: The DatabaseInfo structure reports the number of
//     entries, an estimated size and the current engine clock.
//
// Note on Time:
//   - Every operation receives the current time (unix nanoseconds) from the caller.
//     Local stores pass their clock, the raft store passes the time recorded by the
//     proposing node so all replicas evaluate deletions identically.
//   - Monotonicity Guarantee: the engine clock only moves forward. Calls with an older
//     timestamp are evaluated at the engine clock.
//   - External Consistency: Get and Has never return an entry whose deletion time has
//     passed, even if the entry still exists internally pending garbage collection.
//
// Related Packages:
//
// The engines/maple package provides a sharded in-memory implementation. The testing
// package provides RunKVDBTests, a conformance suite for KVDB implementations.
package db
