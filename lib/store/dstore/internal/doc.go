// Package internal provides the communication protocol structures and serialization
// logic for the dstore package. It defines the wire format used to transmit operations
// between the store client and the distributed state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
// Command Format (big endian):
//
//   - 1 byte: Command type (Set, SetE, SetEIfUnset, Delete, DeleteIfValue)
//   - 8 bytes: Now, the proposer's time in unix nanoseconds
//   - 8 bytes: DeleteIn in nanoseconds (0 = never)
//   - 4 bytes: Key length
//   - N bytes: Key data
//   - M bytes: Value data (optional)
//
// Conditional commands return ResultApplied or ResultNotApplied as result data.
//
// Queries are executed locally on the state machine and therefore never serialized.
package internal
