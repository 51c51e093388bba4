package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple Implementation = "maple"
)

type DatabaseInfo struct {
	Entries   int            `json:"entries"`
	SizeBytes int            `json:"size_bytes"`
	DbType    Implementation `json:"db_type"`
	ClockNano int64          `json:"clock_nano"`
	Metadata  interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for key-value database implementations.
//
// Every operation carries the caller's notion of the current time as unix
// nanoseconds (now). Implementations keep a monotonic clock that only moves
// forward: a call with a now lower than the highest one seen so far is
// evaluated at the highest one. Entries written with a deleteIn > 0 are
// invisible to reads once the clock reaches their deletion time.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry without a deletion time.
	Set(key string, value []byte, now int64)

	// SetE inserts or updates an entry that is deleted deleteIn nanoseconds after now.
	// deleteIn=0 means the entry is never deleted automatically.
	SetE(key string, value []byte, now int64, deleteIn int64)

	// SetEIfUnset inserts an entry only if no live entry exists for the key.
	// It returns true if the entry was stored.
	SetEIfUnset(key string, value []byte, now int64, deleteIn int64) (stored bool)

	// Delete removes an entry with the specified key.
	Delete(key string, now int64)

	// DeleteIfValue removes the entry only if its current value equals value.
	// It returns true if an entry was removed.
	DeleteIfValue(key string, value []byte, now int64) (deleted bool)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a live value for the key was found.
	Get(key string, now int64) (value []byte, loaded bool)

	// Has checks whether a live entry exists for the key.
	Has(key string, now int64) (loaded bool)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Metadata
	// --------------------------------------------------------------------------

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Clock returns the highest now the database has seen.
	Clock() (now int64)

	// Close closes the database.
	Close() (err error)
}
