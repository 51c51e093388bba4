package store

import (
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/db"
	"time"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// IStore is the generic interface for interacting with a key–value store.
// Durations are relative to the time the store applies the operation.
// A zero (or negative) deleteIn means the entry is never deleted automatically.
type IStore interface {
	// Set inserts or updates a key–value pair.
	Set(key string, value []byte) (err error)
	// SetE inserts or updates a key–value pair that is deleted after deleteIn.
	SetE(key string, value []byte, deleteIn time.Duration) (err error)
	// SetEIfUnset inserts a key–value pair if no live entry exists for the key.
	// stored reports whether the value was written.
	SetEIfUnset(key string, value []byte, deleteIn time.Duration) (stored bool, err error)
	// Delete deletes a key–value pair.
	Delete(key string) (err error)
	// DeleteIfValue deletes the key only if its current value equals value.
	// deleted reports whether an entry was removed.
	DeleteIfValue(key string, value []byte) (deleted bool, err error)
	// Get return the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Has returns whether a live entry exists for the key.
	Has(key string) (loaded bool, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new KVStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCInvalidOperation                // 2: Invalid operation.
	RetCUnavailable                     // 3: The store could not be reached.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}
