package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/store"
	"time"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key      string `json:"key,omitempty"`      // Used for: all KV and lock operations
	DeleteIn uint64 `json:"deleteIn,omitempty"` // Milliseconds. Used for: SetE, SetEIfUnset, Acquire
	Value    []byte `json:"value,omitempty"`    // Used for: Set, DeleteIfValue, Release (request), Get, Acquire (response)

	// Response only fields
	Ok   bool   `json:"ok,omitempty"`   // Used for: Get, Has, SetEIfUnset, DeleteIfValue and lock responses
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message
	Code uint8  `json:"code,omitempty"` // store.RetCode of the error, if the error was a *store.Error

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: GetDBInfo responses (json encoded db.DatabaseInfo)
}

// ToMillis converts a duration to the wire representation. Negative durations become 0.
func ToMillis(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms == 0 {
		// sub-millisecond expiries still expire
		ms = 1
	}
	return uint64(ms)
}

// FromMillis converts the wire representation of a duration back to a time.Duration.
func FromMillis(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// setErr fills the error fields of a response.
func (m *Message) setErr(err error) *Message {
	if err == nil {
		return m
	}
	m.Err = err.Error()
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		m.Code = uint8(storeErr.Code)
		m.Err = storeErr.Msg
	}
	return m
}

// Error returns the error carried by a response, or nil.
// Errors that originated from a store are returned as *store.Error with their original code.
func (m *Message) Error() error {
	if m.MsgType == MsgTError {
		return store.NewError(store.RetCUnavailable, m.Err)
	}
	if m.Err == "" {
		return nil
	}
	if m.Code != 0 {
		return store.NewError(store.RetCode(m.Code), m.Err)
	}
	return errors.New(m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSetRequest creates a new Set request
func NewSetRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTKVSet,
		Key:     key,
		Value:   value,
	}
}

// NewSetResponse creates a new Set response
func NewSetResponse(err error) *Message {
	return (&Message{MsgType: MsgTKVSet}).setErr(err)
}

// NewSetERequest creates a new SetE request
func NewSetERequest(key string, value []byte, deleteIn time.Duration) *Message {
	return &Message{
		MsgType:  MsgTKVSetE,
		Key:      key,
		Value:    value,
		DeleteIn: ToMillis(deleteIn),
	}
}

// NewSetEResponse creates a new SetE response
func NewSetEResponse(err error) *Message {
	return (&Message{MsgType: MsgTKVSetE}).setErr(err)
}

// NewSetEIfUnsetRequest creates a new SetEIfUnset request
func NewSetEIfUnsetRequest(key string, value []byte, deleteIn time.Duration) *Message {
	return &Message{
		MsgType:  MsgTKVSetEIfUnset,
		Key:      key,
		Value:    value,
		DeleteIn: ToMillis(deleteIn),
	}
}

// NewSetEIfUnsetResponse creates a new SetEIfUnset response
func NewSetEIfUnsetResponse(stored bool, err error) *Message {
	return (&Message{MsgType: MsgTKVSetEIfUnset, Ok: stored}).setErr(err)
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVDelete,
		Key:     key,
	}
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(err error) *Message {
	return (&Message{MsgType: MsgTKVDelete}).setErr(err)
}

// NewDeleteIfValueRequest creates a new DeleteIfValue request
func NewDeleteIfValueRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTKVDeleteIfValue,
		Key:     key,
		Value:   value,
	}
}

// NewDeleteIfValueResponse creates a new DeleteIfValue response
func NewDeleteIfValueResponse(deleted bool, err error) *Message {
	return (&Message{MsgType: MsgTKVDeleteIfValue, Ok: deleted}).setErr(err)
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	return (&Message{MsgType: MsgTKVGet, Ok: ok, Value: value}).setErr(err)
}

// NewHasRequest creates a new Has request
func NewHasRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVHas,
		Key:     key,
	}
}

// NewHasResponse creates a new Has response
func NewHasResponse(ok bool, err error) *Message {
	return (&Message{MsgType: MsgTKVHas, Ok: ok}).setErr(err)
}

// NewGetDBInfoRequest creates a new GetDBInfo request
func NewGetDBInfoRequest() *Message {
	return &Message{MsgType: MsgTKVGetDBInfo}
}

// NewGetDBInfoResponse creates a new GetDBInfo response, info is the json encoded db.DatabaseInfo
func NewGetDBInfoResponse(info []byte, err error) *Message {
	return (&Message{MsgType: MsgTKVGetDBInfo, Meta: info}).setErr(err)
}

// NewAcquireRequest creates a new Acquire request
func NewAcquireRequest(key string, expiration time.Duration) *Message {
	return &Message{
		MsgType:  MsgTLCKAcquire,
		Key:      key,
		DeleteIn: ToMillis(expiration),
	}
}

// NewAcquireResponse creates a new Acquire response
func NewAcquireResponse(ok bool, ownerID []byte, err error) *Message {
	return (&Message{MsgType: MsgTLCKAcquire, Ok: ok, Value: ownerID}).setErr(err)
}

// NewReleaseRequest creates a new Release request
func NewReleaseRequest(key string, ownerID []byte) *Message {
	return &Message{
		MsgType: MsgTLCKRelease,
		Key:     key,
		Value:   ownerID,
	}
}

// NewReleaseResponse creates a new Release response
func NewReleaseResponse(ok bool, err error) *Message {
	return (&Message{MsgType: MsgTLCKRelease, Ok: ok}).setErr(err)
}

// NewIsLockedRequest creates a new IsLocked request
func NewIsLockedRequest(key string) *Message {
	return &Message{
		MsgType: MsgTLCKIsLocked,
		Key:     key,
	}
}

// NewIsLockedResponse creates a new IsLocked response
func NewIsLockedResponse(locked bool, err error) *Message {
	return (&Message{MsgType: MsgTLCKIsLocked, Ok: locked}).setErr(err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:         "success",
	MsgTError:           "error",
	MsgTKVSet:           "set",
	MsgTKVSetE:          "setE",
	MsgTKVSetEIfUnset:   "setEIfUnset",
	MsgTKVDelete:        "delete",
	MsgTKVDeleteIfValue: "deleteIfValue",
	MsgTKVGet:           "get",
	MsgTKVHas:           "has",
	MsgTKVGetDBInfo:     "getDBInfo",
	MsgTLCKAcquire:      "acquire",
	MsgTLCKRelease:      "release",
	MsgTLCKIsLocked:     "isLocked",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTKVSet           // Set a key-value pair
	MsgTKVSetE          // Set a key-value pair with expiration
	MsgTKVSetEIfUnset   // Set a key-value pair if not already set
	MsgTKVDelete        // Delete a key-value pair
	MsgTKVDeleteIfValue // Delete a key-value pair if it holds the given value
	MsgTKVGet           // Get a value by key
	MsgTKVHas           // Check if a key exists
	MsgTKVGetDBInfo     // Get information about the underlying database

	// ILockManager operations

	MsgTLCKAcquire  // Acquire a lock
	MsgTLCKRelease  // Release a lock
	MsgTLCKIsLocked // Check whether a lock is held
)
