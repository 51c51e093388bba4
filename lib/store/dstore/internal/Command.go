package internal

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTSet           CommandType = iota // Insert or update an entry.
	CommandTSetE                             // Insert or update an entry with a deletion time.
	CommandTSetIfUnset                       // Insert an entry if no live entry exists.
	CommandTDelete                           // Delete an entry.
	CommandTDeleteIfValue                    // Delete an entry if it holds the given value.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTSet:
		return "Set"
	case CommandTSetE:
		return "SetE"
	case CommandTSetIfUnset:
		return "SetIfUnset"
	case CommandTDelete:
		return "Delete"
	case CommandTDeleteIfValue:
		return "DeleteIfValue"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// IsConditional returns whether the command reports if it was applied
func (ct CommandType) IsConditional() bool {
	return ct == CommandTSetIfUnset || ct == CommandTDeleteIfValue
}

// headerSize is Type + Now + DeleteIn + KeyLen
const headerSize = 1 + 8 + 8 + 4

// Command represents a command to be executed by the state machine (a single entry in the raft log).
// Now is the unix nanosecond time of the proposing node, every replica applies the
// command at that time so deletion deadlines are identical across the cluster.
type Command struct {
	Type     CommandType
	Key      string
	Now      int64
	DeleteIn int64
	Value    []byte
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return headerSize + len(command.Key) + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for now,
// 8 bytes for deleteIn,
// 4 bytes for key length (big endian),
// N bytes for key data,
// N bytes for value data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], uint64(command.Now))
	binary.BigEndian.PutUint64(result[9:17], uint64(command.DeleteIn))
	binary.BigEndian.PutUint32(result[17:21], uint32(len(command.Key)))

	copy(result[headerSize:], command.Key)
	copy(result[headerSize+len(command.Key):], command.Value)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Now = int64(binary.BigEndian.Uint64(data[1:9]))
	command.DeleteIn = int64(binary.BigEndian.Uint64(data[9:17]))

	keyLen := int(binary.BigEndian.Uint32(data[17:21]))
	if len(data) < headerSize+keyLen {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	command.Key = string(data[headerSize : headerSize+keyLen])

	if valueLen := len(data) - (headerSize + keyLen); valueLen > 0 {
		// Reuse existing buffer if possible to reduce allocations
		if command.Value == nil || cap(command.Value) < valueLen {
			command.Value = make([]byte, valueLen)
		} else {
			command.Value = command.Value[:valueLen]
		}
		copy(command.Value, data[headerSize+keyLen:])
	} else {
		command.Value = nil
	}

	return nil
}
