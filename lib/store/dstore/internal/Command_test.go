package internal

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with key and value",
			command: Command{
				Type:     CommandTSetE,
				Key:      "testkey",
				Now:      100,
				DeleteIn: 200,
				Value:    []byte("testvalue"),
			},
			expected: 1 + 8 + 8 + 4 + 7 + 9, // Type + Now + DeleteIn + KeyLen + Key + Value
		},
		{
			name: "Command with empty key and value",
			command: Command{
				Type:     CommandTSetE,
				Key:      "",
				Now:      100,
				DeleteIn: 200,
				Value:    []byte("testvalue"),
			},
			expected: 1 + 8 + 8 + 4 + 0 + 9,
		},
		{
			name: "Command without value",
			command: Command{
				Type: CommandTDelete,
				Key:  "k",
			},
			expected: 1 + 8 + 8 + 4 + 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Standard command with value",
			command: Command{
				Type:     CommandTSetE,
				Key:      "testkey",
				Now:      1704067200000000000,
				DeleteIn: 200,
				Value:    []byte("testvalue"),
			},
		},
		{
			name: "Command without value",
			command: Command{
				Type: CommandTDelete,
				Key:  "testkey",
				Now:  100,
			},
		},
		{
			name: "Conditional delete with owner",
			command: Command{
				Type:  CommandTDeleteIfValue,
				Key:   "lock",
				Now:   100,
				Value: []byte{0, 1, 2, 3, 254, 255},
			},
		},
		{
			name: "Command with extreme times",
			command: Command{
				Type:     CommandTSetIfUnset,
				Key:      "testkey",
				Now:      math.MaxInt64,
				DeleteIn: math.MinInt64,
				Value:    []byte("testvalue"),
			},
		},
		{
			name: "Command with Unicode key",
			command: Command{
				Type:  CommandTSet,
				Key:   "你好世界",
				Now:   100,
				Value: []byte("unicode test"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var newCommand Command
			if err := newCommand.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if newCommand.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", newCommand.Type, tt.command.Type)
			}
			if newCommand.Key != tt.command.Key {
				t.Errorf("Key mismatch: got %q, want %q", newCommand.Key, tt.command.Key)
			}
			if newCommand.Now != tt.command.Now {
				t.Errorf("Now mismatch: got %v, want %v", newCommand.Now, tt.command.Now)
			}
			if newCommand.DeleteIn != tt.command.DeleteIn {
				t.Errorf("DeleteIn mismatch: got %v, want %v", newCommand.DeleteIn, tt.command.DeleteIn)
			}
			if !bytes.Equal(newCommand.Value, tt.command.Value) {
				t.Errorf("Value mismatch: got %v, want %v", newCommand.Value, tt.command.Value)
			}
		})
	}
}

// TestDeserializeErrors tests malformed input
func TestDeserializeErrors(t *testing.T) {
	tooLongKey := make([]byte, headerSize)
	binary.BigEndian.PutUint32(tooLongKey[17:21], 10)

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"Header only partially", []byte{0, 1, 2}},
		{"Key length beyond data", tooLongKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Command
			if err := c.Deserialize(tt.data); err == nil {
				t.Errorf("expected error for %v", tt.data)
			}
		})
	}
}

// TestDeserializeReusesBuffer checks that a reused command does not keep stale values
func TestDeserializeReusesBuffer(t *testing.T) {
	var c Command
	first := Command{Type: CommandTSet, Key: "a", Value: []byte("long value")}
	second := Command{Type: CommandTDelete, Key: "b"}

	if err := c.Deserialize(first.Serialize()); err != nil {
		t.Fatal(err)
	}
	if err := c.Deserialize(second.Serialize()); err != nil {
		t.Fatal(err)
	}
	if c.Value != nil {
		t.Errorf("expected nil value, got %q", c.Value)
	}
}

func TestIsConditional(t *testing.T) {
	for _, ct := range []CommandType{CommandTSet, CommandTSetE, CommandTDelete} {
		if ct.IsConditional() {
			t.Errorf("%s should not be conditional", ct)
		}
	}
	for _, ct := range []CommandType{CommandTSetIfUnset, CommandTDeleteIfValue} {
		if !ct.IsConditional() {
			t.Errorf("%s should be conditional", ct)
		}
	}
}
