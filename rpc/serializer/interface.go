package serializer

import (
	"fmt"
	"github.com/ValentinKolb/dDoc/rpc/common"
)

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize overwrites msg with the Message encoded in b
	Deserialize(b []byte, msg *common.Message) error
}

// New returns the serializer registered under name ("json" or "binary")
func New(name string) (IRPCSerializer, error) {
	switch name {
	case "json":
		return NewJSONSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s (expected json or binary)", name)
	}
}
