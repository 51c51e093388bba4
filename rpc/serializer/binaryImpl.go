package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dDoc/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	[MsgType:1][flags:1] followed by the fields whose flag is set, in flag order.
//
// Strings and byte slices are length prefixed (uint32), numbers are big endian.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey      byte = 1 << 0
	hasDeleteIn byte = 1 << 1
	hasValue    byte = 1 << 2
	hasOk       byte = 1 << 3
	hasErr      byte = 1 << 4
	hasCode     byte = 1 << 5
	hasMeta     byte = 1 << 6
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, 2, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags byte
	if msg.Key != "" {
		flags |= hasKey
		result = appendBytes(result, []byte(msg.Key))
	}
	if msg.DeleteIn > 0 {
		flags |= hasDeleteIn
		result = binary.BigEndian.AppendUint64(result, msg.DeleteIn)
	}
	// a nil value and an empty value are different (Get of an empty value)
	if msg.Value != nil {
		flags |= hasValue
		result = appendBytes(result, msg.Value)
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Err != "" {
		flags |= hasErr
		result = appendBytes(result, []byte(msg.Err))
	}
	if msg.Code != 0 {
		flags |= hasCode
		result = append(result, msg.Code)
	}
	if msg.Meta != nil {
		flags |= hasMeta
		result = appendBytes(result, msg.Meta)
	}

	result[1] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	r := reader{data: data, pos: 2}
	flags := data[1]

	*msg = common.Message{
		MsgType: common.MessageType(data[0]),
		Ok:      flags&hasOk != 0,
	}

	if flags&hasKey != 0 {
		key, err := r.bytes("key")
		if err != nil {
			return err
		}
		msg.Key = string(key)
	}
	if flags&hasDeleteIn != 0 {
		if r.pos+8 > len(data) {
			return fmt.Errorf("data too short for DeleteIn")
		}
		msg.DeleteIn = binary.BigEndian.Uint64(data[r.pos : r.pos+8])
		r.pos += 8
	}
	if flags&hasValue != 0 {
		value, err := r.bytes("value")
		if err != nil {
			return err
		}
		msg.Value = append([]byte{}, value...)
	}
	if flags&hasErr != 0 {
		errMsg, err := r.bytes("error")
		if err != nil {
			return err
		}
		msg.Err = string(errMsg)
	}
	if flags&hasCode != 0 {
		if r.pos+1 > len(data) {
			return fmt.Errorf("data too short for error code")
		}
		msg.Code = data[r.pos]
		r.pos++
	}
	if flags&hasMeta != 0 {
		meta, err := r.bytes("meta")
		if err != nil {
			return err
		}
		msg.Meta = append([]byte{}, meta...)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.DeleteIn > 0 {
		size += 8
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Code != 0 {
		size += 1
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}

// appendBytes appends a length prefixed byte slice
func appendBytes(dst []byte, b []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

// reader reads length prefixed fields from a serialized message
type reader struct {
	data []byte
	pos  int
}

// bytes reads a length prefixed field, the returned slice aliases the input
func (r *reader) bytes(field string) ([]byte, error) {
	if r.pos+4 > len(r.data) {
		return nil, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(r.data[r.pos : r.pos+4]))
	r.pos += 4

	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("data too short for %s data", field)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}
