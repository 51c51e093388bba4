package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/klauspost/compress/zstd"
)

// ErrCorruptSnapshot is returned when a cached snapshot can not be decoded
var ErrCorruptSnapshot = errors.New("corrupt document snapshot")

const (
	flagRaw  byte = 0
	flagZstd byte = 1
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// snapshot is the value stored in the distributed cache
type snapshot struct {
	Version string          `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// encodeSnapshot serializes doc with its version. The result is prefixed with one
// flag byte, payloads of at least threshold bytes are compressed (threshold 0 = never).
func encodeSnapshot(version string, doc any, threshold int) ([]byte, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	data, err := json.Marshal(snapshot{Version: version, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	if threshold > 0 && len(data) >= threshold {
		out := make([]byte, 1, len(data)/2)
		out[0] = flagZstd
		return zstdEncoder.EncodeAll(data, out), nil
	}

	out := make([]byte, 0, len(data)+1)
	out = append(out, flagRaw)
	return append(out, data...), nil
}

// decodeSnapshot reverses encodeSnapshot. Every failure wraps ErrCorruptSnapshot.
func decodeSnapshot(data []byte) (snapshot, error) {
	var s snapshot
	if len(data) == 0 {
		return s, fmt.Errorf("%w: empty", ErrCorruptSnapshot)
	}

	body := data[1:]
	switch data[0] {
	case flagRaw:
	case flagZstd:
		var err error
		if body, err = zstdDecoder.DecodeAll(body, nil); err != nil {
			return s, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	default:
		return s, fmt.Errorf("%w: unknown flag %d", ErrCorruptSnapshot, data[0])
	}

	if err := json.Unmarshal(body, &s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if s.Version == "" || len(s.Payload) == 0 {
		return s, fmt.Errorf("%w: missing version or payload", ErrCorruptSnapshot)
	}
	return s, nil
}

// decodeDocument unmarshals a payload into a fresh instance created by factory
func decodeDocument[T Document](payload []byte, factory func() T) (T, error) {
	doc := factory()
	if err := json.Unmarshal(payload, doc); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return doc, nil
}
