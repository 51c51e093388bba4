package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// UintKey is a uint64 key used for internal hash representation
type UintKey uint64

// HashString hashes s with FNV-1a, mixing in seed.
// With seed 0 the result is stable across processes, which the server
// configuration relies on to derive replica IDs from names.
func HashString(s string, seed uint64) UintKey {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return UintKey(hash)
}
