package cache

import (
	"context"
	"time"
)

// DistributedEntryOptions configures an entry of the distributed cache
type DistributedEntryOptions struct {
	// AbsoluteExpirationRelativeToNow removes the entry after the given duration (0 = never)
	AbsoluteExpirationRelativeToNow time.Duration
}

// IDistributedCache is a byte cache shared by all processes that use the same store.
type IDistributedCache interface {
	// Get returns the cached bytes for key. loaded is false on a miss.
	Get(ctx context.Context, key string) (value []byte, loaded bool, err error)
	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte, opts DistributedEntryOptions) error
	// Add stores value under key only if the key holds no value. added reports whether it was stored.
	Add(ctx context.Context, key string, value []byte, opts DistributedEntryOptions) (added bool, err error)
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// RemoveIfValue deletes key only if it still holds value.
	RemoveIfValue(ctx context.Context, key string, value []byte) (removed bool, err error)
}

// MemoryEntryOptions configures an entry of the memory cache
type MemoryEntryOptions struct {
	// AbsoluteExpirationRelativeToNow removes the entry after the given duration (0 = never)
	AbsoluteExpirationRelativeToNow time.Duration
	// SlidingExpiration removes the entry if it was not read for the given duration (0 = never)
	SlidingExpiration time.Duration
}

// IMemoryCache is a process local cache of decoded values. Every entry carries a tag,
// callers use it to check if the entry still belongs to the current distributed version.
type IMemoryCache[T any] interface {
	// Get returns the value and tag stored for key.
	Get(key string) (value T, tag string, loaded bool)
	// Set stores value under key, replacing any previous entry.
	Set(key string, value T, tag string, opts MemoryEntryOptions)
	// Remove deletes key.
	Remove(key string)
	// Len returns the number of stored entries, including expired ones not yet compacted.
	Len() int
	// Compact removes all expired entries.
	Compact()
}
