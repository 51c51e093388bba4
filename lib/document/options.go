package document

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultCacheIdPrefix is prepended to the cache key to build the version key
	DefaultCacheIdPrefix = "ID_"
	// DefaultCompressThreshold is the snapshot size from which snapshots are compressed
	DefaultCompressThreshold = 10 * 1024

	defaultLockTimeout    = 10 * time.Second
	defaultLockExpiration = 10 * time.Second
)

// Options configures a document manager
type Options struct {
	CacheKey   string // Key of the snapshot in the distributed cache, defaults to the type name
	CacheIdKey string // Key of the version token, defaults to DefaultCacheIdPrefix + CacheKey

	LockTimeout    time.Duration // Max wait for the update lock
	LockExpiration time.Duration // Max time the update lock is held

	AbsoluteExpirationRelativeToNow time.Duration // Cache entry lifetime (0 = unlimited)
	SlidingExpiration               time.Duration // Memory entry idle lifetime (0 = unlimited)

	CheckConcurrency  bool // Fail durable commits on concurrent modification
	CompressThreshold int  // Compress snapshots from this size in bytes (0 = never)
	Volatile          bool // No durable store, the distributed cache is authoritative
}

// DefaultOptions returns the default options for cacheKey
func DefaultOptions(cacheKey string) Options {
	return Options{
		CacheKey:          cacheKey,
		LockTimeout:       defaultLockTimeout,
		LockExpiration:    defaultLockExpiration,
		CompressThreshold: DefaultCompressThreshold,
	}.WithDefaults()
}

// WithDefaults fills the unset keys and lock durations
func (o Options) WithDefaults() Options {
	if o.CacheIdKey == "" && o.CacheKey != "" {
		o.CacheIdKey = DefaultCacheIdPrefix + o.CacheKey
	}
	if o.LockTimeout == 0 {
		o.LockTimeout = defaultLockTimeout
	}
	if o.LockExpiration == 0 {
		o.LockExpiration = defaultLockExpiration
	}
	return o
}

// ErrInvalidOptions wraps every validation error
var ErrInvalidOptions = errors.New("invalid document options")

// Validate checks the options for consistency
func (o Options) Validate() error {
	switch {
	case o.CacheKey == "":
		return fmt.Errorf("%w: empty cache key", ErrInvalidOptions)
	case o.CacheIdKey == "":
		return fmt.Errorf("%w: empty cache id key", ErrInvalidOptions)
	case o.CacheKey == o.CacheIdKey:
		return fmt.Errorf("%w: cache key and cache id key are both %q", ErrInvalidOptions, o.CacheKey)
	case o.LockTimeout < 0:
		return fmt.Errorf("%w: negative lock timeout", ErrInvalidOptions)
	case o.LockExpiration < 0:
		return fmt.Errorf("%w: negative lock expiration", ErrInvalidOptions)
	case o.AbsoluteExpirationRelativeToNow < 0 || o.SlidingExpiration < 0:
		return fmt.Errorf("%w: negative expiration", ErrInvalidOptions)
	case o.CompressThreshold < 0:
		return fmt.Errorf("%w: negative compress threshold", ErrInvalidOptions)
	}
	return nil
}
