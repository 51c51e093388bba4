package lockmgr

import (
	"context"
	"time"
)

// ILockManager defines the interface for a lock provider.
// Every call is a single attempt, waiting is done by IDistributedLock.
type ILockManager interface {
	// AcquireLock tries once to acquire the lock for the given key. The lock is released
	// automatically after expiration (0 means the lock never expires).
	// Return a boolean indicating whether the lock was acquired, an owner ID, and an error if any.
	AcquireLock(key string, expiration time.Duration) (ok bool, ownerID []byte, err error)

	// ReleaseLock releases the lock for the given key.
	// Return a boolean indicating whether the lock was released, and an error if any.
	// The method will also return true if the lock did not exist (e.g. because it expired).
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)

	// IsLocked reports whether someone currently holds the lock for the given key.
	IsLocked(key string) (locked bool, err error)
}

// IDistributedLock is a named mutex shared by all processes that use the same store.
type IDistributedLock interface {
	// TryAcquireLock waits up to timeout for the lock called name. The lease expires after
	// expiration (0 = DefaultLockExpiration). acquired=false with a nil error means someone
	// else held the lock for the whole timeout.
	TryAcquireLock(ctx context.Context, name string, timeout, expiration time.Duration) (locker *Locker, acquired bool, err error)

	// IsLockAcquired reports whether any holder currently owns the lock called name.
	IsLockAcquired(ctx context.Context, name string) (bool, error)
}
