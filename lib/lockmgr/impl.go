package lockmgr

import (
	"github.com/ValentinKolb/dDoc/lib/store"
	"time"
)

type logMgmImpl struct {
	store store.IStore
}

// NewLockManager creates a lock manager that keeps its locks in the given store
func NewLockManager(store store.IStore) ILockManager {
	return &logMgmImpl{
		store: store,
	}
}

func (lp *logMgmImpl) AcquireLock(key string, expiration time.Duration) (bool, []byte, error) {
	ownerID, err := generateOwnerID()
	if err != nil {
		return false, nil, err
	}

	// Try to acquire the lock (by setting the value only if it doesn't exist - atomic CAS operation)
	stored, err := lp.store.SetEIfUnset(key, ownerID, expiration)
	if err != nil {
		return false, nil, err
	}
	if !stored {
		return false, nil, nil
	}
	return true, ownerID, nil
}

func (lp *logMgmImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	deleted, err := lp.store.DeleteIfValue(key, ownerID)
	if err != nil || deleted {
		return deleted, err
	}

	// Not deleted: either the lock is gone (expired) or someone else owns it now
	found, err := lp.store.Has(key)
	if err != nil {
		return false, err
	}
	return !found, nil
}

func (lp *logMgmImpl) IsLocked(key string) (bool, error) {
	return lp.store.Has(key)
}
