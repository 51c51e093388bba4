// Package lockmgr implements named, expiring locks on top of any store.IStore.
//
// The package has two layers:
//
//   - ILockManager: a single attempt to take or give back a lock. A lock is a key
//     in the store holding a random 256 bit owner ID. AcquireLock writes it with
//     SetEIfUnset and a deletion time, ReleaseLock removes it with DeleteIfValue so a
//     holder whose lease expired can never delete the lock of its successor.
//     The manager keeps no state besides the store, so any number of managers on
//     the same store (or on rpc clients of the same server) share their locks.
//
//   - IDistributedLock: waits for a lock. TryAcquireLock polls the lock manager with
//     a capped exponential backoff (10ms up to 500ms, with jitter) until the lock is
//     acquired, the timeout passed or the context is done. Waiting is not an error:
//     a lock that stays busy yields acquired=false and a nil error. An error of the
//     lock manager is returned immediately and never reported as acquired.
//
// Usage:
//
//	dl := lockmgr.NewDistributedLock(lockmgr.NewLockManager(store))
//	locker, ok, err := dl.TryAcquireLock(ctx, "resource:123", 10*time.Second, 30*time.Second)
//	if err != nil || !ok {
//	    return err
//	}
//	defer locker.Release(ctx)
//
// Metrics: ddoc_lock_acquire_total{result}, ddoc_lock_release_total and
// ddoc_lock_wait_seconds are registered with VictoriaMetrics.
package lockmgr
