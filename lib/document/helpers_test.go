package document

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dDoc/lib/cache"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	"sync/atomic"
	"testing"
	"time"
)

// settings is the document used by the tests
type settings struct {
	Base
	A    int      `json:"a"`
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func newSettings() *settings {
	return &settings{Name: "default"}
}

var errUnavailable = errors.New("unavailable")

// harness is one shared backend, managers created from it behave like separate processes
type harness struct {
	store store.IStore
	lock  *countingLock
	dist  cache.IDistributedCache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
	return &harness{
		store: s,
		lock:  &countingLock{IDistributedLock: lockmgr.NewDistributedLock(lockmgr.NewLockManager(s))},
		dist:  cache.NewDistributedCache(s),
	}
}

func testOptions() Options {
	opts := DefaultOptions("settings")
	opts.LockTimeout = 5 * time.Second
	return opts
}

func (h *harness) volatile(t *testing.T, opts Options) *VolatileManager[*settings] {
	t.Helper()
	m, err := NewVolatileManager(opts, newSettings, h.dist, cache.NewMemoryCache[*settings](nil), h.lock)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func (h *harness) durable(t *testing.T, opts Options) *Manager[*settings] {
	t.Helper()
	m, err := NewManager(opts, newSettings, h.dist, cache.NewMemoryCache[*settings](nil), session.NewReader(h.store))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func (h *harness) session() *session.Session {
	return session.New(h.store, h.lock, session.Options{LockTimeout: time.Second})
}

// countingLock counts the acquire attempts
type countingLock struct {
	lockmgr.IDistributedLock
	attempts atomic.Int32
}

func (c *countingLock) TryAcquireLock(ctx context.Context, name string, timeout, expiration time.Duration) (*lockmgr.Locker, bool, error) {
	c.attempts.Add(1)
	return c.IDistributedLock.TryAcquireLock(ctx, name, timeout, expiration)
}

// failingLock simulates an unreachable lock service
type failingLock struct{}

func (failingLock) TryAcquireLock(context.Context, string, time.Duration, time.Duration) (*lockmgr.Locker, bool, error) {
	return nil, false, errUnavailable
}

func (failingLock) IsLockAcquired(context.Context, string) (bool, error) {
	return false, errUnavailable
}

// failingCache simulates an unreachable distributed cache
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errUnavailable }
func (failingCache) Set(context.Context, string, []byte, cache.DistributedEntryOptions) error {
	return errUnavailable
}
func (failingCache) Add(context.Context, string, []byte, cache.DistributedEntryOptions) (bool, error) {
	return false, errUnavailable
}
func (failingCache) Remove(context.Context, string) error { return errUnavailable }
func (failingCache) RemoveIfValue(context.Context, string, []byte) (bool, error) {
	return false, errUnavailable
}

// set returns an update function that sets A
func set(a int) UpdateFunc[*settings] {
	return func(_ context.Context, current *settings) (*settings, error) {
		current.A = a
		return current, nil
	}
}
