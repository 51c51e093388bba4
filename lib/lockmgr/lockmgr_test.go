package lockmgr

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dDoc/lib/clock"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore(c clock.Clock) store.IStore {
	return lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }, lstore.WithClock(c))
}

// failingManager is a lock manager whose store is unreachable
type failingManager struct{}

var errUnreachable = errors.New("unreachable")

func (failingManager) AcquireLock(string, time.Duration) (bool, []byte, error) {
	return false, nil, errUnreachable
}
func (failingManager) ReleaseLock(string, []byte) (bool, error) { return false, errUnreachable }
func (failingManager) IsLocked(string) (bool, error)            { return false, errUnreachable }

func TestLockManager(t *testing.T) {
	c := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr := NewLockManager(newTestStore(c))

	ok, owner, err := mgr.AcquireLock("k", time.Second)
	if err != nil || !ok || len(owner) != ownerIDLength {
		t.Fatalf("AcquireLock = %v, %d bytes, %v", ok, len(owner), err)
	}

	if ok, _, _ := mgr.AcquireLock("k", time.Second); ok {
		t.Fatalf("expected second acquire to fail")
	}

	if locked, _ := mgr.IsLocked("k"); !locked {
		t.Fatalf("expected lock to be held")
	}

	// a foreign owner can not release the lock
	if released, _ := mgr.ReleaseLock("k", []byte("intruder")); released {
		t.Fatalf("expected foreign release to fail")
	}

	if released, err := mgr.ReleaseLock("k", owner); err != nil || !released {
		t.Fatalf("ReleaseLock = %v, %v", released, err)
	}

	// releasing a lock that no longer exists is fine
	if released, err := mgr.ReleaseLock("k", owner); err != nil || !released {
		t.Fatalf("second ReleaseLock = %v, %v", released, err)
	}
}

func TestLockManagerExpiredOwnerCanNotReleaseSuccessor(t *testing.T) {
	c := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr := NewLockManager(newTestStore(c))

	_, first, _ := mgr.AcquireLock("k", time.Second)
	c.Advance(time.Second)

	ok, second, _ := mgr.AcquireLock("k", time.Second)
	if !ok {
		t.Fatalf("expected lock to be free after expiration")
	}

	if released, _ := mgr.ReleaseLock("k", first); released {
		t.Fatalf("expired owner released the lock of its successor")
	}
	if locked, _ := mgr.IsLocked("k"); !locked {
		t.Fatalf("expected successor to still hold the lock")
	}
	if released, _ := mgr.ReleaseLock("k", second); !released {
		t.Fatalf("expected successor to release its lock")
	}
}

func TestTryAcquireLock(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		hold    bool
		timeout time.Duration
		want    bool
	}{
		{"free lock single attempt", false, 0, true},
		{"free lock with timeout", false, time.Second, true},
		{"busy lock single attempt", true, 0, false},
		{"busy lock times out", true, 50 * time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewLockManager(newTestStore(nil))
			dl := NewDistributedLock(mgr)
			if tt.hold {
				if ok, _, _ := mgr.AcquireLock("res", time.Minute); !ok {
					t.Fatal("setup: could not hold lock")
				}
			}

			start := time.Now()
			locker, ok, err := dl.TryAcquireLock(ctx, "res", tt.timeout, time.Minute)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.want {
				t.Fatalf("acquired = %v, want %v", ok, tt.want)
			}
			if ok {
				defer locker.Release(ctx)
			} else if time.Since(start) < tt.timeout {
				t.Fatalf("gave up after %s, before the timeout of %s", time.Since(start), tt.timeout)
			}
		})
	}
}

func TestTryAcquireLockWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	dl := NewDistributedLock(NewLockManager(newTestStore(nil)))

	first, ok, err := dl.TryAcquireLock(ctx, "res", 0, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: %v %v", ok, err)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = first.Release(ctx)
	}()

	second, ok, err := dl.TryAcquireLock(ctx, "res", 2*time.Second, time.Minute)
	if err != nil || !ok {
		t.Fatalf("second acquire: %v %v", ok, err)
	}
	_ = second.Release(ctx)
}

func TestTryAcquireLockMutualExclusion(t *testing.T) {
	ctx := context.Background()
	dl := NewDistributedLock(NewLockManager(newTestStore(nil)))

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locker, ok, err := dl.TryAcquireLock(ctx, "res", 5*time.Second, time.Minute)
			if err != nil || !ok {
				t.Errorf("acquire: %v %v", ok, err)
				return
			}
			defer locker.Release(ctx)

			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen.Load())
	}
}

func TestTryAcquireLockErrors(t *testing.T) {
	t.Run("empty name", func(t *testing.T) {
		dl := NewDistributedLock(NewLockManager(newTestStore(nil)))
		if _, _, err := dl.TryAcquireLock(context.Background(), "", 0, 0); !errors.Is(err, ErrEmptyLockName) {
			t.Fatalf("expected ErrEmptyLockName, got %v", err)
		}
	})

	t.Run("transport failure fails closed", func(t *testing.T) {
		dl := NewDistributedLock(failingManager{})
		locker, ok, err := dl.TryAcquireLock(context.Background(), "res", time.Second, 0)
		if !errors.Is(err, errUnreachable) || ok || locker != nil {
			t.Fatalf("got %v %v %v", locker, ok, err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		mgr := NewLockManager(newTestStore(nil))
		_, _, _ = mgr.AcquireLock("res", time.Minute)
		dl := NewDistributedLock(mgr)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, ok, err := dl.TryAcquireLock(ctx, "res", time.Minute, 0)
		if ok || !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("got %v %v", ok, err)
		}
	})
}

func TestDefaultExpiration(t *testing.T) {
	c := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	dl := NewDistributedLock(NewLockManager(newTestStore(c)))
	ctx := context.Background()

	if _, ok, _ := dl.TryAcquireLock(ctx, "res", 0, 0); !ok {
		t.Fatal("expected acquire")
	}
	c.Advance(DefaultLockExpiration - time.Nanosecond)
	if locked, _ := dl.IsLockAcquired(ctx, "res"); !locked {
		t.Fatal("expected lock to be held before the default expiration")
	}
	c.Advance(time.Nanosecond)
	if locked, _ := dl.IsLockAcquired(ctx, "res"); locked {
		t.Fatal("expected lock to expire after the default expiration")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mgr := NewLockManager(newTestStore(nil))
	dl := NewDistributedLock(mgr)

	locker, ok, _ := dl.TryAcquireLock(ctx, "res", 0, time.Minute)
	if !ok {
		t.Fatal("expected acquire")
	}
	for i := 0; i < 3; i++ {
		if err := locker.Release(ctx); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}

	// a release of the old locker must not touch a new holder
	next, ok, _ := dl.TryAcquireLock(ctx, "res", 0, time.Minute)
	if !ok {
		t.Fatal("expected re-acquire")
	}
	_ = locker.Release(ctx)
	if locked, _ := mgr.IsLocked("res"); !locked {
		t.Fatal("old locker released the new holder")
	}
	_ = next.Release(ctx)
}

func TestAcquireBackoff(t *testing.T) {
	b := newAcquireBackoff()
	b.rand = nil

	want := []time.Duration{10, 20, 40, 80, 160, 320, 500, 500}
	for i, w := range want {
		if got := b.Next(0); got != w*time.Millisecond {
			t.Fatalf("step %d: got %s, want %s", i, got, w*time.Millisecond)
		}
	}

	if got := b.Next(time.Millisecond); got != time.Millisecond {
		t.Fatalf("expected limit to cap the wait, got %s", got)
	}

	j := newAcquireBackoff()
	for i := 0; i < 100; i++ {
		step := j.next
		got := j.Next(0)
		if got < step/2 || got > step+step/2 {
			t.Fatalf("jittered wait %s outside of [%s, %s]", got, step/2, step+step/2)
		}
	}
}
