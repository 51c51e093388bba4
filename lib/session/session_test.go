package session

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	"reflect"
	"testing"
	"time"
)

type env struct {
	store store.IStore
	lock  lockmgr.IDistributedLock
}

func newEnv() env {
	s := lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
	return env{store: s, lock: lockmgr.NewDistributedLock(lockmgr.NewLockManager(s))}
}

func (e env) session() *Session {
	return New(e.store, e.lock, Options{LockTimeout: 100 * time.Millisecond})
}

func TestCommitWritesStagedData(t *testing.T) {
	e := newEnv()
	s := e.session()
	ctx := context.Background()

	version, err := s.Save("doc", []byte("v1"), "", false)
	if err != nil {
		t.Fatal(err)
	}

	// staged data is visible to the session but not to the store
	if data, v, ok, _ := s.Load("doc"); !ok || string(data) != "v1" || v != version {
		t.Fatalf("Load = %q %q %v", data, v, ok)
	}
	if _, ok, _ := e.store.Get(dataKey("doc")); ok {
		t.Fatal("staged data leaked into the store")
	}

	if err := s.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	data, v, ok, err := LoadCommitted(e.store, "doc")
	if err != nil || !ok || string(data) != "v1" || v != version {
		t.Fatalf("LoadCommitted = %q %q %v %v", data, v, ok, err)
	}
}

func TestCallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("order and first registration wins", func(t *testing.T) {
		s := newEnv().session()
		var calls []string
		add := func(name string) Callback {
			return func(context.Context) error {
				calls = append(calls, name)
				return nil
			}
		}

		_ = s.AfterCommitSuccess("b", add("b1"))
		_ = s.AfterCommitSuccess("a", add("a1"))
		_ = s.AfterCommitSuccess("b", add("b2"))
		_ = s.AfterCommitFailure("b", add("fail"))

		if err := s.Commit(ctx); err != nil {
			t.Fatal(err)
		}
		if want := []string{"b1", "a1"}; !reflect.DeepEqual(calls, want) {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	})

	t.Run("fail fast", func(t *testing.T) {
		s := newEnv().session()
		boom := errors.New("boom")
		var ran bool
		_ = s.AfterCommitSuccess("a", func(context.Context) error { return boom })
		_ = s.AfterCommitSuccess("b", func(context.Context) error { ran = true; return nil })

		if err := s.Commit(ctx); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if ran {
			t.Fatal("callback after the failing one ran")
		}
	})

	t.Run("rollback runs nothing", func(t *testing.T) {
		e := newEnv()
		s := e.session()
		var ran bool
		_ = s.AfterCommitSuccess("a", func(context.Context) error { ran = true; return nil })
		_ = s.AfterCommitFailure("a", func(context.Context) error { ran = true; return nil })
		_, _ = s.Save("doc", []byte("x"), "", false)

		if err := s.Rollback(); err != nil {
			t.Fatal(err)
		}
		if ran {
			t.Fatal("callback ran after rollback")
		}
		if _, ok, _ := e.store.Get(dataKey("doc")); ok {
			t.Fatal("rolled back data was written")
		}
	})

	t.Run("registration after completion", func(t *testing.T) {
		s := newEnv().session()
		if err := s.Commit(ctx); err != nil {
			t.Fatal(err)
		}
		if err := s.AfterCommitSuccess("a", func(context.Context) error { return nil }); !errors.Is(err, ErrCompleted) {
			t.Fatalf("expected ErrCompleted, got %v", err)
		}
		if _, err := s.Save("doc", nil, "", false); !errors.Is(err, ErrCompleted) {
			t.Fatalf("expected ErrCompleted, got %v", err)
		}
		if err := s.Commit(ctx); !errors.Is(err, ErrCompleted) {
			t.Fatalf("expected ErrCompleted, got %v", err)
		}
	})

	t.Run("registration from a running callback is rejected", func(t *testing.T) {
		s := newEnv().session()
		var lateErr error
		_ = s.AfterCommitSuccess("a", func(context.Context) error {
			lateErr = s.AfterCommitSuccess("late", func(context.Context) error { return nil })
			return nil
		})
		if err := s.Commit(ctx); err != nil {
			t.Fatal(err)
		}
		if !errors.Is(lateErr, ErrCompleted) {
			t.Fatalf("expected ErrCompleted, got %v", lateErr)
		}
	})
}

func TestOptimisticConcurrency(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	first := e.session()
	v1, _ := first.Save("doc", []byte("v1"), "", true)
	if err := first.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	// two sessions read version v1 and both try to write
	a, b := e.session(), e.session()
	_, va, _, _ := a.Load("doc")
	_, vb, _, _ := b.Load("doc")
	if va != v1 || vb != v1 {
		t.Fatalf("expected both sessions to read %q, got %q and %q", v1, va, vb)
	}
	_, _ = a.Save("doc", []byte("a"), va, true)
	_, _ = b.Save("doc", []byte("b"), vb, true)

	var failed bool
	_ = b.AfterCommitFailure("doc", func(context.Context) error { failed = true; return nil })

	if err := a.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(ctx); !errors.Is(err, ErrConcurrency) {
		t.Fatalf("expected ErrConcurrency, got %v", err)
	}
	if !failed {
		t.Fatal("failure callback did not run")
	}

	data, _, _, _ := LoadCommitted(e.store, "doc")
	if string(data) != "a" {
		t.Fatalf("expected winner data, got %q", data)
	}
}

func TestCommitLockTimeout(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	held, ok, err := e.lock.TryAcquireLock(ctx, dataKey("doc")+commitLockSuffix, 0, time.Minute)
	if err != nil || !ok {
		t.Fatalf("setup: %v %v", ok, err)
	}
	defer held.Release(ctx)

	s := e.session()
	_, _ = s.Save("doc", []byte("x"), "", false)
	if err := s.Commit(ctx); !errors.Is(err, ErrCommitLockTimeout) {
		t.Fatalf("expected ErrCommitLockTimeout, got %v", err)
	}
}

func TestItem(t *testing.T) {
	s := newEnv().session()
	calls := 0
	create := func() any {
		calls++
		return &[]int{}
	}

	first := s.Item("k", create)
	second := s.Item("k", create)
	if first != second || calls != 1 {
		t.Fatalf("expected one shared item, got %d creations", calls)
	}
	if s.ID() == "" || s.ID() == newEnv().session().ID() {
		t.Fatal("expected unique session ids")
	}
}

// failingStore fails every Set of one key
type failingStore struct {
	store.IStore
	failKey string
}

func (f failingStore) Set(key string, value []byte) error {
	if key == f.failKey {
		return store.NewError(store.RetCUnavailable, "connection reset")
	}
	return f.IStore.Set(key, value)
}

func TestFailedWriteRestoresCommittedState(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	first := e.session()
	v1, _ := first.Save("a", []byte("a1"), "", false)
	if err := first.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		failKey string
	}{
		{name: "data of the second key", failKey: dataKey("b")},
		{name: "version of the second key", failKey: dataKey("b") + versionSuffix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(failingStore{IStore: e.store, failKey: tt.failKey}, e.lock, Options{LockTimeout: 100 * time.Millisecond})
			_, _ = s.Save("a", []byte("a2"), v1, true)
			_, _ = s.Save("b", []byte("b1"), "", false)

			var failed, succeeded bool
			_ = s.AfterCommitFailure("a", func(context.Context) error { failed = true; return nil })
			_ = s.AfterCommitSuccess("a", func(context.Context) error { succeeded = true; return nil })

			err := s.Commit(ctx)
			var storeErr *store.Error
			if !errors.As(err, &storeErr) || storeErr.Code != store.RetCUnavailable {
				t.Fatalf("expected the store error, got %v", err)
			}
			if !failed || succeeded {
				t.Fatalf("failure callback ran: %v, success callback ran: %v", failed, succeeded)
			}

			data, v, ok, err := LoadCommitted(e.store, "a")
			if err != nil || !ok || string(data) != "a1" || v != v1 {
				t.Errorf("a = %q %q %v %v, expected the state before the commit", data, v, ok, err)
			}
			if _, _, ok, _ := LoadCommitted(e.store, "b"); ok {
				t.Error("b was left committed")
			}
			if _, ok, _ := e.store.Get(dataKey("b") + versionSuffix); ok {
				t.Error("version of b was left committed")
			}
		})
	}
}
