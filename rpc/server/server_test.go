package server

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dDoc/lib/cache"
	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/client"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport/unix"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const (
	storeShard = 100
	lockShard  = 200
)

// startServer serves a local store and a local lock manager on a unix socket
func startServer(t *testing.T, s serializer.IRPCSerializer) common.ClientConfig {
	t.Helper()

	socket := filepath.Join(t.TempDir(), "ddoc.sock")
	srv := NewRPCServer(common.ServerConfig{
		Shards: []common.ServerShard{
			{ShardID: storeShard, Type: common.ShardTypeLocalIStore},
			{ShardID: lockShard, Type: common.ShardTypeLocalILockManager},
		},
		TimeoutSecond: 5,
		Transport: common.ServerTransportConfig{
			Endpoint:       socket,
			WorkersPerConn: 8,
		},
	}, unix.NewUnixDefaultServerTransport(), s)

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	t.Cleanup(func() {
		srv.Close()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Close")
		}
	})

	return common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:  []string{socket},
			RetryCount: 2,
		},
	}
}

// retry calls connect until the server accepts connections
func retry[T any](t *testing.T, connect func() (T, error)) T {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		v, err := connect()
		if err == nil {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("failed to connect: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newClients(t *testing.T, s serializer.IRPCSerializer) (store.IStore, lockmgr.ILockManager) {
	t.Helper()
	config := startServer(t, s)

	st := retry(t, func() (store.IStore, error) {
		return client.NewRPCStore(storeShard, config, unix.NewUnixClientTransport(), s)
	})
	locks := retry(t, func() (lockmgr.ILockManager, error) {
		return client.NewRPCLockMgr(lockShard, config, unix.NewUnixClientTransport(), s)
	})
	return st, locks
}

var serializers = map[string]func() serializer.IRPCSerializer{
	"json":   serializer.NewJSONSerializer,
	"binary": serializer.NewBinarySerializer,
}

func TestRemoteStore(t *testing.T) {
	for name, factory := range serializers {
		t.Run(name, func(t *testing.T) {
			st, _ := newClients(t, factory())

			if err := st.Set("a", []byte("1")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if v, ok, err := st.Get("a"); err != nil || !ok || string(v) != "1" {
				t.Fatalf("Get(a) = %q, %v, %v", v, ok, err)
			}

			stored, err := st.SetEIfUnset("a", []byte("2"), time.Minute)
			if err != nil || stored {
				t.Errorf("SetEIfUnset on existing key = %v, %v", stored, err)
			}
			stored, err = st.SetEIfUnset("b", []byte("2"), time.Minute)
			if err != nil || !stored {
				t.Errorf("SetEIfUnset on new key = %v, %v", stored, err)
			}

			deleted, err := st.DeleteIfValue("b", []byte("other"))
			if err != nil || deleted {
				t.Errorf("DeleteIfValue with wrong value = %v, %v", deleted, err)
			}
			deleted, err = st.DeleteIfValue("b", []byte("2"))
			if err != nil || !deleted {
				t.Errorf("DeleteIfValue with matching value = %v, %v", deleted, err)
			}

			if err := st.SetE("short", []byte("x"), 20*time.Millisecond); err != nil {
				t.Fatal(err)
			}
			time.Sleep(60 * time.Millisecond)
			if ok, err := st.Has("short"); err != nil || ok {
				t.Errorf("expired key still present: %v, %v", ok, err)
			}

			if err := st.Delete("a"); err != nil {
				t.Fatal(err)
			}
			if _, ok, err := st.Get("a"); err != nil || ok {
				t.Errorf("deleted key still present: %v, %v", ok, err)
			}

			if err := st.Set("empty", []byte{}); err != nil {
				t.Fatal(err)
			}
			if v, ok, err := st.Get("empty"); err != nil || !ok || len(v) != 0 {
				t.Errorf("Get(empty) = %q, %v, %v", v, ok, err)
			}

			info, err := st.GetDBInfo()
			if err != nil {
				t.Fatalf("GetDBInfo failed: %v", err)
			}
			if info.DbType == "" {
				t.Errorf("expected a db type, got %+v", info)
			}
		})
	}
}

func TestRemoteLockManager(t *testing.T) {
	_, locks := newClients(t, serializer.NewBinarySerializer())

	ok, owner, err := locks.AcquireLock("job", time.Minute)
	if err != nil || !ok || len(owner) == 0 {
		t.Fatalf("AcquireLock = %v, %x, %v", ok, owner, err)
	}

	if ok, _, err := locks.AcquireLock("job", time.Minute); err != nil || ok {
		t.Errorf("second AcquireLock = %v, %v", ok, err)
	}
	if locked, err := locks.IsLocked("job"); err != nil || !locked {
		t.Errorf("IsLocked = %v, %v", locked, err)
	}

	if ok, err := locks.ReleaseLock("job", []byte("not-the-owner")); err != nil || ok {
		t.Errorf("ReleaseLock by a stranger = %v, %v", ok, err)
	}
	if ok, err := locks.ReleaseLock("job", owner); err != nil || !ok {
		t.Errorf("ReleaseLock by the owner = %v, %v", ok, err)
	}
	if locked, err := locks.IsLocked("job"); err != nil || locked {
		t.Errorf("IsLocked after release = %v, %v", locked, err)
	}
}

func TestWrongShardType(t *testing.T) {
	config := startServer(t, serializer.NewBinarySerializer())

	// a lock request sent to the store shard
	wrong := retry(t, func() (lockmgr.ILockManager, error) {
		return client.NewRPCLockMgr(storeShard, config, unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	})
	if _, _, err := wrong.AcquireLock("x", time.Second); err == nil {
		t.Error("expected an error for a lock request on a store shard")
	}

	missing := retry(t, func() (store.IStore, error) {
		return client.NewRPCStore(999, config, unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	})
	_, _, err := missing.Get("x")
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Code != store.RetCUnavailable {
		t.Errorf("expected an unavailable store error for a missing shard, got %v", err)
	}
}

func TestHandleRejectsGarbage(t *testing.T) {
	srv := NewRPCServer(common.ServerConfig{}, unix.NewUnixDefaultServerTransport(), serializer.NewBinarySerializer())
	srv.shards.Store(1, serverShard{Adapter: NewIStoreServerAdapter(srv.newLocalStore())})
	defer srv.Close()

	var resp common.Message
	if err := srv.serializer.Deserialize(srv.handle(1, []byte{1}), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.MsgType != common.MsgTError || resp.Err == "" {
		t.Errorf("expected an error response, got %+v", resp)
	}
}

// counter is a volatile document shared through the rpc server
type counter struct {
	document.Base
	Value int `json:"value"`
}

// TestVolatileDocumentOverRPC runs concurrent atomic updates from several "processes"
// that only share the rpc server.
func TestVolatileDocumentOverRPC(t *testing.T) {
	s := serializer.NewBinarySerializer()
	config := startServer(t, s)

	const processes = 3
	const updatesPerProcess = 5

	type process struct {
		manager *document.VolatileManager[*counter]
		store   store.IStore
		lock    lockmgr.IDistributedLock
	}

	procs := make([]process, processes)
	for i := range procs {
		st := retry(t, func() (store.IStore, error) {
			return client.NewRPCStore(storeShard, config, unix.NewUnixClientTransport(), s)
		})
		locks := retry(t, func() (lockmgr.ILockManager, error) {
			return client.NewRPCLockMgr(lockShard, config, unix.NewUnixClientTransport(), s)
		})
		lock := lockmgr.NewDistributedLock(locks)

		opts := document.DefaultOptions("counter")
		opts.LockTimeout = 10 * time.Second
		m, err := document.NewVolatileManager(opts, func() *counter { return &counter{} },
			cache.NewDistributedCache(st), cache.NewMemoryCache[*counter](nil), lock)
		if err != nil {
			t.Fatal(err)
		}
		procs[i] = process{manager: m, store: st, lock: lock}
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, processes*updatesPerProcess)

	for _, p := range procs {
		wg.Add(1)
		go func(p process) {
			defer wg.Done()
			for i := 0; i < updatesPerProcess; i++ {
				uow := session.New(p.store, p.lock, session.DefaultOptions())
				err := p.manager.UpdateAtomic(ctx, uow, func(_ context.Context, c *counter) (*counter, error) {
					c.Value++
					return c, nil
				}, nil)
				if err == nil {
					err = uow.Commit(ctx)
				}
				if err != nil {
					errs <- err
				}
			}
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("update failed: %v", err)
	}

	got, err := procs[0].manager.GetOrCreateImmutable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != processes*updatesPerProcess {
		t.Errorf("expected %d, got %d", processes*updatesPerProcess, got.Value)
	}
	if got.GetIdentifier() == "" {
		t.Error("expected the shared document to have an identifier")
	}
}
