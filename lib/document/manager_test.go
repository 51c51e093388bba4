package document

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ValentinKolb/dDoc/lib/cache"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/google/go-cmp/cmp"
	"sync"
	"testing"
)

func TestDurableUpdate(t *testing.T) {
	h := newHarness(t)
	m := h.durable(t, testOptions())
	ctx := context.Background()

	initial, err := m.GetOrCreateImmutable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if initial.Identifier == "" {
		t.Fatal("expected cached default to get an identifier")
	}

	doc, err := m.GetOrCreateMutable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if doc == initial {
		t.Fatal("mutable document must not be the shared instance")
	}
	if doc.Identifier != initial.Identifier {
		t.Fatalf("expected identifier %q, got %q", initial.Identifier, doc.Identifier)
	}

	doc.Name = "updated"
	var afterDoc *settings
	uow := h.session()
	if err := m.Update(ctx, uow, doc, func(_ context.Context, d *settings) error {
		afterDoc = d
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	// nothing is visible before the commit
	if cur, _ := m.GetOrCreateImmutable(ctx); cur.Name != "default" {
		t.Fatalf("update visible before commit: %q", cur.Name)
	}

	if err := uow.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	if afterDoc == nil || afterDoc.Name != "updated" {
		t.Fatalf("after callback got %+v", afterDoc)
	}

	data, _, found, err := session.NewReader(h.store).Load(m.Options().CacheKey)
	if err != nil || !found {
		t.Fatalf("store: found=%v err=%v", found, err)
	}
	var stored settings
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(*doc, stored); diff != "" {
		t.Fatalf("stored document mismatch (-want +got):\n%s", diff)
	}

	cur, _ := m.GetOrCreateImmutable(ctx)
	if cur.Name != "updated" || cur.Identifier != initial.Identifier {
		t.Fatalf("cache not refreshed: %+v", cur)
	}
}

func TestDurableUpdateLastDocumentWins(t *testing.T) {
	h := newHarness(t)
	m := h.durable(t, testOptions())
	ctx := context.Background()
	uow := h.session()

	var calls int
	after := func(_ context.Context, d *settings) error {
		calls++
		if d.A != 2 {
			t.Errorf("after callback got A=%d, want 2", d.A)
		}
		return nil
	}
	_ = m.Update(ctx, uow, &settings{A: 1}, after)
	_ = m.Update(ctx, uow, &settings{A: 2}, after)

	if err := uow.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 after callbacks, got %d", calls)
	}
	doc, _ := m.GetOrCreateImmutable(ctx)
	if doc.A != 2 {
		t.Fatalf("expected A=2, got %d", doc.A)
	}
}

func TestDurableConcurrencyCheck(t *testing.T) {
	h := newHarness(t)
	opts := testOptions()
	opts.CheckConcurrency = true
	m := h.durable(t, opts)
	ctx := context.Background()

	a, b := h.session(), h.session()
	_ = m.Update(ctx, a, &settings{A: 1}, nil)
	_ = m.Update(ctx, b, &settings{A: 2}, nil)

	if err := a.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(ctx); !errors.Is(err, session.ErrConcurrency) {
		t.Fatalf("expected ErrConcurrency, got %v", err)
	}
	doc, _ := m.GetOrCreateImmutable(ctx)
	if doc.A != 1 {
		t.Fatalf("expected first commit to win, got A=%d", doc.A)
	}
}

func TestDurableFallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("cache unavailable reads the store", func(t *testing.T) {
		h := newHarness(t)
		m := h.durable(t, testOptions())
		uow := h.session()
		_ = m.Update(ctx, uow, &settings{A: 5}, nil)
		if err := uow.Commit(ctx); err != nil {
			t.Fatal(err)
		}

		broken, err := NewManager(testOptions(), newSettings, failingCache{}, nil, session.NewReader(h.store))
		if err != nil {
			t.Fatal(err)
		}
		doc, err := broken.GetOrCreateImmutable(ctx)
		if err != nil || doc.A != 5 {
			t.Fatalf("expected store copy, got %+v %v", doc, err)
		}
	})

	t.Run("corrupt snapshot is repopulated from the store", func(t *testing.T) {
		h := newHarness(t)
		m := h.durable(t, testOptions())
		uow := h.session()
		_ = m.Update(ctx, uow, &settings{A: 9}, nil)
		if err := uow.Commit(ctx); err != nil {
			t.Fatal(err)
		}

		_ = h.store.Set(m.Options().CacheKey, []byte{0, '{', 'x'})
		_ = h.store.Delete(m.Options().CacheIdKey)

		doc, err := m.GetOrCreateImmutable(ctx)
		if err != nil || doc.A != 9 {
			t.Fatalf("expected store copy, got %+v %v", doc, err)
		}
		data, ok, _ := h.dist.Get(ctx, m.Options().CacheKey)
		if !ok {
			t.Fatal("cache not repopulated")
		}
		if _, err := decodeSnapshot(data); err != nil {
			t.Fatalf("repopulated snapshot is corrupt: %v", err)
		}
	})

	t.Run("update on volatile manager", func(t *testing.T) {
		h := newHarness(t)
		m := h.volatile(t, testOptions())
		if err := m.Update(ctx, h.session(), &settings{}, nil); !errors.Is(err, ErrVolatile) {
			t.Fatalf("expected ErrVolatile, got %v", err)
		}
	})

	t.Run("durable manager without store", func(t *testing.T) {
		_, err := NewManager(testOptions(), newSettings, cache.NewDistributedCache(newHarness(t).store), nil, nil)
		if !errors.Is(err, ErrNoStore) {
			t.Fatalf("expected ErrNoStore, got %v", err)
		}
	})
}

// committingStore lets another process commit right after the first Load read the store
type committingStore struct {
	Store
	once   sync.Once
	commit func()
}

func (s *committingStore) Load(key string) ([]byte, string, bool, error) {
	data, version, found, err := s.Store.Load(key)
	s.once.Do(s.commit)
	return data, version, found, err
}

func TestDurableReadKeepsNewerCacheEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	writer := h.durable(t, testOptions())

	var commitErr error
	st := &committingStore{Store: session.NewReader(h.store), commit: func() {
		uow := h.session()
		if commitErr = writer.Update(ctx, uow, &settings{A: 2}, nil); commitErr == nil {
			commitErr = uow.Commit(ctx)
		}
	}}
	reader, err := NewManager(testOptions(), newSettings, h.dist, cache.NewMemoryCache[*settings](nil), st)
	if err != nil {
		t.Fatal(err)
	}

	// the reader misses the cache and reads the store before the commit
	doc, err := reader.GetOrCreateImmutable(ctx)
	if err != nil || commitErr != nil {
		t.Fatalf("read: %v, commit: %v", err, commitErr)
	}
	if doc.A != 2 {
		t.Errorf("reader returned A=%d, expected the committed A=2", doc.A)
	}

	cur, err := h.durable(t, testOptions()).GetOrCreateImmutable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cur.A != 2 {
		t.Errorf("distributed cache serves A=%d, expected the committed A=2", cur.A)
	}
}

func TestDurableUpdateNilDocument(t *testing.T) {
	h := newHarness(t)
	m := h.durable(t, testOptions())
	if err := m.Update(context.Background(), h.session(), nil, nil); !errors.Is(err, ErrNilDocument) {
		t.Fatalf("expected ErrNilDocument, got %v", err)
	}
}

type plainDoc struct {
	Base
}

func TestDefaultCacheKey(t *testing.T) {
	h := newHarness(t)
	m, err := NewManager(Options{}, func() *plainDoc { return &plainDoc{} }, h.dist, nil, session.NewReader(h.store))
	if err != nil {
		t.Fatal(err)
	}
	want := "github.com/ValentinKolb/dDoc/lib/document.plainDoc"
	if got := m.Options().CacheKey; got != want {
		t.Fatalf("CacheKey = %q, want %q", got, want)
	}
	if got := m.Options().CacheIdKey; got != DefaultCacheIdPrefix+want {
		t.Fatalf("CacheIdKey = %q", got)
	}
}
