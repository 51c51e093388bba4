package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/cache"
	"github.com/lni/dragonboat/v4/logger"
	"reflect"
	"sync"
)

var (
	// ErrVolatile is returned by Update on a manager for volatile documents
	ErrVolatile = errors.New("volatile documents are updated with UpdateAtomic")
	// ErrNoStore is returned when a durable manager is created without a store
	ErrNoStore = errors.New("durable documents need a store")
	// ErrNilDocument is returned when a nil document is written
	ErrNilDocument = errors.New("document is nil")

	log = logger.GetLogger("document")
)

// Manager serves a document from a memory cache, a distributed cache and (for durable
// documents) a store. It is safe for concurrent use.
type Manager[T Document] struct {
	opts        Options
	factory     func() T
	distributed cache.IDistributedCache
	memory      cache.IMemoryCache[T]
	store       Store
	idGen       IdGenerator
}

// ManagerOption configures a manager
type ManagerOption func(*managerConfig)

type managerConfig struct {
	idGen IdGenerator
}

// WithIdGenerator replaces the xid based id generator
func WithIdGenerator(g IdGenerator) ManagerOption {
	return func(c *managerConfig) {
		c.idGen = g
	}
}

// NewManager creates a manager for durable documents, st holds the committed copy.
// An empty cache key defaults to the type name of T.
func NewManager[T Document](opts Options, factory func() T, distributed cache.IDistributedCache, memory cache.IMemoryCache[T], st Store, mopts ...ManagerOption) (*Manager[T], error) {
	if st == nil && !opts.Volatile {
		return nil, ErrNoStore
	}
	return newManager(opts, factory, distributed, memory, st, mopts)
}

func newManager[T Document](opts Options, factory func() T, distributed cache.IDistributedCache, memory cache.IMemoryCache[T], st Store, mopts []ManagerOption) (*Manager[T], error) {
	if opts.CacheKey == "" {
		opts.CacheKey = typeKey[T]()
	}
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if memory == nil {
		memory = cache.NewMemoryCache[T](nil)
	}

	cfg := managerConfig{idGen: XidGenerator{}}
	for _, o := range mopts {
		o(&cfg)
	}

	return &Manager[T]{
		opts:        opts,
		factory:     factory,
		distributed: distributed,
		memory:      memory,
		store:       st,
		idGen:       cfg.idGen,
	}, nil
}

// typeKey returns the fully qualified type name of T, e.g. "github.com/acme/site.Settings"
func typeKey[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name()
}

// Options returns the effective options of the manager
func (m *Manager[T]) Options() Options {
	return m.opts
}

// --------------------------------------------------------------------------
// Read path
// --------------------------------------------------------------------------

// GetOrCreateImmutable returns the shared cached document. The result must not be modified.
//
// Lookup order: memory cache (if its tag equals the distributed version), distributed
// cache, store (durable only), factory default. A document found below the memory tier
// is written back to the caches.
func (m *Manager[T]) GetOrCreateImmutable(ctx context.Context) (T, error) {
	var zero T

	doc, found, err := m.loadCached(ctx)
	if err != nil {
		if m.opts.Volatile {
			return zero, err
		}
		log.Warningf("%s: distributed cache unavailable, reading store: %v", m.opts.CacheKey, err)
		doc, _, err = m.loadStored()
		return doc, err
	}
	if found {
		return doc, nil
	}

	if m.opts.Volatile {
		return m.populate(ctx, m.factory())
	}

	doc, _, err = m.loadStored()
	if err != nil {
		return zero, err
	}
	cached, err := m.populate(ctx, doc)
	if err != nil {
		log.Warningf("%s: could not populate the distributed cache: %v", m.opts.CacheKey, err)
		return doc, nil
	}
	return cached, nil
}

// populateAttempts bounds the add/replace rounds of populate
const populateAttempts = 3

// populate adds doc with a new version token to the distributed cache if the cache holds
// no readable snapshot, and returns the document the cache holds afterwards.
//
// Entries are only added, never overwritten: a snapshot written concurrently (by an update
// or another reader) wins and is returned instead of doc. An unreadable snapshot is removed
// together with its version token, but only while both still hold the values that were read.
func (m *Manager[T]) populate(ctx context.Context, doc T) (T, error) {
	var zero T

	m.ensureIdentifier(doc)
	version := m.idGen.GenerateUniqueId()
	data, err := encodeSnapshot(version, doc, m.opts.CompressThreshold)
	if err != nil {
		return zero, err
	}

	for attempt := 0; attempt < populateAttempts; attempt++ {
		// read the version first, an unreadable snapshot is removed together with it
		oldVersion, versionFound, err := m.distributed.Get(ctx, m.opts.CacheIdKey)
		if err != nil {
			return zero, err
		}

		added, err := m.distributed.Add(ctx, m.opts.CacheKey, data, m.distributedOptions())
		if err != nil {
			return zero, err
		}
		if added {
			if err := m.addVersion(ctx, data, version); err != nil {
				return zero, err
			}
			m.memory.Set(m.opts.CacheKey, doc, version, m.memoryOptions())
			return doc, nil
		}

		existing, ok, err := m.distributed.Get(ctx, m.opts.CacheKey)
		if err != nil {
			return zero, err
		}
		if !ok {
			continue
		}
		s, cached, err := m.decode(existing)
		if err == nil {
			m.memory.Set(m.opts.CacheKey, cached, s.Version, m.memoryOptions())
			return cached, nil
		}

		log.Warningf("%s: replacing unreadable snapshot: %v", m.opts.CacheKey, err)
		removed, err := m.distributed.RemoveIfValue(ctx, m.opts.CacheKey, existing)
		if err != nil {
			return zero, err
		}
		if removed && versionFound {
			if _, err := m.distributed.RemoveIfValue(ctx, m.opts.CacheIdKey, oldVersion); err != nil {
				return zero, err
			}
		}
	}

	log.Warningf("%s: distributed cache kept changing, returning an uncached document", m.opts.CacheKey)
	return doc, nil
}

// GetOrCreateMutable returns a fresh copy of the document owned by the caller.
// Volatile documents are read from the distributed cache, durable ones from the store.
// A durable document that was never stored is taken from the distributed cache so it
// keeps the identifier readers already saw.
func (m *Manager[T]) GetOrCreateMutable(ctx context.Context) (T, error) {
	var zero T

	if !m.opts.Volatile {
		doc, found, err := m.loadStored()
		if err != nil || found {
			return doc, err
		}
		if cached, ok, err := m.loadSnapshot(ctx); err == nil && ok {
			return cached, nil
		}
		return doc, nil
	}

	doc, ok, err := m.loadSnapshot(ctx)
	if err != nil {
		return zero, err
	}
	if ok {
		return doc, nil
	}
	return m.factory(), nil
}

// loadCached looks the document up in the memory and distributed cache.
// A corrupt snapshot is logged and reported as a miss.
func (m *Manager[T]) loadCached(ctx context.Context) (T, bool, error) {
	var zero T

	version, versionFound, err := m.distributed.Get(ctx, m.opts.CacheIdKey)
	if err != nil {
		return zero, false, err
	}
	if versionFound {
		if doc, tag, ok := m.memory.Get(m.opts.CacheKey); ok && tag == string(version) {
			return doc, true, nil
		}
	}

	data, ok, err := m.distributed.Get(ctx, m.opts.CacheKey)
	if err != nil || !ok {
		return zero, false, err
	}

	s, doc, err := m.decode(data)
	if err != nil {
		log.Warningf("%s: %v", m.opts.CacheKey, err)
		return zero, false, nil
	}

	m.memory.Set(m.opts.CacheKey, doc, s.Version, m.memoryOptions())
	return doc, true, nil
}

// loadSnapshot decodes a fresh copy of the distributed snapshot without touching the memory cache.
// A corrupt snapshot is logged and reported as a miss.
func (m *Manager[T]) loadSnapshot(ctx context.Context) (T, bool, error) {
	var zero T

	data, ok, err := m.distributed.Get(ctx, m.opts.CacheKey)
	if err != nil || !ok {
		return zero, false, err
	}
	_, doc, err := m.decode(data)
	if err != nil {
		log.Warningf("%s: %v", m.opts.CacheKey, err)
		return zero, false, nil
	}
	return doc, true, nil
}

func (m *Manager[T]) decode(data []byte) (snapshot, T, error) {
	var zero T
	s, err := decodeSnapshot(data)
	if err != nil {
		return s, zero, err
	}
	doc, err := decodeDocument(s.Payload, m.factory)
	return s, doc, err
}

// loadStored reads the durable copy, or creates a default document if there is none
func (m *Manager[T]) loadStored() (T, bool, error) {
	var zero T
	data, _, found, err := m.store.Load(m.opts.CacheKey)
	if err != nil {
		return zero, false, fmt.Errorf("load %s from store: %w", m.opts.CacheKey, err)
	}
	if !found {
		return m.factory(), false, nil
	}
	doc, err := decodeDocument(data, m.factory)
	if err != nil {
		return zero, false, err
	}
	return doc, true, nil
}

// --------------------------------------------------------------------------
// Write path
// --------------------------------------------------------------------------

// durableChain is the per unit of work state of Update
type durableChain[T Document] struct {
	mu    sync.Mutex
	doc   T
	after []AfterUpdateFunc[T]
}

// Update stages doc in the unit of work. After a successful commit the distributed cache
// is refreshed, the memory cache is invalidated and afterUpdate runs. Calling Update more
// than once in a unit of work keeps the last document and all afterUpdate callbacks.
func (m *Manager[T]) Update(ctx context.Context, uow StagingUnitOfWork, doc T, afterUpdate AfterUpdateFunc[T]) error {
	if m.opts.Volatile {
		return ErrVolatile
	}
	if isNil(doc) {
		return fmt.Errorf("%s: %w", m.opts.CacheKey, ErrNilDocument)
	}

	m.ensureIdentifier(doc)
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.opts.CacheKey, err)
	}

	_, expected, _, err := uow.Load(m.opts.CacheKey)
	if err != nil {
		return err
	}
	if _, err := uow.Save(m.opts.CacheKey, data, expected, m.opts.CheckConcurrency); err != nil {
		return err
	}

	chain := uow.Item("durable:"+m.opts.CacheKey, func() any {
		return &durableChain[T]{}
	}).(*durableChain[T])

	chain.mu.Lock()
	chain.doc = doc
	if afterUpdate != nil {
		chain.after = append(chain.after, afterUpdate)
	}
	chain.mu.Unlock()

	return uow.AfterCommitSuccess(m.opts.CacheKey, func(ctx context.Context) error {
		chain.mu.Lock()
		doc, after := chain.doc, chain.after
		chain.mu.Unlock()

		if err := m.setInternal(ctx, doc); err != nil {
			return err
		}
		return runAfter(ctx, doc, after)
	})
}

// setInternal writes doc with a new version token to the distributed cache and
// invalidates the memory cache
func (m *Manager[T]) setInternal(ctx context.Context, doc T) error {
	m.ensureIdentifier(doc)
	version := m.idGen.GenerateUniqueId()
	data, err := encodeSnapshot(version, doc, m.opts.CompressThreshold)
	if err != nil {
		return err
	}

	// the snapshot goes first, a reader seeing the new version always finds its snapshot
	if err := m.distributed.Set(ctx, m.opts.CacheKey, data, m.distributedOptions()); err != nil {
		return err
	}
	if err := m.distributed.Set(ctx, m.opts.CacheIdKey, []byte(version), m.distributedOptions()); err != nil {
		return err
	}
	m.memory.Remove(m.opts.CacheKey)
	return nil
}

// addVersion adds the version token of the snapshot data that populate just added.
// A token left over from an expired or removed snapshot is replaced, as long as the
// snapshot was not overwritten in the meantime.
func (m *Manager[T]) addVersion(ctx context.Context, data []byte, version string) error {
	added, err := m.distributed.Add(ctx, m.opts.CacheIdKey, []byte(version), m.distributedOptions())
	if err != nil || added {
		return err
	}

	current, ok, err := m.distributed.Get(ctx, m.opts.CacheKey)
	if err != nil || !ok || !bytes.Equal(current, data) {
		return err
	}
	leftover, ok, err := m.distributed.Get(ctx, m.opts.CacheIdKey)
	if err != nil || !ok {
		return err
	}
	if removed, err := m.distributed.RemoveIfValue(ctx, m.opts.CacheIdKey, leftover); err != nil || !removed {
		return err
	}
	_, err = m.distributed.Add(ctx, m.opts.CacheIdKey, []byte(version), m.distributedOptions())
	return err
}

// isNil reports whether doc is a nil pointer or a nil interface
func isNil[T Document](doc T) bool {
	v := reflect.ValueOf(doc)
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

func (m *Manager[T]) ensureIdentifier(doc T) {
	if doc.GetIdentifier() == "" {
		doc.SetIdentifier(m.idGen.GenerateUniqueId())
	}
}

func (m *Manager[T]) memoryOptions() cache.MemoryEntryOptions {
	return cache.MemoryEntryOptions{
		AbsoluteExpirationRelativeToNow: m.opts.AbsoluteExpirationRelativeToNow,
		SlidingExpiration:               m.opts.SlidingExpiration,
	}
}

func (m *Manager[T]) distributedOptions() cache.DistributedEntryOptions {
	return cache.DistributedEntryOptions{
		AbsoluteExpirationRelativeToNow: m.opts.AbsoluteExpirationRelativeToNow,
	}
}

// runAfter calls the callbacks in order and stops at the first error
func runAfter[T Document](ctx context.Context, doc T, after []AfterUpdateFunc[T]) error {
	for _, fn := range after {
		if err := fn(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}
