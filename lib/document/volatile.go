package document

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/cache"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/VictoriaMetrics/metrics"
	"sync"
)

const lockSuffix = "_LOCK"

var (
	atomicApplied   = metrics.NewCounter(`ddoc_document_atomic_updates_total{result="applied"}`)
	atomicAbandoned = metrics.NewCounter(`ddoc_document_atomic_updates_total{result="abandoned"}`)
	atomicFailed    = metrics.NewCounter(`ddoc_document_atomic_updates_total{result="error"}`)
)

// VolatileManager manages a document that only lives in the caches.
// Updates are applied with UpdateAtomic under a distributed lock.
type VolatileManager[T Document] struct {
	*Manager[T]
	lock lockmgr.IDistributedLock
}

// NewVolatileManager creates a manager for volatile documents
func NewVolatileManager[T Document](opts Options, factory func() T, distributed cache.IDistributedCache, memory cache.IMemoryCache[T], lock lockmgr.IDistributedLock, mopts ...ManagerOption) (*VolatileManager[T], error) {
	opts.Volatile = true
	m, err := newManager(opts, factory, distributed, memory, nil, mopts)
	if err != nil {
		return nil, err
	}
	return &VolatileManager[T]{Manager: m, lock: lock}, nil
}

// volatileChain holds the pending functions of one unit of work
type volatileChain[T Document] struct {
	mu      sync.Mutex
	sealed  bool
	updates []UpdateFunc[T]
	after   []AfterUpdateFunc[T]
}

// UpdateAtomic registers update and afterUpdate to run once the unit of work committed.
//
// On commit all update functions registered in the unit of work run in order under the
// lock CacheKey+"_LOCK": the first gets the current document, each following one the
// result of its predecessor. The result is written to the distributed cache, then the
// afterUpdate functions are called. If the lock can not be acquired within LockTimeout
// the updates are dropped.
func (v *VolatileManager[T]) UpdateAtomic(ctx context.Context, uow UnitOfWork, update UpdateFunc[T], afterUpdate AfterUpdateFunc[T]) error {
	if update == nil && afterUpdate == nil {
		return nil
	}

	chain := uow.Item("volatile:"+v.opts.CacheKey, func() any {
		return &volatileChain[T]{}
	}).(*volatileChain[T])

	if err := uow.AfterCommitSuccess(v.opts.CacheKey, func(ctx context.Context) error {
		return v.apply(ctx, chain)
	}); err != nil {
		return err
	}

	chain.mu.Lock()
	defer chain.mu.Unlock()
	if chain.sealed {
		return session.ErrCompleted
	}
	if update != nil {
		chain.updates = append(chain.updates, update)
	}
	if afterUpdate != nil {
		chain.after = append(chain.after, afterUpdate)
	}
	return nil
}

// apply runs the pending chain, it is called once per unit of work
func (v *VolatileManager[T]) apply(ctx context.Context, chain *volatileChain[T]) error {
	chain.mu.Lock()
	chain.sealed = true
	updates, after := chain.updates, chain.after
	chain.mu.Unlock()

	if len(updates) == 0 {
		return nil
	}

	name := v.opts.CacheKey + lockSuffix
	locker, acquired, err := v.lock.TryAcquireLock(ctx, name, v.opts.LockTimeout, v.opts.LockExpiration)
	if err != nil {
		atomicFailed.Inc()
		return fmt.Errorf("acquire %s: %w", name, err)
	}
	if !acquired {
		atomicAbandoned.Inc()
		log.Infof("%s: lock not acquired within %s, dropping %d pending updates", v.opts.CacheKey, v.opts.LockTimeout, len(updates))
		return nil
	}
	release := func() {
		if err := locker.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warningf("%s: release %s: %v", v.opts.CacheKey, name, err)
		}
	}
	defer release()

	doc, err := v.GetOrCreateMutable(ctx)
	if err != nil {
		atomicFailed.Inc()
		return err
	}
	for _, update := range updates {
		if doc, err = update(ctx, doc); err != nil {
			atomicFailed.Inc()
			return err
		}
		if isNil(doc) {
			atomicFailed.Inc()
			return fmt.Errorf("%s: update returned no document: %w", v.opts.CacheKey, ErrNilDocument)
		}
	}

	if err := v.setInternal(ctx, doc); err != nil {
		atomicFailed.Inc()
		return err
	}
	atomicApplied.Inc()
	release()

	return runAfter(ctx, doc, after)
}
