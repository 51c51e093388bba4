package cache

import (
	"github.com/ValentinKolb/dDoc/lib/clock"
	"github.com/puzpuzpuz/xsync/v3"
	"time"
)

type memoryEntry[T any] struct {
	value     T
	tag       string
	expiresAt time.Time // zero = never
	lastRead  time.Time
	sliding   time.Duration
}

// expired reports whether the entry is no longer valid at now
func (e memoryEntry[T]) expired(now time.Time) bool {
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		return true
	}
	return e.sliding > 0 && !now.Before(e.lastRead.Add(e.sliding))
}

type memoryCache[T any] struct {
	entries *xsync.MapOf[string, memoryEntry[T]]
	clock   clock.Clock
}

// NewMemoryCache creates an empty memory cache. Expiration is evaluated with c (nil = wall clock).
func NewMemoryCache[T any](c clock.Clock) IMemoryCache[T] {
	return &memoryCache[T]{
		entries: xsync.NewMapOf[string, memoryEntry[T]](),
		clock:   clock.OrReal(c),
	}
}

func (m *memoryCache[T]) Get(key string) (T, string, bool) {
	now := m.clock.Now()

	var (
		found memoryEntry[T]
		ok    bool
	)
	// the read refreshes the sliding window, so it is a write for the map
	m.entries.Compute(key, func(old memoryEntry[T], loaded bool) (memoryEntry[T], bool) {
		if !loaded || old.expired(now) {
			return old, true
		}
		old.lastRead = now
		found, ok = old, true
		return old, false
	})

	recordMemory(ok)
	return found.value, found.tag, ok
}

func (m *memoryCache[T]) Set(key string, value T, tag string, opts MemoryEntryOptions) {
	now := m.clock.Now()
	e := memoryEntry[T]{
		value:    value,
		tag:      tag,
		lastRead: now,
		sliding:  opts.SlidingExpiration,
	}
	if opts.AbsoluteExpirationRelativeToNow > 0 {
		e.expiresAt = now.Add(opts.AbsoluteExpirationRelativeToNow)
	}
	m.entries.Store(key, e)
}

func (m *memoryCache[T]) Remove(key string) {
	m.entries.Delete(key)
}

func (m *memoryCache[T]) Len() int {
	return m.entries.Size()
}

func (m *memoryCache[T]) Compact() {
	now := m.clock.Now()
	m.entries.Range(func(key string, e memoryEntry[T]) bool {
		if e.expired(now) {
			m.entries.Compute(key, func(old memoryEntry[T], loaded bool) (memoryEntry[T], bool) {
				return old, !loaded || old.expired(now)
			})
		}
		return true
	})
}
