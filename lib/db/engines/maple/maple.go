package maple

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dDoc/lib/db/util"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum          = "MAPLEDB\x00"          // File format identifier
	mapleVersion      = 4                      // Database version
	defaultGCInterval = 100 * time.Millisecond // Default interval between GC runs
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements a sharded in-memory database
type mapleImpl struct {
	seed   uint64            // Seed for the shard hash
	shards []*internal.Shard // Array of shards
	clock  atomic.Int64      // Highest now seen (unix nanoseconds)

	// protects the shard slice against Load swapping it out
	mu sync.RWMutex

	// garbage collection
	gcInterval time.Duration
	gcStop     chan struct{}
	gcDone     chan struct{}
	closeOnce  sync.Once
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards  int           // Number of shards (0 = number of CPUs)
	GCInterval time.Duration // Time between GC runs (0 = default)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:  runtime.NumCPU(),
		GCInterval: defaultGCInterval,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}

	newDB := &mapleImpl{
		seed:       util.GenerateSeed(),
		shards:     newShards(opts.NumShards),
		gcInterval: opts.GCInterval,
		gcStop:     make(chan struct{}),
		gcDone:     make(chan struct{}),
	}

	go newDB.garbageCollector()

	return newDB
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := range shards {
		shards[i] = internal.NewShard()
	}
	return shards
}

// shard returns the shard responsible for key
func (maple *mapleImpl) shard(key string) *internal.Shard {
	maple.mu.RLock()
	defer maple.mu.RUnlock()
	return internal.GetShard(util.HashString(key, maple.seed), maple.shards)
}

// advance moves the engine clock to now if now is newer and returns the
// effective time for the operation.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) advance(now int64) int64 {
	for {
		curr := maple.clock.Load()
		if now <= curr {
			return curr
		}
		if maple.clock.CompareAndSwap(curr, now) {
			return now
		}
	}
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry without deletion time.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte, now int64) {
	maple.SetE(key, value, now, 0)
}

// SetE inserts or updates an entry that is deleted deleteIn nanoseconds after now.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetE(key string, value []byte, now int64, deleteIn int64) {
	maple.compute(key, value, now, deleteIn, func(_ internal.Entry, _ bool) bool {
		return true
	})
}

// SetEIfUnset inserts an entry only if no live entry exists.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetEIfUnset(key string, value []byte, now int64, deleteIn int64) bool {
	return maple.compute(key, value, now, deleteIn, func(_ internal.Entry, loaded bool) bool {
		return !loaded
	})
}

// compute is the shared write path of Set, SetE and SetEIfUnset.
// The write callback sees the old entry (loaded is false if it does not exist or
// is logically deleted) and decides whether the new value replaces it.
//
// Thread-safety: The decision and the write happen atomically inside xsync's Compute.
func (maple *mapleImpl) compute(key string, value []byte, now int64, deleteIn int64, write func(old internal.Entry, loaded bool) bool) bool {
	now = maple.advance(now)
	shard := maple.shard(key)

	// Copy value to prevent memory corruption
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	var deleteAt int64
	if deleteIn > 0 {
		deleteAt = now + deleteIn
	}

	var stored bool
	shard.Data.Compute(key, func(old internal.Entry, exists bool) (internal.Entry, bool) {
		loaded := exists && !old.IsDeleted(now)
		if !write(old, loaded) {
			if exists && !loaded {
				// drop the dead entry instead of keeping it around for the gc
				maple.trackExpiring(shard, old, -1)
				return old, true
			}
			return old, !exists
		}

		stored = true
		if exists {
			maple.trackExpiring(shard, old, -1)
		}
		entry := internal.Entry{
			Value:    valueCopy,
			DeleteAt: deleteAt,
			WriteAt:  now,
		}
		maple.trackExpiring(shard, entry, 1)
		return entry, false
	})
	return stored
}

// trackExpiring adjusts the per shard count of entries with a deletion time
func (maple *mapleImpl) trackExpiring(shard *internal.Shard, e internal.Entry, delta int64) {
	if e.DeleteAt != 0 {
		shard.Expiring.Add(delta)
	}
}

// Delete removes an entry with the specified key. This change is immediate.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string, now int64) {
	maple.advance(now)
	shard := maple.shard(key)
	shard.Data.Compute(key, func(old internal.Entry, exists bool) (internal.Entry, bool) {
		if exists {
			maple.trackExpiring(shard, old, -1)
		}
		return old, true
	})
}

// DeleteIfValue removes the entry only if its current value equals value.
//
// Thread-safety: The comparison and the deletion happen atomically.
func (maple *mapleImpl) DeleteIfValue(key string, value []byte, now int64) bool {
	now = maple.advance(now)
	shard := maple.shard(key)

	var deleted bool
	shard.Data.Compute(key, func(old internal.Entry, exists bool) (internal.Entry, bool) {
		if !exists {
			return old, true
		}
		if old.IsDeleted(now) {
			maple.trackExpiring(shard, old, -1)
			return old, true
		}
		if !bytes.Equal(old.Value, value) {
			return old, false
		}
		deleted = true
		maple.trackExpiring(shard, old, -1)
		return old, true
	})
	return deleted
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string, now int64) ([]byte, bool) {
	now = maple.advance(now)

	e, ok := maple.shard(key).Data.Load(key)
	if !ok || e.IsDeleted(now) {
		return nil, false
	}

	data := make([]byte, len(e.Value))
	copy(data, e.Value)
	return data, true
}

// Has checks if a live entry exists for the key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string, now int64) bool {
	now = maple.advance(now)

	e, ok := maple.shard(key).Data.Load(key)
	return ok && !e.IsDeleted(now)
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// garbageCollector removes logically deleted entries every gcInterval until Close is called.
// Only shards that hold entries with a deletion time are scanned.
func (maple *mapleImpl) garbageCollector() {
	defer close(maple.gcDone)

	ticker := time.NewTicker(maple.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-maple.gcStop:
			return
		case <-ticker.C:
			maple.collect(maple.clock.Load())
		}
	}
}

// collect removes every entry that is deleted at now
func (maple *mapleImpl) collect(now int64) {
	maple.mu.RLock()
	shards := maple.shards
	maple.mu.RUnlock()

	for _, shard := range shards {
		if shard.Expiring.Value() == 0 {
			continue
		}
		shard.Data.Range(func(key string, e internal.Entry) bool {
			if !e.IsDeleted(now) {
				return true
			}
			// re-check inside Compute, the entry might have been overwritten since Range saw it
			shard.Data.Compute(key, func(old internal.Entry, exists bool) (internal.Entry, bool) {
				if !exists {
					return old, true
				}
				if old.IsDeleted(now) {
					maple.trackExpiring(shard, old, -1)
					return old, true
				}
				return old, false
			})
			return true
		})
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer.
// The snapshot is fuzzy: concurrent writes may or may not be included.
//
// Format: magic, version (uint8), clock (int64), entry count (uint64), then for each entry
// key length (uint32), key, deleteAt (int64), writeAt (int64), value length (uint32), value.
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024)

	type entryToSave struct {
		key   string
		entry internal.Entry
	}

	now := maple.clock.Load()

	maple.mu.RLock()
	shards := maple.shards
	maple.mu.RUnlock()

	var entries []entryToSave
	for _, shard := range shards {
		shard.Data.Range(func(key string, e internal.Entry) bool {
			if e.IsDeleted(now) {
				return true
			}
			value := make([]byte, len(e.Value))
			copy(value, e.Value)
			entries = append(entries, entryToSave{key, internal.Entry{Value: value, DeleteAt: e.DeleteAt, WriteAt: e.WriteAt}})
			return true
		})
	}

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, now); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, item := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(item.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.DeleteAt); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.WriteAt); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.entry.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(item.entry.Value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load replaces the database content with the snapshot read from r.
//
// Thread-safety: Load swaps the shards atomically, operations running concurrently
// either see the old or the new content.
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != mapleVersion {
		return fmt.Errorf("unsupported maple version %d (expected %d)", version, mapleVersion)
	}

	var now int64
	if err := binary.Read(br, binary.LittleEndian, &now); err != nil {
		return err
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	maple.mu.RLock()
	numShards := len(maple.shards)
	maple.mu.RUnlock()

	shards := newShards(numShards)
	for i := uint64(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return err
		}

		var e internal.Entry
		if err := binary.Read(br, binary.LittleEndian, &e.DeleteAt); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &e.WriteAt); err != nil {
			return err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		e.Value = make([]byte, valueLen)
		if _, err := io.ReadFull(br, e.Value); err != nil {
			return err
		}

		shard := internal.GetShard(util.HashString(string(key), maple.seed), shards)
		shard.Data.Store(string(key), e)
		maple.trackExpiring(shard, e, 1)
	}

	maple.mu.Lock()
	maple.shards = shards
	maple.mu.Unlock()
	maple.advance(now)

	return nil
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database. Sizes are estimates.
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	maple.mu.RLock()
	shards := maple.shards
	maple.mu.RUnlock()

	now := maple.clock.Load()
	entries, size := 0, 0
	expiring := int64(0)
	for _, shard := range shards {
		expiring += shard.Expiring.Value()
		shard.Data.Range(func(key string, e internal.Entry) bool {
			if !e.IsDeleted(now) {
				entries++
				size += len(key) + len(e.Value) + 16
			}
			return true
		})
	}

	return db.DatabaseInfo{
		Entries:   entries,
		SizeBytes: size,
		DbType:    db.ImplMaple,
		ClockNano: now,
		Metadata: map[string]interface{}{
			"shards":   len(shards),
			"expiring": expiring,
		},
	}
}

// Clock returns the highest now seen by the database
func (maple *mapleImpl) Clock() int64 {
	return maple.clock.Load()
}

// Close stops the garbage collector
func (maple *mapleImpl) Close() error {
	maple.closeOnce.Do(func() {
		close(maple.gcStop)
		<-maple.gcDone
	})
	return nil
}
