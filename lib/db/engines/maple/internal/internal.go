package internal

import (
	"github.com/ValentinKolb/dDoc/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with its deletion deadline
type Entry struct {
	Value    []byte // Stored data
	DeleteAt int64  // Deletion time in unix nanoseconds (0 = never)
	WriteAt  int64  // Engine clock when the entry was written
}

// IsDeleted returns whether the entry is logically deleted at now
func (e Entry) IsDeleted(now int64) bool {
	return e.DeleteAt != 0 && now >= e.DeleteAt
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[string, Entry]
	// Expiring counts the entries with a deletion time, the gc skips shards where it is zero
	Expiring *xsync.Counter
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data:     xsync.NewMapOf[string, Entry](),
		Expiring: xsync.NewCounter(),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
