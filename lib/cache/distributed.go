package cache

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/store"
)

type distributedCache struct {
	store store.IStore
}

// NewDistributedCache creates a distributed cache on top of the given store.
// All processes using the same store (e.g. through the rpc client) share the cache.
func NewDistributedCache(s store.IStore) IDistributedCache {
	return &distributedCache{store: s}
}

func (c *distributedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	value, loaded, err := c.store.Get(key)
	recordDistributed(loaded, err)
	if err != nil {
		return nil, false, fmt.Errorf("distributed cache get %q: %w", key, err)
	}
	return value, loaded, nil
}

func (c *distributedCache) Set(ctx context.Context, key string, value []byte, opts DistributedEntryOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	if opts.AbsoluteExpirationRelativeToNow > 0 {
		err = c.store.SetE(key, value, opts.AbsoluteExpirationRelativeToNow)
	} else {
		err = c.store.Set(key, value)
	}
	if err != nil {
		return fmt.Errorf("distributed cache set %q: %w", key, err)
	}
	return nil
}

func (c *distributedCache) Add(ctx context.Context, key string, value []byte, opts DistributedEntryOptions) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	added, err := c.store.SetEIfUnset(key, value, opts.AbsoluteExpirationRelativeToNow)
	if err != nil {
		return false, fmt.Errorf("distributed cache add %q: %w", key, err)
	}
	return added, nil
}

func (c *distributedCache) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.store.Delete(key); err != nil {
		return fmt.Errorf("distributed cache remove %q: %w", key, err)
	}
	return nil
}

func (c *distributedCache) RemoveIfValue(ctx context.Context, key string, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	removed, err := c.store.DeleteIfValue(key, value)
	if err != nil {
		return false, fmt.Errorf("distributed cache remove %q: %w", key, err)
	}
	return removed, nil
}
