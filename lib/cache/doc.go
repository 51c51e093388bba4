// Package cache provides the two cache tiers used by the document managers.
//
// The distributed cache stores raw bytes in a store.IStore and is shared by every
// process connected to the same store. The memory cache keeps decoded values per
// process in an xsync.MapOf. Memory entries carry a tag (the version of the
// distributed entry they were decoded from) so a reader can detect that another
// process changed the document.
//
// Memory entries support an absolute expiration and a sliding expiration that is
// refreshed on every read. Expired entries are dropped when they are read and by
// Compact.
//
// Reads are counted in ddoc_cache_requests_total{tier,result}.
package cache
