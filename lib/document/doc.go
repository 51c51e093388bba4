// Package document caches singleton documents in two tiers and updates them atomically
// across processes.
//
// A document lives under a cache key in the distributed cache as a snapshot (version
// token + JSON payload, zstd compressed from CompressThreshold bytes on). The version
// token is repeated under the cache id key. Every process keeps the decoded document in
// its memory cache, tagged with the token it was decoded from. A read compares the tag
// with the current token and refetches the snapshot when they differ, so a write in one
// process invalidates the memory cache of all others. Memory entries are never changed in
// place: GetOrCreateImmutable returns a shared instance that callers must not modify,
// GetOrCreateMutable a private copy.
//
// Manager serves durable documents: the committed copy lives in a store and is written
// through a unit of work (Update). After the commit the snapshot is refreshed.
//
// VolatileManager serves documents that only exist in the caches. UpdateAtomic collects
// update functions per unit of work. On commit they run as one pipeline under the
// distributed lock CacheKey + "_LOCK", starting from the snapshot read under the lock,
// and the result is written once. A lock that stays busy for LockTimeout drops the
// pending updates.
//
// Every write assigns a new version token. The document identifier is assigned on the
// first write and kept afterwards.
package document
