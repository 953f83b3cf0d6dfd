// Package cache provides the read-through cache used by every resource read.
//
// # Overview
//
// The package exports:
//
//   - Layer: a TTL bounded read-through cache over a Store, shared process wide
//   - Cached: the type-safe entry point wrapping a FetchFn
//   - KeySerializer: builds stable cache keys from method names and arguments
//   - Store: the byte oriented backing store contract (sturdyc by default)
//
// # Basic Usage
//
//	store, _ := cache.NewStore(cfg.Store)
//	layer, _ := cache.NewLayer(store, cfg, cache.WithLogger(logger))
//
//	key := layer.Key("todos", "list", descriptor)
//	todos, err := cache.Cached(ctx, layer, key, 2*time.Second, func(ctx context.Context) ([]schema.Record, error) {
//		return executor.Find(ctx, todoSchema, descriptor)
//	})
//
// # Keys
//
// A key is a list of segments joined by KeySeparator; the first segment is the
// namespace, normally the route of the resource ("todos"). Layer.Key serializes
// its arguments with the KeySerializer: map keys are sorted, struct fields are
// written by name and strings are quoted, so requests that differ only in the
// order of object keys share a key while distinct values never collide. With
// Config.HashKeys the serialized arguments are replaced by their xxhash.
//
// Point lookups usually pass an explicit key built with JoinKey instead:
//
//	key := cache.JoinKey("todos", "get", id)
//
// # Expiry
//
// Each entry carries its own expiry (now + ttl). There is no sliding expiration
// and no background sweep: the lookup that finds an expired entry deletes it and
// counts a miss. The Store's own TTL only bounds memory and must be at least the
// longest ttl used.
//
// # Invalidation
//
// Every key written through a Layer is tracked under its namespace. Writes call
// OnWrite with the affected namespaces; when Config.InvalidateOnWrite is false
// OnWrite does nothing and entries leave through expiry only.
//
// The tracked keys of a namespace never outnumber Config.Store.Capacity. Past
// that bound expired keys are dropped, then keys the store evicted on its own
// (for stores implementing KeyLister), then the keys closest to expiry.
//
// A miss that overlaps an invalidation of its namespace returns the fetched
// value without storing it, so a write that commits while a read is in flight
// is never hidden behind the older result.
//
// # Error Handling
//
// The cache is never a correctness dependency. Store errors, corrupt entries
// and payloads that fail to encode are logged, reported to the Recorder and
// bypassed; the FetchFn result is returned. Errors returned by the FetchFn are
// propagated unchanged and never cached. Concurrent misses on one key are not
// deduplicated: each caller runs its own fetch.
package cache
