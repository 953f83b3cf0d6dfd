// Package repositorycache provides a cached decorator for go-repository-bun
// repositories that shares its cache layer with the resource services.
//
// # Overview
//
// CachedRepository wraps a repository.Repository[T] and serves its reads
// through a cache.Layer under a single namespace, normally the route of the
// entity. A write through the decorator invalidates that namespace, so a
// typed caller and the HTTP resource layer never observe each other's stale
// reads.
//
// # Basic Usage
//
//	layer, _ := cache.NewLayer(store, cache.DefaultConfig())
//	todos := repositorycache.New(base, layer, "todos",
//		repositorycache.WithDependents("profiles"),
//	)
//
//	todo, err := todos.GetByID(ctx, "t1")
//	all, total, err := todos.List(ctx)
//
// # Criteria
//
// Select criteria are closures, so two calls with different criteria can
// not be told apart. Reads with criteria bypass the cache unless the caller
// names their scope:
//
//	open := func(q *bun.SelectQuery) *bun.SelectQuery {
//		return q.Where("?TableAlias.done = ?", false)
//	}
//	ctx = repositorycache.WithCacheKey(ctx, "done", false)
//	page, total, err := todos.List(ctx, open)
//
// Equal scopes must mean equal criteria.
//
// # Cached and pass-through operations
//
// Get, GetByID, GetByIdentifier, List and Count are cached. Transaction
// reads, Raw and RawTx always reach the base repository.
//
// Every successful write, transactional or not, invalidates the namespace,
// the namespaces given with WithDependents and any tags attached to the
// context with WithCacheTags:
//
//	ctx = repositorycache.WithCacheTags(ctx, "comments")
//	_, err := todos.Update(ctx, todo)
//
// Failed writes leave the cache untouched.
package repositorycache
