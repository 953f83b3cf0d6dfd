// Package storage executes query descriptors and record writes against SQL
// databases through bun.
//
// BunStore works from entity schemas alone: columns are aliased to public
// field names and rows come back as schema.Record values with driver types
// normalised (sqlite booleans become bool, integers int64, times time.Time).
// RepositoryExecutor serves the same descriptors from a typed
// go-repository-bun repository.
//
// The filter operator vocabulary lives here:
//
//	equals not in notIn lt lte gt gte contains startsWith endsWith
//
// Anything else is rejected with a *query.ValidationError before a statement
// is built. Driver errors are wrapped in *Error and classified by Kind;
// errors.Is(err, ErrNotFound) reports missing records.
package storage
