package repositorycache

import (
	"context"
	"io"
	"log/slog"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-query/cache"
)

var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult wraps the tuple result of List for caching.
type listResult[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
}

// CachedRepository decorates a typed repository with read-through caching.
// Every key lives under one namespace, usually the route of the entity, so
// writes made through the resource layer and through this decorator
// invalidate each other.
//
// Criteria are closures and carry no comparable identity. Reads with
// criteria are only cached when the context names their scope through
// WithCacheKey; otherwise they go straight to the base repository.
type CachedRepository[T any] struct {
	base       repository.Repository[T]
	layer      *cache.Layer
	namespace  string
	ttl        time.Duration
	dependents []string
	logger     *slog.Logger
}

// Option customises a CachedRepository.
type Option func(*options)

type options struct {
	ttl        time.Duration
	dependents []string
	logger     *slog.Logger
}

// WithTTL sets the lifetime of cached reads. Non-positive values use the
// layer default.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithDependents names namespaces invalidated together with the
// repository's own on every write.
func WithDependents(namespaces ...string) Option {
	return func(o *options) {
		o.dependents = append(o.dependents, namespaces...)
	}
}

// WithLogger sets the decorator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New wraps base, caching its reads in layer under namespace.
func New[T any](base repository.Repository[T], layer *cache.Layer, namespace string, opts ...Option) *CachedRepository[T] {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CachedRepository[T]{
		base:       base,
		layer:      layer,
		namespace:  namespace,
		ttl:        o.ttl,
		dependents: dedupeStrings(o.dependents),
		logger:     o.logger.With("namespace", namespace),
	}
}

// Namespace returns the cache namespace of the repository.
func (c *CachedRepository[T]) Namespace() string {
	return c.namespace
}

// readKey returns the cache key of a read, or false when the read must
// bypass the cache.
func (c *CachedRepository[T]) readKey(ctx context.Context, method string, criteria int, args ...any) (string, bool) {
	if !c.layer.Enabled() {
		return "", false
	}
	scope, scoped := cacheKeyFromContext(ctx)
	if criteria > 0 && !scoped {
		return "", false
	}
	if scoped {
		args = append(args, scope)
	}
	return c.layer.Key(c.namespace, method, args...), true
}

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.readKey(ctx, "get", len(criteria))
	if !ok {
		return c.base.Get(ctx, criteria...)
	}
	return cache.Cached(ctx, c.layer, key, c.ttl, func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.readKey(ctx, "get_by_id", len(criteria), id)
	if !ok {
		return c.base.GetByID(ctx, id, criteria...)
	}
	return cache.Cached(ctx, c.layer, key, c.ttl, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	key, ok := c.readKey(ctx, "list", len(criteria))
	if !ok {
		return c.base.List(ctx, criteria...)
	}
	res, err := cache.Cached(ctx, c.layer, key, c.ttl, func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	key, ok := c.readKey(ctx, "count", len(criteria))
	if !ok {
		return c.base.Count(ctx, criteria...)
	}
	return cache.Cached(ctx, c.layer, key, c.ttl, func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.readKey(ctx, "get_by_identifier", len(criteria), identifier)
	if !ok {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}
	return cache.Cached(ctx, c.layer, key, c.ttl, func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	})
}

// Create creates a new record and invalidates the namespace
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	c.afterWrite(ctx, "create", err)
	return result, err
}

// CreateTx creates a new record within a transaction
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	c.afterWrite(ctx, "create", err)
	return result, err
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	c.afterWrite(ctx, "create_many", err)
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	c.afterWrite(ctx, "create_many", err)
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	c.afterWrite(ctx, "get_or_create", err)
	return result, err
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	c.afterWrite(ctx, "get_or_create", err)
	return result, err
}

// Update updates a record
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	c.afterWrite(ctx, "update", err)
	return result, err
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	c.afterWrite(ctx, "update", err)
	return result, err
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	c.afterWrite(ctx, "update_many", err)
	return result, err
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	c.afterWrite(ctx, "update_many", err)
	return result, err
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	c.afterWrite(ctx, "upsert", err)
	return result, err
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	c.afterWrite(ctx, "upsert", err)
	return result, err
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	c.afterWrite(ctx, "upsert_many", err)
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	c.afterWrite(ctx, "upsert_many", err)
	return result, err
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	c.afterWrite(ctx, "delete", err)
	return err
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	c.afterWrite(ctx, "delete", err)
	return err
}

// DeleteMany deletes multiple records based on criteria
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	c.afterWrite(ctx, "delete_many", err)
	return err
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	c.afterWrite(ctx, "delete_many", err)
	return err
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	c.afterWrite(ctx, "delete_where", err)
	return err
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	c.afterWrite(ctx, "delete_where", err)
	return err
}

// ForceDelete force deletes a record, bypassing soft delete
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	c.afterWrite(ctx, "force_delete", err)
	return err
}

// ForceDeleteTx force deletes a record within a transaction
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	c.afterWrite(ctx, "force_delete", err)
	return err
}

// GetTx reads inside a transaction and never touches the cache
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx reads inside a transaction and never touches the cache
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx reads inside a transaction and never touches the cache
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx reads inside a transaction and never touches the cache
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx reads inside a transaction and never touches the cache
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query. Results are never cached.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction.
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// afterWrite invalidates the repository namespace, its dependents and any
// namespaces tagged on ctx once a write succeeded.
func (c *CachedRepository[T]) afterWrite(ctx context.Context, op string, err error) {
	if err != nil {
		return
	}
	namespaces := c.writeNamespaces(ctx)
	if n := c.layer.OnWrite(ctx, namespaces...); n > 0 {
		c.logger.Debug("cache invalidated after write", "op", op, "namespaces", namespaces, "keys", n)
	}
}

func (c *CachedRepository[T]) writeNamespaces(ctx context.Context) []string {
	namespaces := append([]string{c.namespace}, c.dependents...)
	namespaces = append(namespaces, cacheTagsFromContext(ctx)...)
	return dedupeStrings(namespaces)
}
