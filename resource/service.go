package resource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-repository-query/cache"
	"github.com/goliatone/go-repository-query/query"
	"github.com/goliatone/go-repository-query/schema"
	"github.com/goliatone/go-repository-query/shape"
	"github.com/goliatone/go-repository-query/storage"
)

// ErrReadOnly is returned by write operations of a Service built without a
// writer.
var ErrReadOnly = errors.New("resource is read-only")

// KeyFunc derives the cache key of a list read. It replaces the default
// derivation from the route and the descriptor.
type KeyFunc func(route string, d query.QueryDescriptor) string

// Service serves one entity: validated reads through the cache layer and
// writes that invalidate every cached read they can affect.
type Service struct {
	schema   *schema.EntitySchema
	registry *schema.Registry
	executor storage.Executor
	writer   storage.Writer
	shaper   *shape.Shaper
	layer    *cache.Layer
	ttl      time.Duration
	maxTake  int
	keyFunc  KeyFunc
	logger   *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithWriter enables Create, Update and Delete.
func WithWriter(w storage.Writer) Option {
	return func(s *Service) {
		s.writer = w
	}
}

// WithCache serves reads through layer with the given ttl. A non-positive
// ttl uses the layer default.
func WithCache(layer *cache.Layer, ttl time.Duration) Option {
	return func(s *Service) {
		s.layer = layer
		s.ttl = ttl
	}
}

// WithMaxTake caps the page size. Requests without take get max, larger
// takes are clamped to it.
func WithMaxTake(max int) Option {
	return func(s *Service) {
		s.maxTake = max
	}
}

// WithKeyFunc overrides list cache keys.
func WithKeyFunc(fn KeyFunc) Option {
	return func(s *Service) {
		s.keyFunc = fn
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds the service of es. The registry resolves relations for shaping
// and invalidation; executor serves reads.
func New(es *schema.EntitySchema, registry *schema.Registry, executor storage.Executor, opts ...Option) *Service {
	s := &Service{
		schema:   es,
		registry: registry,
		executor: executor,
		shaper:   shape.New(registry),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("entity", es.Name)
	return s
}

// Schema returns the entity served.
func (s *Service) Schema() *schema.EntitySchema {
	return s.schema
}

// List validates raw, then returns the shaped page it describes, from the
// cache when a fresh entry exists.
func (s *Service) List(ctx context.Context, raw query.RawQueryRequest) ([]schema.Record, error) {
	d, err := query.Build(raw, s.schema)
	if err != nil {
		return nil, err
	}
	d = s.limit(d)

	return cache.Cached(ctx, s.layer, s.listKey(d), s.ttl, func(ctx context.Context) ([]schema.Record, error) {
		records, err := s.executor.Find(ctx, s.schema, d)
		if err != nil {
			return nil, err
		}
		return s.shaper.Shape(records, d, s.schema), nil
	})
}

// Get returns the record with primary key id. Only select and include are
// accepted in raw. A missing record yields storage.ErrNotFound, which is
// never cached.
func (s *Service) Get(ctx context.Context, id string, raw query.RawQueryRequest) (schema.Record, error) {
	verr := &query.ValidationError{}
	if len(raw.Where) > 0 {
		verr.Add(query.ParamWhere, "", "not supported on point lookups")
	}
	if len(raw.Sort) > 0 {
		verr.Add(query.ParamSort, "", "not supported on point lookups")
	}
	if raw.Skip != nil {
		verr.Add(query.ParamSkip, "", "not supported on point lookups")
	}
	if raw.Take != nil {
		verr.Add(query.ParamTake, "", "not supported on point lookups")
	}

	d, err := query.Build(query.RawQueryRequest{
		Select:   raw.Select,
		Include:  raw.Include,
		Problems: raw.Problems,
	}, s.schema)
	if err != nil {
		var berr *query.ValidationError
		if errors.As(err, &berr) {
			verr.Merge(berr)
		} else {
			return nil, err
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	pk, err := s.primaryKey(id)
	if err != nil {
		return nil, err
	}
	d = d.WithCondition(query.Condition{Field: s.schema.PrimaryKey, Operator: query.OperatorEquals, Value: pk})
	d.Take = query.Int(1)

	key := cache.JoinKey(s.schema.Route, "get", id, projectionKey(d.Projection))
	return cache.Cached(ctx, s.layer, key, s.ttl, func(ctx context.Context) (schema.Record, error) {
		records, err := s.executor.Find(ctx, s.schema, d)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, &storage.Error{Kind: storage.KindNotFound, Entity: s.schema.Name, Op: "get", Err: storage.ErrNotFound}
		}
		return s.shaper.ShapeOne(records[0], d, s.schema), nil
	})
}

// Create validates payload against the allow-list, stores it and returns
// the stored record in its public form.
func (s *Service) Create(ctx context.Context, payload schema.Record) (schema.Record, error) {
	if s.writer == nil {
		return nil, ErrReadOnly
	}
	if err := s.validatePayload(payload, false); err != nil {
		return nil, err
	}

	rec, err := s.writer.Insert(ctx, s.schema, payload)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "create")
	return s.shaper.ShapeOne(rec, query.QueryDescriptor{}, s.schema), nil
}

// Update applies patch to the record with primary key id. The primary key
// itself can not be patched.
func (s *Service) Update(ctx context.Context, id string, patch schema.Record) (schema.Record, error) {
	if s.writer == nil {
		return nil, ErrReadOnly
	}
	if err := s.validatePayload(patch, true); err != nil {
		return nil, err
	}

	rec, err := s.writer.Update(ctx, s.schema, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "update")
	return s.shaper.ShapeOne(rec, query.QueryDescriptor{}, s.schema), nil
}

// Delete removes the record with primary key id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.writer == nil {
		return ErrReadOnly
	}
	if err := s.writer.Delete(ctx, s.schema, id); err != nil {
		return err
	}
	s.invalidate(ctx, "delete")
	return nil
}

// Namespaces returns the cache namespaces a write to this entity affects:
// its own route and the routes of every entity that can include it.
func (s *Service) Namespaces() []string {
	namespaces := []string{s.schema.Route}
	if s.registry != nil {
		namespaces = append(namespaces, s.registry.Dependents(s.schema.Name)...)
	}
	return namespaces
}

func (s *Service) invalidate(ctx context.Context, op string) {
	namespaces := s.Namespaces()
	if n := s.layer.OnWrite(ctx, namespaces...); n > 0 {
		s.logger.Debug("cache invalidated after write", "op", op, "namespaces", namespaces, "keys", n)
	}
}

func (s *Service) validatePayload(payload schema.Record, update bool) error {
	names := make([]string, 0, len(payload))
	for name := range payload {
		names = append(names, name)
	}
	sort.Strings(names)

	verr := &query.ValidationError{}
	verr.Merge(query.ValidateFields(storage.ParamBody, names, s.schema.ScalarFields()))
	if _, ok := payload[s.schema.PrimaryKey]; ok && update {
		verr.Add(storage.ParamBody, s.schema.PrimaryKey, "can not be changed")
	}
	return verr.Err()
}

func (s *Service) limit(d query.QueryDescriptor) query.QueryDescriptor {
	if s.maxTake <= 0 {
		return d
	}
	if take, ok := d.Limit(); !ok || take > s.maxTake {
		d.Take = query.Int(s.maxTake)
	}
	return d
}

func (s *Service) listKey(d query.QueryDescriptor) string {
	if !s.layer.Enabled() {
		return ""
	}
	if s.keyFunc != nil {
		return s.keyFunc(s.schema.Route, d)
	}
	return s.layer.Key(s.schema.Route, "list", d)
}

// primaryKey converts a path id to the type of the primary key field.
func (s *Service) primaryKey(id string) (any, error) {
	f, _ := s.schema.Field(s.schema.PrimaryKey)
	if f.Type != schema.Int {
		return id, nil
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, &storage.Error{Kind: storage.KindNotFound, Entity: s.schema.Name, Op: "get", Err: storage.ErrNotFound}
	}
	return n, nil
}

func projectionKey(p query.Projection) string {
	if p.Mode == query.ModeAll {
		return p.Mode.String()
	}
	return p.Mode.String() + ":" + strings.Join(p.Fields, ",")
}
