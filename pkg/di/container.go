package di

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-query/cache"
	"github.com/goliatone/go-repository-query/repositorycache"
	"github.com/goliatone/go-repository-query/resource"
	"github.com/goliatone/go-repository-query/schema"
	"github.com/goliatone/go-repository-query/storage"
)

// Option customises a Container.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	recorder  cache.Recorder
	clock     func() time.Time
	idGen     func() string
	maxTake   int
	executors map[string]storage.Executor
	readOnly  map[string]bool
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRecorder reports cache events to r.
func WithRecorder(r cache.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithClock replaces the clock the cache layer checks expiry against.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithIDGenerator sets how inserted records without an id get one.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.idGen = fn
	}
}

// WithMaxTake caps the page size of every service; zero leaves it uncapped.
func WithMaxTake(max int) Option {
	return func(o *options) {
		o.maxTake = max
	}
}

// WithExecutor serves reads of route from exec instead of the bun store.
func WithExecutor(route string, exec storage.Executor) Option {
	return func(o *options) {
		if o.executors == nil {
			o.executors = map[string]storage.Executor{}
		}
		o.executors[route] = exec
	}
}

// WithReadOnly disables writes on the given routes.
func WithReadOnly(routes ...string) Option {
	return func(o *options) {
		if o.readOnly == nil {
			o.readOnly = map[string]bool{}
		}
		for _, r := range routes {
			o.readOnly[r] = true
		}
	}
}

// Container wires one resource service per registered entity around a
// shared cache layer and bun store. Typed repositories decorated with
// NewCachedRepository share the same layer, so writes through either path
// invalidate the other.
type Container struct {
	config   cache.Config
	layer    *cache.Layer
	registry *schema.Registry
	store    *storage.BunStore
	services []*resource.Service
	byRoute  map[string]*resource.Service
	logger   *slog.Logger
}

// NewContainer validates the registry and cfg, then builds the cache layer,
// the bun store over db and a service for every entity.
func NewContainer(db bun.IDB, registry *schema.Registry, cfg cache.Config, opts ...Option) (*Container, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("di: registry: %w", err)
	}

	backend, err := cache.NewStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("di: cache store: %w", err)
	}
	layerOpts := []cache.Option{cache.WithLogger(o.logger)}
	if o.recorder != nil {
		layerOpts = append(layerOpts, cache.WithRecorder(o.recorder))
	}
	if o.clock != nil {
		layerOpts = append(layerOpts, cache.WithClock(o.clock))
	}
	layer, err := cache.NewLayer(backend, cfg, layerOpts...)
	if err != nil {
		return nil, fmt.Errorf("di: cache layer: %w", err)
	}

	storeOpts := []storage.StoreOption{storage.WithLogger(o.logger)}
	if o.idGen != nil {
		storeOpts = append(storeOpts, storage.WithIDGenerator(o.idGen))
	}
	store := storage.NewBunStore(db, registry, storeOpts...)

	c := &Container{
		config:   cfg,
		layer:    layer,
		registry: registry,
		store:    store,
		byRoute:  map[string]*resource.Service{},
		logger:   o.logger,
	}
	for _, es := range registry.All() {
		var exec storage.Executor = store
		if e, ok := o.executors[es.Route]; ok {
			exec = e
		}
		svcOpts := []resource.Option{
			resource.WithCache(layer, cfg.DefaultTTL),
			resource.WithMaxTake(o.maxTake),
			resource.WithLogger(o.logger),
		}
		if !o.readOnly[es.Route] {
			svcOpts = append(svcOpts, resource.WithWriter(store))
		}
		svc := resource.New(es, registry, exec, svcOpts...)
		c.services = append(c.services, svc)
		c.byRoute[es.Route] = svc
	}
	return c, nil
}

// NewContainerWithDefaults builds a container with cache.DefaultConfig.
func NewContainerWithDefaults(db bun.IDB, registry *schema.Registry, opts ...Option) (*Container, error) {
	return NewContainer(db, registry, cache.DefaultConfig(), opts...)
}

// Layer returns the shared cache layer.
func (c *Container) Layer() *cache.Layer {
	return c.layer
}

// Registry returns the entity registry.
func (c *Container) Registry() *schema.Registry {
	return c.registry
}

// Store returns the bun store behind the services.
func (c *Container) Store() *storage.BunStore {
	return c.store
}

// Services returns the services in registration order.
func (c *Container) Services() []*resource.Service {
	return c.services
}

// Service returns the service mounted at route.
func (c *Container) Service(route string) (*resource.Service, bool) {
	svc, ok := c.byRoute[route]
	return svc, ok
}

// Config returns the cache configuration.
func (c *Container) Config() cache.Config {
	return c.config
}

// NewCachedRepository decorates base with the container's cache layer under
// the namespace of route. Writes also invalidate the routes of every entity
// that can include this one.
//
// Go methods can not have type parameters, so this is a package function:
//
//	todos := di.NewCachedRepository[entities.TodoModel](container, base, "todos")
func NewCachedRepository[T any](c *Container, base repository.Repository[T], route string, opts ...repositorycache.Option) *repositorycache.CachedRepository[T] {
	all := []repositorycache.Option{
		repositorycache.WithTTL(c.config.DefaultTTL),
		repositorycache.WithLogger(c.logger),
	}
	if es, err := c.registry.ByRoute(route); err == nil {
		all = append(all, repositorycache.WithDependents(c.registry.Dependents(es.Name)...))
	}
	return repositorycache.New(base, c.layer, route, append(all, opts...)...)
}
