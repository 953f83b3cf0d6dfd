package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// Layer is a read-through cache with per call TTL. One Layer is built at
// process start and shared by every resource.
//
// Entries are evicted lazily: an expired entry is removed by the lookup that
// finds it. Keys are grouped by namespace (the part before the first
// KeySeparator) so that a write can drop every read of one resource.
type Layer struct {
	store      Store
	serializer KeySerializer
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time

	enabled           bool
	defaultTTL        time.Duration
	invalidateOnWrite bool
	hashKeys          bool

	// namespace -> keys written through this layer and when they expire
	keys *xsync.MapOf[string, *xsync.MapOf[string, time.Time]]
	// namespace -> invalidation count, guards misses that race a write
	generations *xsync.MapOf[string, uint64]
	// upper bound of tracked keys per namespace
	maxTracked int
}

// Option customises a Layer.
type Option func(*Layer)

// WithLogger sets the logger used to report degraded store operations.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Layer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Layer) {
		if r != nil {
			l.recorder = r
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Layer) {
		if now != nil {
			l.now = now
		}
	}
}

// WithKeySerializer replaces the default key serializer.
func WithKeySerializer(s KeySerializer) Option {
	return func(l *Layer) {
		if s != nil {
			l.serializer = s
		}
	}
}

// NewLayer builds a Layer over store.
func NewLayer(store Store, cfg Config, opts ...Option) (*Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Layer{
		store:             store,
		serializer:        NewDefaultKeySerializer(),
		recorder:          nopRecorder{},
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:               time.Now,
		enabled:           cfg.Enabled,
		defaultTTL:        cfg.DefaultTTL,
		invalidateOnWrite: cfg.InvalidateOnWrite,
		hashKeys:          cfg.HashKeys,
		keys:              xsync.NewMapOf[string, *xsync.MapOf[string, time.Time]](),
		generations:       xsync.NewMapOf[string, uint64](),
		maxTracked:        cfg.Store.Capacity,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Enabled reports whether reads are cached.
func (l *Layer) Enabled() bool {
	return l != nil && l.enabled
}

// DefaultTTL returns the TTL used for non-positive ttl arguments.
func (l *Layer) DefaultTTL() time.Duration {
	return l.defaultTTL
}

// Key derives the default cache key of a read: the namespace, the method
// and the serialized arguments. With hashing on the arguments are replaced
// by their 64 bit xxhash.
func (l *Layer) Key(namespace, method string, args ...any) string {
	serialized := l.serializer.SerializeKey(method, args...)
	if !l.hashKeys || len(args) == 0 {
		return JoinKey(namespace, serialized)
	}
	sum := xxhash.Sum64String(serialized)
	return JoinKey(namespace, method, strconv.FormatUint(sum, 16))
}

// JoinKey builds an explicit key from its segments. The first segment is the
// namespace.
func JoinKey(namespace string, parts ...string) string {
	return strings.Join(append([]string{namespace}, parts...), KeySeparator)
}

// Namespace returns the namespace segment of key.
func Namespace(key string) string {
	ns, _, _ := strings.Cut(key, KeySeparator)
	return ns
}

// Cached returns the value stored under key, or calls fetch and stores its
// result for ttl. A hit never calls fetch and does not extend the entry's
// life. Errors from fetch are returned and never cached. Store failures are
// logged and otherwise ignored: the cache never fails a read that fetch can
// serve.
//
// Both hits and misses return the value as decoded from the stored payload,
// so callers observe the same representation either way. A miss whose
// namespace is invalidated while fetch runs returns its value uncached.
func Cached[T any](ctx context.Context, l *Layer, key string, ttl time.Duration, fetch FetchFn[T]) (T, error) {
	if !l.Enabled() {
		return fetch(ctx)
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	ns := Namespace(key)

	if payload, ok := l.lookup(ctx, key, ns); ok {
		var value T
		err := decode(payload, &value)
		if err == nil {
			l.recorder.Hit(ns)
			return value, nil
		}
		l.logger.Warn("cache payload decode failed", "key", key, "error", fmt.Errorf("%w: %v", ErrInvalidResultType, err))
		l.recorder.StoreError("decode")
		l.remove(ctx, key, ns)
	}

	l.recorder.Miss(ns)
	gen := l.generation(ns)
	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	payload, err := encode(value)
	if err != nil {
		l.logger.Warn("cache payload encode failed", "key", key, "error", err)
		l.recorder.StoreError("encode")
		return value, nil
	}
	l.put(ctx, key, ns, gen, payload, ttl)

	var stored T
	if err := decode(payload, &stored); err != nil {
		return value, nil
	}
	return stored, nil
}

func (l *Layer) lookup(ctx context.Context, key, ns string) ([]byte, bool) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn("cache store unavailable, reading through", "op", "get", "key", key, "error", err)
		l.recorder.StoreError("get")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		l.logger.Warn("dropping corrupt cache entry", "key", key, "error", err)
		l.recorder.StoreError("decode")
		l.remove(ctx, key, ns)
		return nil, false
	}
	if env.expired(l.now()) {
		l.recorder.Expired(ns)
		l.remove(ctx, key, ns)
		return nil, false
	}
	return env.Payload, true
}

func (l *Layer) put(ctx context.Context, key, ns string, gen uint64, payload []byte, ttl time.Duration) {
	if l.generation(ns) != gen {
		return
	}
	expiresAt := l.now().Add(ttl)
	raw, err := encodeEnvelope(payload, expiresAt)
	if err != nil {
		l.logger.Warn("cache envelope encode failed", "key", key, "error", err)
		l.recorder.StoreError("encode")
		return
	}
	if err := l.store.Set(ctx, key, raw); err != nil {
		l.logger.Warn("cache store unavailable, result not cached", "op", "set", "key", key, "error", err)
		l.recorder.StoreError("set")
		return
	}
	set, _ := l.keys.LoadOrCompute(ns, func() *xsync.MapOf[string, time.Time] {
		return xsync.NewMapOf[string, time.Time]()
	})
	set.Store(key, expiresAt)

	// Invalidate bumps the generation before it walks the tracked keys, so
	// a write that slipped in after the check above is caught here.
	if l.generation(ns) != gen {
		l.remove(ctx, key, ns)
		return
	}
	if set.Size() > l.maxTracked {
		l.prune(ctx, ns, set)
	}
}

func (l *Layer) generation(ns string) uint64 {
	gen, _ := l.generations.Load(ns)
	return gen
}

// prune shrinks the tracked keys of ns to 90% of the store capacity. Expired
// keys go first, then keys the store no longer holds. Whatever is still over
// the limit is evicted from the store, soonest to expire first, so every key
// the store holds for ns stays tracked.
func (l *Layer) prune(ctx context.Context, ns string, set *xsync.MapOf[string, time.Time]) {
	target := l.maxTracked - l.maxTracked/10
	now := l.now().UnixNano()

	set.Range(func(key string, expiresAt time.Time) bool {
		if now >= expiresAt.UnixNano() {
			l.remove(ctx, key, ns)
		}
		return true
	})
	if set.Size() <= target {
		return
	}

	if lister, ok := l.store.(KeyLister); ok {
		held := make(map[string]struct{})
		for _, key := range lister.Keys() {
			held[key] = struct{}{}
		}
		set.Range(func(key string, _ time.Time) bool {
			if _, ok := held[key]; !ok {
				l.remove(ctx, key, ns)
			}
			return true
		})
		if set.Size() <= target {
			return
		}
	}

	type tracked struct {
		key       string
		expiresAt time.Time
	}
	entries := make([]tracked, 0, set.Size())
	set.Range(func(key string, expiresAt time.Time) bool {
		entries = append(entries, tracked{key: key, expiresAt: expiresAt})
		return true
	})
	slices.SortFunc(entries, func(a, b tracked) int {
		return a.expiresAt.Compare(b.expiresAt)
	})
	evict := max(len(entries)-target, 0)
	for _, e := range entries[:evict] {
		l.remove(ctx, e.key, ns)
	}
	l.logger.Debug("cache tracked keys pruned", "namespace", ns, "evicted", evict)
}

func (l *Layer) remove(ctx context.Context, key, ns string) {
	if err := l.store.Delete(ctx, key); err != nil {
		l.logger.Warn("cache store unavailable", "op", "delete", "key", key, "error", err)
		l.recorder.StoreError("delete")
	}
	if set, ok := l.keys.Load(ns); ok {
		set.Delete(key)
	}
}

// Delete removes a single key.
func (l *Layer) Delete(ctx context.Context, key string) {
	if l == nil {
		return
	}
	l.remove(ctx, key, Namespace(key))
}

// Invalidate drops every key written through this layer under the given
// namespaces and returns how many were dropped.
func (l *Layer) Invalidate(ctx context.Context, namespaces ...string) int {
	if l == nil {
		return 0
	}

	total := 0
	for _, ns := range namespaces {
		l.generations.Compute(ns, func(gen uint64, _ bool) (uint64, bool) {
			return gen + 1, false
		})
		set, ok := l.keys.Load(ns)
		if !ok {
			continue
		}
		n := 0
		set.Range(func(key string, _ time.Time) bool {
			l.remove(ctx, key, ns)
			n++
			return true
		})
		if n > 0 {
			l.recorder.Invalidated(ns, n)
			l.logger.Debug("cache namespace invalidated", "namespace", ns, "keys", n)
		}
		total += n
	}
	return total
}

// OnWrite reports a successful write to the given namespaces. It invalidates
// them when InvalidateOnWrite is set and is a no-op otherwise.
func (l *Layer) OnWrite(ctx context.Context, namespaces ...string) int {
	if !l.Enabled() || !l.invalidateOnWrite {
		return 0
	}
	return l.Invalidate(ctx, namespaces...)
}

// Tracked returns the number of keys currently tracked for namespace.
func (l *Layer) Tracked(namespace string) int {
	set, ok := l.keys.Load(namespace)
	if !ok {
		return 0
	}
	return set.Size()
}
