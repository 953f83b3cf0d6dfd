package cache

import (
	"context"
	"errors"
)

// ErrInvalidResultType is returned when a cached payload can not be decoded
// into the type requested by the caller.
var ErrInvalidResultType = errors.New("cache: invalid result type")

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn loads a value from the source of truth on a cache miss.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Store is the backing store of a Layer. Values are opaque byte slices that
// are written and replaced wholesale. Implementations must be safe for
// concurrent use; an error from any method is treated as the store being
// unavailable and never fails the caller's read.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// KeyLister is implemented by stores that can report the keys they hold.
// The Layer uses it to forget keys the store evicted on its own.
type KeyLister interface {
	Keys() []string
}

// Recorder receives cache events, typically to export metrics.
type Recorder interface {
	Hit(namespace string)
	Miss(namespace string)
	Expired(namespace string)
	StoreError(op string)
	Invalidated(namespace string, keys int)
}

type nopRecorder struct{}

func (nopRecorder) Hit(string)              {}
func (nopRecorder) Miss(string)             {}
func (nopRecorder) Expired(string)          {}
func (nopRecorder) StoreError(string)       {}
func (nopRecorder) Invalidated(string, int) {}
