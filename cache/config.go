package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-repository-query/internal/cacheinfra"
)

// Config exposes cache layer options.
type Config struct {
	// Enabled turns caching on. A disabled layer calls every fetch directly.
	Enabled bool
	// DefaultTTL applies when a caller passes a non-positive ttl.
	DefaultTTL time.Duration
	// InvalidateOnWrite drops every tracked key of a namespace when a write
	// to that namespace is reported. When false, entries only leave through
	// TTL expiry.
	InvalidateOnWrite bool
	// HashKeys replaces the serialized query part of derived keys with its
	// xxhash, keeping keys short.
	HashKeys bool
	Store    StoreConfig
}

// StoreConfig configures the default sturdyc backed store.
type StoreConfig struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		DefaultTTL:        2 * time.Second,
		InvalidateOnWrite: true,
		HashKeys:          true,
		Store:             convertFromInternal(cacheinfra.DefaultConfig()),
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.DefaultTTL, validation.Required, validation.Min(time.Millisecond)),
	); err != nil {
		return err
	}
	if err := c.Store.toInternal().Validate(); err != nil {
		return err
	}
	if c.Store.TTL < c.DefaultTTL {
		return validation.Errors{"Store.TTL": validation.NewError("validation_store_ttl", "must not be shorter than DefaultTTL")}
	}
	return nil
}

var _ KeyLister = (*cacheinfra.SturdycStore)(nil)

// NewStore constructs the default Store implementation.
func NewStore(cfg StoreConfig) (Store, error) {
	store, err := cacheinfra.NewSturdycStore(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (c StoreConfig) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) StoreConfig {
	return StoreConfig{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
