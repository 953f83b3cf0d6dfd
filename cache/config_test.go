package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-query/internal/cacheinfra"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.InvalidateOnWrite)
	assert.True(t, cfg.HashKeys)
	assert.Equal(t, 2*time.Second, cfg.DefaultTTL)
	assert.Equal(t, 10000, cfg.Store.Capacity)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		check   func(t *testing.T, err error)
		wantErr bool
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "missing default ttl",
			mutate:  func(c *Config) { c.DefaultTTL = 0 },
			wantErr: true,
			check: func(t *testing.T, err error) {
				var verrs validation.Errors
				require.True(t, errors.As(err, &verrs))
				assert.Contains(t, verrs, "DefaultTTL")
			},
		},
		{
			name:    "store ttl shorter than default ttl",
			mutate:  func(c *Config) { c.DefaultTTL = time.Hour },
			wantErr: true,
			check: func(t *testing.T, err error) {
				var verrs validation.Errors
				require.True(t, errors.As(err, &verrs))
				assert.Contains(t, verrs, "Store.TTL")
			},
		},
		{
			name:    "invalid store",
			mutate:  func(c *Config) { c.Store.NumShards = 0 },
			wantErr: true,
			check: func(t *testing.T, err error) {
				var cfgErr *cacheinfra.ConfigError
				require.True(t, errors.As(err, &cfgErr))
				assert.Equal(t, "NumShards", cfgErr.Field)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestNewLayer_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultTTL = 0

	layer, err := NewLayer(newMemoryStore(), cfg)
	assert.Error(t, err)
	assert.Nil(t, layer)
}

func TestNewStore_BacksALayer(t *testing.T) {
	cfg := DefaultConfig()
	store, err := NewStore(cfg.Store)
	require.NoError(t, err)

	layer, err := NewLayer(store, cfg)
	require.NoError(t, err)

	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}
	for i := 0; i < 2; i++ {
		n, err := Cached(ctx, layer, JoinKey("todos", "count"), 0, fetch)
		require.NoError(t, err)
		assert.Equal(t, 42, n)
	}
	assert.Equal(t, 1, calls)
}

func TestNewStore_InvalidConfig(t *testing.T) {
	store, err := NewStore(StoreConfig{})
	assert.Error(t, err)
	assert.Nil(t, store)
}
