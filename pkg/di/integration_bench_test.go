package di

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-query/cache"
	"github.com/goliatone/go-repository-query/internal/entities"
	"github.com/goliatone/go-repository-query/query"
	"github.com/goliatone/go-repository-query/schema"
)

func seedTodos(b *testing.B, c *Container, n int) {
	b.Helper()
	ctx := context.Background()
	profiles := mustService(b, c, "profiles")
	todos := mustService(b, c, "todos")

	ada, err := profiles.Create(ctx, schema.Record{"name": "Ada"})
	require.NoError(b, err)
	for i := 0; i < n; i++ {
		_, err := todos.Create(ctx, schema.Record{
			"title":     fmt.Sprintf("todo %03d", i),
			"priority":  i % 5,
			"profileId": ada["id"],
		})
		require.NoError(b, err)
	}
}

var benchRequest = query.RawQueryRequest{
	Where:   map[string]any{"priority": map[string]any{"gte": int64(2)}},
	Sort:    []query.SortTerm{{Field: "title", Direction: "desc"}},
	Include: []string{"profile"},
	Take:    query.Int(20),
}

func BenchmarkServiceList(b *testing.B) {
	for _, tc := range []struct {
		name    string
		enabled bool
	}{
		{name: "cached", enabled: true},
		{name: "uncached", enabled: false},
	} {
		b.Run(tc.name, func(b *testing.B) {
			registry, err := entities.NewRegistry()
			require.NoError(b, err)
			cfg := cache.DefaultConfig()
			cfg.Enabled = tc.enabled
			c, err := NewContainer(newMigratedDB(b), registry, cfg, WithIDGenerator(sequentialIDs("todo")))
			require.NoError(b, err)
			seedTodos(b, c, 200)

			todos := mustService(b, c, "todos")
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := todos.List(ctx, benchRequest); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkServiceListAfterWrite(b *testing.B) {
	f := newContainerFixture(b)
	seedTodos(b, f.container, 200)
	todos := mustService(b, f.container, "todos")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := todos.List(ctx, benchRequest); err != nil {
			b.Fatal(err)
		}
		if _, err := todos.Update(ctx, "id-2", schema.Record{"done": i%2 == 0}); err != nil {
			b.Fatal(err)
		}
	}
}
