package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/goliatone/go-repository-query/internal/entities"
	"github.com/goliatone/go-repository-query/query"
	"github.com/goliatone/go-repository-query/schema"
	"github.com/goliatone/go-repository-query/storage"
)

func openSQLite(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open(DriverSQLite, path+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	return db
}

func newRunner(t *testing.T, path string) *Runner {
	t.Helper()
	r, err := New(openSQLite(t, path), DriverSQLite, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRunner_UpDownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	r := newRunner(t, path)

	_, _, ok, err := r.Version()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Up())
	version, dirty, ok, err := r.Version()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	require.NoError(t, r.Up(), "nothing to apply is not an error")

	require.NoError(t, r.Down(1))
	version, _, _, err = r.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	assert.Error(t, r.Down(0))
}

func TestRunner_SchemaServesEveryEntity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	require.NoError(t, newRunner(t, path).Up())

	sqldb := openSQLite(t, path)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	registry, err := entities.NewRegistry()
	require.NoError(t, err)
	store := storage.NewBunStore(db, registry)
	ctx := context.Background()

	author, err := store.Insert(ctx, mustLookup(t, registry, entities.Profile), schema.Record{"name": "Ada"})
	require.NoError(t, err)
	post, err := store.Insert(ctx, mustLookup(t, registry, entities.Post), schema.Record{
		"title":    "Hello",
		"authorId": author["id"],
	})
	require.NoError(t, err)
	_, err = store.Insert(ctx, mustLookup(t, registry, entities.Comment), schema.Record{
		"postId": post["id"],
		"body":   "first",
	})
	require.NoError(t, err)

	for _, es := range registry.All() {
		t.Run(es.Route, func(t *testing.T) {
			d := query.QueryDescriptor{
				Entity:     es.Name,
				Projection: query.Projection{Mode: query.ModeInclude, Fields: es.RelationFields()},
			}
			_, err := store.Find(ctx, es, d)
			assert.NoError(t, err)
		})
	}

	posts, err := store.Find(ctx, mustLookup(t, registry, entities.Post), query.QueryDescriptor{
		Entity:     entities.Post,
		Projection: query.Projection{Mode: query.ModeInclude, Fields: []string{"author", "comments"}},
	})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, false, posts[0]["published"])
	assert.NotNil(t, posts[0]["createdAt"], "defaults to the insert time")
	assert.Len(t, posts[0]["comments"], 1)
	assert.Equal(t, "Ada", posts[0]["author"].(schema.Record)["name"])
}

func TestRunner_SQLiteEnforcesForeignKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	require.NoError(t, newRunner(t, path).Up())

	db := bun.NewDB(openSQLite(t, path), sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	registry, err := entities.NewRegistry()
	require.NoError(t, err)
	store := storage.NewBunStore(db, registry)
	ctx := context.Background()
	profiles := mustLookup(t, registry, entities.Profile)
	todos := mustLookup(t, registry, entities.Todo)
	posts := mustLookup(t, registry, entities.Post)
	comments := mustLookup(t, registry, entities.Comment)

	_, err = store.Insert(ctx, comments, schema.Record{"postId": "missing", "body": "orphan"})
	require.Error(t, err)
	assert.Equal(t, storage.KindConstraint, storage.KindOf(err))

	ada, err := store.Insert(ctx, profiles, schema.Record{"name": "Ada"})
	require.NoError(t, err)
	todo, err := store.Insert(ctx, todos, schema.Record{"title": "Buy milk", "profileId": ada["id"]})
	require.NoError(t, err)
	post, err := store.Insert(ctx, posts, schema.Record{"title": "Hello", "authorId": ada["id"]})
	require.NoError(t, err)
	_, err = store.Insert(ctx, comments, schema.Record{"postId": post["id"], "body": "first"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, profiles, ada["id"].(string)))

	left, err := store.Find(ctx, todos, query.QueryDescriptor{
		Entity: entities.Todo,
		Filter: []query.Condition{{Field: "id", Operator: storage.OpEquals, Value: todo["id"]}},
	})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Nil(t, left[0]["profileId"], "todos keep their row with the owner cleared")

	for _, es := range []*schema.EntitySchema{posts, comments} {
		rows, err := store.Find(ctx, es, query.QueryDescriptor{Entity: es.Name})
		require.NoError(t, err)
		assert.Empty(t, rows, "%s cascade with their author", es.Route)
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	db := openSQLite(t, filepath.Join(t.TempDir(), "x.db"))
	t.Cleanup(func() { _ = db.Close() })

	_, err := New(db, "mysql", nil)
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func mustLookup(t *testing.T, registry *schema.Registry, name string) *schema.EntitySchema {
	t.Helper()
	es, err := registry.Lookup(name)
	require.NoError(t, err)
	return es
}
