package storage

import (
	"context"
	"errors"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-query/query"
	"github.com/goliatone/go-repository-query/schema"
)

type profileModel struct {
	bun.BaseModel `bun:"table:profiles,alias:profile"`

	ID    string  `bun:"id,pk"`
	Name  string  `bun:"name"`
	Email *string `bun:"email"`
}

type todoModel struct {
	bun.BaseModel `bun:"table:todos,alias:todo"`

	ID        string        `bun:"id,pk"`
	Title     string        `bun:"title"`
	Done      bool          `bun:"done"`
	Priority  int           `bun:"priority"`
	ProfileID *string       `bun:"profile_id"`
	Profile   *profileModel `bun:"rel:belongs-to,join:profile_id=id"`
}

func todoModelRecord(m todoModel) schema.Record {
	rec := schema.Record{
		"id":       m.ID,
		"title":    m.Title,
		"done":     m.Done,
		"priority": m.Priority,
	}
	if m.ProfileID != nil {
		rec["profileId"] = *m.ProfileID
	} else {
		rec["profileId"] = nil
	}
	if m.Profile != nil {
		rec["profile"] = schema.Record{"id": m.Profile.ID, "name": m.Profile.Name}
	}
	return rec
}

func TestRepositoryExecutor_Find(t *testing.T) {
	f := newStoreFixture(t)
	exec := NewRepositoryExecutor[todoModel](NewModelLister[todoModel](f.db), todoModelRecord)

	records, err := exec.Find(context.Background(), f.todo, query.QueryDescriptor{
		Entity:     "todo",
		Filter:     []query.Condition{cond("done", OpEquals, false)},
		Order:      []query.Order{{Field: "priority", Direction: query.Desc}},
		Projection: query.Projection{Mode: query.ModeInclude, Fields: []string{"profile"}},
		Take:       query.Int(2),
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"t5", "t1"}, ids(records))
	assert.Equal(t, int64(4), records[0]["priority"], "values are normalised to field types")
	assert.Equal(t, "Grace", records[0]["profile"].(schema.Record)["name"])
	assert.Equal(t, "Ada", records[1]["profile"].(schema.Record)["name"])
}

func TestRepositoryExecutor_LikeAndWindow(t *testing.T) {
	f := newStoreFixture(t)
	exec := NewRepositoryExecutor[todoModel](NewModelLister[todoModel](f.db), todoModelRecord)

	records, err := exec.Find(context.Background(), f.todo, query.QueryDescriptor{
		Entity: "todo",
		Filter: []query.Condition{cond("title", OpStartsWith, "Test")},
		Order:  []query.Order{{Field: "id", Direction: query.Asc}},
		Skip:   1,
		Take:   query.Int(5),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t5"}, ids(records))
}

type recordingLister struct {
	calls    int
	criteria []repository.SelectCriteria
	err      error
}

func (l *recordingLister) List(_ context.Context, criteria ...repository.SelectCriteria) ([]todoModel, int, error) {
	l.calls++
	l.criteria = criteria
	return nil, 0, l.err
}

func TestRepositoryExecutor_ValidatesBeforeListing(t *testing.T) {
	_, _, todo := testRegistry(t)
	lister := &recordingLister{}
	exec := NewRepositoryExecutor[todoModel](lister, todoModelRecord)

	_, err := exec.Find(context.Background(), todo, query.QueryDescriptor{
		Entity: "todo",
		Filter: []query.Condition{cond("title", "like", "x")},
	})
	var verr *query.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, lister.calls)

	records, err := exec.Find(context.Background(), todo, query.QueryDescriptor{Entity: "todo", Take: query.Int(0)})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, lister.calls)
}

func TestRepositoryExecutor_WrapsListErrors(t *testing.T) {
	_, _, todo := testRegistry(t)
	lister := &recordingLister{err: errors.New("connection refused")}
	exec := NewRepositoryExecutor[todoModel](lister, todoModelRecord)

	_, err := exec.Find(context.Background(), todo, query.QueryDescriptor{Entity: "todo"})
	require.Error(t, err)
	assert.Equal(t, KindConnection, KindOf(err))
}

func TestSelectCriteria_Count(t *testing.T) {
	_, _, todo := testRegistry(t)

	criteria, err := SelectCriteria(todo, query.QueryDescriptor{
		Entity:     "todo",
		Filter:     []query.Condition{cond("done", OpEquals, true), cond("priority", OpGt, 1)},
		Order:      []query.Order{{Field: "title", Direction: query.Asc}},
		Projection: query.Projection{Mode: query.ModeInclude, Fields: []string{"profile"}},
		Skip:       2,
		Take:       query.Int(10),
	})
	require.NoError(t, err)
	// two filters, one order, one relation, offset and limit
	assert.Len(t, criteria, 6)
}
