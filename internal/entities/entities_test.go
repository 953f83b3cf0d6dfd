package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-query/schema"
)

func TestNewRegistry(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	routes := make([]string, 0)
	for _, es := range registry.All() {
		routes = append(routes, es.Route)
	}
	assert.Equal(t, []string{"profiles", "todos", "posts", "comments", "likes"}, routes)

	post, err := registry.ByRoute("posts")
	require.NoError(t, err)
	assert.Equal(t, "posts", post.Table)
	assert.NotContains(t, post.ScalarFields(), "moderationNote")
	assert.Equal(t, "moderation_note", post.Column("moderationNote"))
	assert.Equal(t, []string{"author", "comments", "likes"}, post.RelationFields())

	comment, err := registry.Lookup(Comment)
	require.NoError(t, err)
	assert.False(t, comment.Exposed("ipAddress"))
}

func TestRegistry_Dependents(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	tests := []struct {
		entity string
		want   []string
	}{
		{entity: Profile, want: []string{"comments", "likes", "posts", "todos"}},
		{entity: Todo, want: []string{"profiles"}},
		{entity: Post, want: []string{"comments", "likes", "profiles"}},
		{entity: Comment, want: []string{"posts"}},
		{entity: Like, want: []string{"posts"}},
	}
	for _, tt := range tests {
		t.Run(tt.entity, func(t *testing.T) {
			assert.Equal(t, tt.want, registry.Dependents(tt.entity))
		})
	}
}

func TestTodoRecord(t *testing.T) {
	owner := "p1"
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rec := TodoRecord(TodoModel{
		ID:        "t1",
		Title:     "Buy milk",
		Priority:  2,
		ProfileID: &owner,
		CreatedAt: created,
		Profile:   &ProfileModel{ID: "p1", Name: "Ada"},
	})

	assert.Equal(t, schema.Record{
		"id":          "t1",
		"title":       "Buy milk",
		"description": nil,
		"done":        false,
		"priority":    2,
		"profileId":   "p1",
		"createdAt":   created,
		"profile": schema.Record{
			"id":        "p1",
			"name":      "Ada",
			"email":     nil,
			"bio":       nil,
			"createdAt": nil,
		},
	}, rec)

	orphan := TodoRecord(TodoModel{ID: "t2"})
	assert.Nil(t, orphan["profileId"])
	assert.Nil(t, orphan["createdAt"])
	v, ok := orphan["profile"]
	assert.True(t, ok)
	assert.Nil(t, v)
}
