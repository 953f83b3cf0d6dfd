// Package entities declares the resources served by the query API: their
// exposure contracts and the bun models of the typed read path.
package entities

import (
	"github.com/goliatone/go-repository-query/schema"
)

// Entity names.
const (
	Profile = "profile"
	Todo    = "todo"
	Post    = "post"
	Comment = "comment"
	Like    = "like"
)

func profileSchema() *schema.EntitySchema {
	return &schema.EntitySchema{
		Name:       Profile,
		PrimaryKey: "id",
		Fields: []schema.Field{
			{Name: "id"},
			{Name: "name"},
			{Name: "email"},
			{Name: "bio"},
			{Name: "createdAt", Type: schema.Time},
		},
		Relations: []schema.Relation{
			{Name: "todos", Target: Todo, LocalKey: "id", ForeignKey: "profileId", Many: true},
			{Name: "posts", Target: Post, LocalKey: "id", ForeignKey: "authorId", Many: true},
		},
	}
}

func todoSchema() *schema.EntitySchema {
	return &schema.EntitySchema{
		Name:       Todo,
		PrimaryKey: "id",
		Fields: []schema.Field{
			{Name: "id"},
			{Name: "title"},
			{Name: "description"},
			{Name: "done", Type: schema.Bool},
			{Name: "priority", Type: schema.Int},
			{Name: "profileId"},
			{Name: "createdAt", Type: schema.Time},
		},
		Relations: []schema.Relation{
			{Name: "profile", Target: Profile, LocalKey: "profileId", ForeignKey: "id"},
		},
	}
}

func postSchema() *schema.EntitySchema {
	return &schema.EntitySchema{
		Name:       Post,
		PrimaryKey: "id",
		Fields: []schema.Field{
			{Name: "id"},
			{Name: "title"},
			{Name: "body"},
			{Name: "published", Type: schema.Bool},
			{Name: "authorId"},
			{Name: "createdAt", Type: schema.Time},
			{Name: "moderationNote", Hidden: true},
		},
		Relations: []schema.Relation{
			{Name: "author", Target: Profile, LocalKey: "authorId", ForeignKey: "id"},
			{Name: "comments", Target: Comment, LocalKey: "id", ForeignKey: "postId", Many: true},
			{Name: "likes", Target: Like, LocalKey: "id", ForeignKey: "postId", Many: true},
		},
	}
}

func commentSchema() *schema.EntitySchema {
	return &schema.EntitySchema{
		Name:       Comment,
		PrimaryKey: "id",
		Fields: []schema.Field{
			{Name: "id"},
			{Name: "postId"},
			{Name: "authorId"},
			{Name: "body"},
			{Name: "createdAt", Type: schema.Time},
			{Name: "ipAddress", Hidden: true},
		},
		Relations: []schema.Relation{
			{Name: "post", Target: Post, LocalKey: "postId", ForeignKey: "id"},
			{Name: "author", Target: Profile, LocalKey: "authorId", ForeignKey: "id"},
		},
	}
}

func likeSchema() *schema.EntitySchema {
	return &schema.EntitySchema{
		Name:       Like,
		PrimaryKey: "id",
		Fields: []schema.Field{
			{Name: "id"},
			{Name: "postId"},
			{Name: "profileId"},
			{Name: "createdAt", Type: schema.Time},
		},
		Relations: []schema.Relation{
			{Name: "post", Target: Post, LocalKey: "postId", ForeignKey: "id"},
			{Name: "profile", Target: Profile, LocalKey: "profileId", ForeignKey: "id"},
		},
	}
}

// NewRegistry registers and validates every entity.
func NewRegistry() (*schema.Registry, error) {
	registry := schema.NewRegistry()
	for _, es := range []*schema.EntitySchema{
		profileSchema(),
		todoSchema(),
		postSchema(),
		commentSchema(),
		likeSchema(),
	} {
		if err := registry.Register(es); err != nil {
			return nil, err
		}
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return registry, nil
}
