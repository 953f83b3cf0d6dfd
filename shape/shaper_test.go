package shape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-query/pkg/testsupport"
	"github.com/goliatone/go-repository-query/query"
	"github.com/goliatone/go-repository-query/schema"
)

func newShaper(t *testing.T) (*Shaper, *schema.EntitySchema, *schema.EntitySchema) {
	t.Helper()

	post := &schema.EntitySchema{
		Name:       "post",
		PrimaryKey: "id",
		Fields: []schema.Field{
			{Name: "id"},
			{Name: "title"},
			{Name: "body"},
			{Name: "moderationNote", Hidden: true},
		},
		Relations: []schema.Relation{
			{Name: "comments", Target: "comment", LocalKey: "id", ForeignKey: "postId", Many: true},
		},
	}
	comment := &schema.EntitySchema{
		Name:       "comment",
		PrimaryKey: "id",
		Fields: []schema.Field{
			{Name: "id"},
			{Name: "postId"},
			{Name: "text"},
			{Name: "ip", Hidden: true},
		},
		Relations: []schema.Relation{
			{Name: "post", Target: "post", LocalKey: "postId", ForeignKey: "id"},
		},
	}
	registry := schema.NewRegistry().MustRegister(post, comment)
	require.NoError(t, registry.Validate())
	return New(registry), post, comment
}

func rawPost() schema.Record {
	return schema.Record{
		"id":             "p1",
		"title":          "Hello",
		"body":           "World",
		"moderationNote": "spam?",
		"internal":       42,
		"comments": []schema.Record{
			{"id": "c1", "postId": "p1", "text": "first", "ip": "10.0.0.1"},
			{"id": "c2", "postId": "p1", "text": "second", "ip": "10.0.0.2"},
		},
	}
}

func TestShape_All(t *testing.T) {
	s, post, _ := newShaper(t)

	got := s.ShapeOne(rawPost(), query.QueryDescriptor{}, post)
	assert.Equal(t, schema.Record{"id": "p1", "title": "Hello", "body": "World"}, got)
}

func TestShape_SelectKeepsPrimaryKey(t *testing.T) {
	s, post, _ := newShaper(t)

	d := query.QueryDescriptor{Projection: query.Projection{Mode: query.ModeSelect, Fields: []string{"title"}}}
	assert.Equal(t, schema.Record{"id": "p1", "title": "Hello"}, s.ShapeOne(rawPost(), d, post))

	d.Projection.Fields = []string{"title", "moderationNote"}
	assert.Equal(t, schema.Record{"id": "p1", "title": "Hello"}, s.ShapeOne(rawPost(), d, post), "hidden fields never leak")
}

func TestShape_IncludeShapesRelations(t *testing.T) {
	s, post, comment := newShaper(t)

	d := query.QueryDescriptor{Projection: query.Projection{Mode: query.ModeInclude, Fields: []string{"comments"}}}
	got := s.ShapeOne(rawPost(), d, post)

	assert.Equal(t, schema.Record{
		"id":    "p1",
		"title": "Hello",
		"body":  "World",
		"comments": []schema.Record{
			{"id": "c1", "postId": "p1", "text": "first"},
			{"id": "c2", "postId": "p1", "text": "second"},
		},
	}, got)

	cd := query.QueryDescriptor{Projection: query.Projection{Mode: query.ModeInclude, Fields: []string{"post"}}}
	withPost := s.ShapeOne(schema.Record{
		"id": "c1", "postId": "p1", "text": "first", "ip": "x",
		"post": map[string]any{"id": "p1", "title": "Hello", "moderationNote": "spam?"},
	}, cd, comment)
	assert.Equal(t, schema.Record{"id": "p1", "title": "Hello"}, withPost["post"])

	orphan := s.ShapeOne(schema.Record{"id": "c9", "post": nil}, cd, comment)
	v, ok := orphan["post"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestShape_GoldenResponse(t *testing.T) {
	s, post, _ := newShaper(t)
	d := query.QueryDescriptor{Projection: query.Projection{Mode: query.ModeInclude, Fields: []string{"comments"}}}

	// shaping the shaped record again must produce the same document
	once := s.ShapeOne(rawPost(), d, post)
	testsupport.CompareWithGoldenJSON(t, testsupport.GoldenPath("post_with_comments.json"), s.ShapeOne(once, d, post))
}

func TestShape_RelationFormats(t *testing.T) {
	s, post, _ := newShaper(t)
	d := query.QueryDescriptor{Projection: query.Projection{Mode: query.ModeInclude, Fields: []string{"comments"}}}

	tests := []struct {
		name     string
		comments any
	}{
		{name: "records", comments: []schema.Record{{"id": "c1", "ip": "x"}}},
		{name: "maps", comments: []map[string]any{{"id": "c1", "ip": "x"}}},
		{name: "any", comments: []any{map[string]any{"id": "c1", "ip": "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ShapeOne(schema.Record{"id": "p1", "comments": tt.comments}, d, post)
			assert.Equal(t, []schema.Record{{"id": "c1"}}, got["comments"])
		})
	}
}

func TestShape_MissingFieldsStayMissing(t *testing.T) {
	s, post, _ := newShaper(t)

	d := query.QueryDescriptor{Projection: query.Projection{Mode: query.ModeInclude, Fields: []string{"comments"}}}
	got := s.ShapeOne(schema.Record{"id": "p1"}, d, post)
	assert.Equal(t, schema.Record{"id": "p1"}, got)
}

func TestShape_Idempotent(t *testing.T) {
	s, post, _ := newShaper(t)

	descriptors := map[string]query.QueryDescriptor{
		"all":     {},
		"select":  {Projection: query.Projection{Mode: query.ModeSelect, Fields: []string{"body"}}},
		"include": {Projection: query.Projection{Mode: query.ModeInclude, Fields: []string{"comments"}}},
	}
	for name, d := range descriptors {
		t.Run(name, func(t *testing.T) {
			once := s.Shape([]schema.Record{rawPost()}, d, post)
			twice := s.Shape(once, d, post)
			assert.Equal(t, once, twice)
		})
	}
}

func TestShape_DoesNotMutateInput(t *testing.T) {
	s, post, _ := newShaper(t)
	in := rawPost()

	_ = s.Shape([]schema.Record{in}, query.QueryDescriptor{}, post)
	assert.Equal(t, rawPost(), in)
	assert.Nil(t, s.ShapeOne(nil, query.QueryDescriptor{}, post))
	assert.Empty(t, s.Shape(nil, query.QueryDescriptor{}, post))
}
