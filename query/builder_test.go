package query

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/goliatone/go-repository-query/pkg/testsupport"
	"github.com/goliatone/go-repository-query/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTodoSchema(t *testing.T) *schema.EntitySchema {
	t.Helper()
	s := &schema.EntitySchema{
		Name:       "todo",
		PrimaryKey: "id",
		Fields: []schema.Field{
			{Name: "id"},
			{Name: "title"},
			{Name: "description"},
			{Name: "done", Type: schema.Bool},
			{Name: "profileId"},
			{Name: "secret", Hidden: true},
		},
		Relations: []schema.Relation{
			{Name: "profile", Target: "profile", LocalKey: "profileId", ForeignKey: "id"},
		},
	}
	require.NoError(t, schema.NewRegistry().Register(s))
	return s
}

type buildScenario struct {
	Name       string          `json:"name"`
	Request    RawQueryRequest `json:"request"`
	Mode       string          `json:"mode"`
	Fields     []string        `json:"fields"`
	Conditions int             `json:"conditions"`
	Orders     int             `json:"orders"`
	Invalid    []string        `json:"invalid"`
	Problems   int             `json:"problems"`
}

func TestBuild_Scenarios(t *testing.T) {
	var fixtures struct {
		Scenarios []buildScenario `json:"scenarios"`
	}
	testsupport.LoadFixtureJSON(t, testsupport.FixturePath("build_scenarios.json"), &fixtures)
	require.NotEmpty(t, fixtures.Scenarios)

	s := newTodoSchema(t)
	allowed := map[string]bool{}
	for _, f := range s.ScalarFields() {
		allowed[f] = true
	}

	for _, sc := range fixtures.Scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			d, err := Build(sc.Request, s)

			if len(sc.Invalid) > 0 {
				var verr *ValidationError
				require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
				assert.ElementsMatch(t, sc.Invalid, verr.Fields())
				if sc.Problems > 0 {
					assert.Len(t, verr.Problems, sc.Problems)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, sc.Mode, d.Projection.Mode.String())
			if sc.Fields != nil {
				assert.Equal(t, sc.Fields, d.Projection.Fields)
			}
			assert.Len(t, d.Filter, sc.Conditions)
			assert.Len(t, d.Order, sc.Orders)
			for _, f := range d.ReferencedFields() {
				assert.True(t, allowed[f], "descriptor references %q outside the allow-list", f)
			}
		})
	}
}

func TestBuild_Filter(t *testing.T) {
	s := newTodoSchema(t)

	d, err := Build(RawQueryRequest{
		Where: map[string]any{
			"title": map[string]any{"startsWith": "Test", "contains": "x"},
			"done":  true,
		},
	}, s)
	require.NoError(t, err)

	assert.Equal(t, []Condition{
		{Field: "done", Operator: OperatorEquals, Value: true},
		{Field: "title", Operator: "contains", Value: "x"},
		{Field: "title", Operator: "startsWith", Value: "Test"},
	}, d.Filter)
}

func TestBuild_OperatorsPassThrough(t *testing.T) {
	s := newTodoSchema(t)

	d, err := Build(RawQueryRequest{
		Where: map[string]any{"title": map[string]any{"regexWhatever": "^a"}},
	}, s)
	require.NoError(t, err, "operator names belong to the storage layer")
	assert.Equal(t, "regexWhatever", d.Filter[0].Operator)
}

func TestBuild_EmptyPredicate(t *testing.T) {
	s := newTodoSchema(t)

	_, err := Build(RawQueryRequest{Where: map[string]any{"title": map[string]any{}}}, s)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"title"}, verr.Fields())
}

func TestBuild_SortKeepsOrder(t *testing.T) {
	s := newTodoSchema(t)

	d, err := Build(RawQueryRequest{Sort: []SortTerm{
		{Field: "done", Direction: "desc"},
		{Field: "title", Direction: "asc"},
	}}, s)
	require.NoError(t, err)
	assert.Equal(t, []Order{{Field: "done", Direction: Desc}, {Field: "title", Direction: Asc}}, d.Order)

	_, err = Build(RawQueryRequest{Sort: []SortTerm{
		{Field: "title", Direction: "asc"},
		{Field: "title", Direction: "desc"},
	}}, s)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "duplicated sort field")
}

func TestBuild_Pagination(t *testing.T) {
	s := newTodoSchema(t)

	tests := []struct {
		name    string
		skip    *int
		take    *int
		wantErr bool
	}{
		{name: "absent", wantErr: false},
		{name: "zero", skip: Int(0), take: Int(0), wantErr: false},
		{name: "positive", skip: Int(5), take: Int(20), wantErr: false},
		{name: "negative skip", skip: Int(-1), wantErr: true},
		{name: "negative take", take: Int(-1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Build(RawQueryRequest{Skip: tt.skip, Take: tt.take}, s)
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
			if tt.skip != nil {
				assert.Equal(t, *tt.skip, d.Skip)
			}
			limit, bounded := d.Limit()
			assert.Equal(t, tt.take != nil, bounded)
			if tt.take != nil {
				assert.Equal(t, *tt.take, limit)
			}
		})
	}
}

func TestBuild_ParseProblemsAggregate(t *testing.T) {
	s := newTodoSchema(t)

	raw := RawQueryRequest{
		Select:   []string{"bogus"},
		Problems: []Problem{{Param: ParamTake, Message: "must be a non-negative integer"}},
	}
	_, err := Build(raw, s)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)
	assert.Equal(t, []string{"bogus"}, verr.Fields())
}

func TestBuild_TodoScenario(t *testing.T) {
	s := newTodoSchema(t)

	var raw RawQueryRequest
	require.NoError(t, json.Unmarshal([]byte(`{"where":{"title":{"startsWith":"Test"}},"include":["profile"],"take":3}`), &raw))

	d, err := Build(raw, s)
	require.NoError(t, err)
	assert.Equal(t, ModeInclude, d.Projection.Mode)
	assert.Equal(t, []string{"profile"}, d.Projection.Fields)
	assert.Equal(t, []Condition{{Field: "title", Operator: "startsWith", Value: "Test"}}, d.Filter)
	limit, _ := d.Limit()
	assert.Equal(t, 3, limit)

	_, err = Build(RawQueryRequest{Select: []string{"bogus"}}, s)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"bogus"}, verr.Fields())
	assert.Contains(t, err.Error(), "select.bogus")
}

func TestValidateFields(t *testing.T) {
	allowed := []string{"id", "title"}

	assert.Nil(t, ValidateFields(ParamSelect, nil, allowed))
	assert.Nil(t, ValidateFields(ParamSelect, []string{"title", "id"}, allowed))

	verr := ValidateFields(ParamSelect, []string{"x", "title", "y", "x"}, allowed)
	require.NotNil(t, verr)
	assert.Equal(t, []string{"x", "y"}, verr.Fields())
	assert.Len(t, verr.Problems, 2)
}

func TestValidationError_Err(t *testing.T) {
	var verr *ValidationError
	assert.NoError(t, verr.Err())
	assert.NoError(t, (&ValidationError{}).Err())
	assert.Error(t, (&ValidationError{Problems: []Problem{{Param: ParamSkip, Message: "bad"}}}).Err())
}

func TestDescriptor_WithCondition(t *testing.T) {
	base := QueryDescriptor{Filter: make([]Condition, 1, 4)}
	extended := base.WithCondition(Condition{Field: "id", Operator: OperatorEquals, Value: "1"})

	assert.Len(t, base.Filter, 1)
	assert.Len(t, extended.Filter, 2)
}
