package storage

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-query/query"
	"github.com/goliatone/go-repository-query/schema"
)

// Filter operators understood by the SQL executors.
const (
	OpEquals     = query.OperatorEquals
	OpNot        = "not"
	OpIn         = "in"
	OpNotIn      = "notIn"
	OpLt         = "lt"
	OpLte        = "lte"
	OpGt         = "gt"
	OpGte        = "gte"
	OpContains   = "contains"
	OpStartsWith = "startsWith"
	OpEndsWith   = "endsWith"
)

var comparisons = map[string]string{
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
}

// Operators returns the supported operator names.
func Operators() []string {
	return []string{
		OpEquals, OpNot, OpIn, OpNotIn,
		OpLt, OpLte, OpGt, OpGte,
		OpContains, OpStartsWith, OpEndsWith,
	}
}

// predicate is a WHERE fragment. When col is set, expr follows the column
// reference, e.g. " = ?".
type predicate struct {
	col  string
	expr string
	args []any
}

// where adds p to q. qualify prefixes the column with the model alias, which
// is needed once relations are joined.
func (p predicate) where(q *bun.SelectQuery, qualify bool) *bun.SelectQuery {
	if p.col == "" {
		return q.Where(p.expr, p.args...)
	}
	ref := "?"
	if qualify {
		ref = "?TableAlias.?"
	}
	args := make([]any, 0, len(p.args)+1)
	args = append(args, bun.Ident(p.col))
	args = append(args, p.args...)
	return q.Where(ref+p.expr, args...)
}

// likeEscape is the LIKE escape character. It is not a backslash so that
// the same pattern works on sqlite and postgres.
const likeEscape = "!"

// compileFilter turns descriptor conditions into SQL predicates, collecting
// every problem.
func compileFilter(es *schema.EntitySchema, filter []query.Condition) ([]predicate, *query.ValidationError) {
	verr := &query.ValidationError{}
	out := make([]predicate, 0, len(filter))
	for _, c := range filter {
		f, ok := es.Field(c.Field)
		if !ok || f.Hidden {
			verr.Add(query.ParamWhere, c.Field, "unknown field")
			continue
		}
		p, problem := compileCondition(f, c)
		if problem != "" {
			verr.Add(query.ParamWhere, c.Field, problem)
			continue
		}
		out = append(out, p)
	}
	return out, verr
}

func compileCondition(f schema.Field, c query.Condition) (predicate, string) {
	col := f.Column

	switch c.Operator {
	case OpEquals, OpNot:
		if c.Value == nil {
			if c.Operator == OpEquals {
				return predicate{col: col, expr: " IS NULL"}, ""
			}
			return predicate{col: col, expr: " IS NOT NULL"}, ""
		}
		v, err := coerce(f, c.Value)
		if err != nil {
			return predicate{}, operandProblem(c.Operator, err)
		}
		if c.Operator == OpEquals {
			return predicate{col: col, expr: " = ?", args: []any{v}}, ""
		}
		return predicate{col: col, expr: " <> ?", args: []any{v}}, ""

	case OpIn, OpNotIn:
		items, ok := asList(c.Value)
		if !ok {
			return predicate{}, fmt.Sprintf("operand of %q must be a list", c.Operator)
		}
		values := make([]any, 0, len(items))
		for _, item := range items {
			if item == nil {
				return predicate{}, fmt.Sprintf("operand of %q must not contain null", c.Operator)
			}
			v, err := coerce(f, item)
			if err != nil {
				return predicate{}, operandProblem(c.Operator, err)
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			if c.Operator == OpIn {
				return predicate{expr: "1 = 0"}, ""
			}
			return predicate{expr: "1 = 1"}, ""
		}
		if c.Operator == OpIn {
			return predicate{col: col, expr: " IN (?)", args: []any{bun.In(values)}}, ""
		}
		return predicate{col: col, expr: " NOT IN (?)", args: []any{bun.In(values)}}, ""

	case OpLt, OpLte, OpGt, OpGte:
		if c.Value == nil {
			return predicate{}, fmt.Sprintf("operand of %q must not be null", c.Operator)
		}
		if f.Type == schema.Bool {
			return predicate{}, fmt.Sprintf("operator %q does not apply to %s fields", c.Operator, f.Type)
		}
		v, err := coerce(f, c.Value)
		if err != nil {
			return predicate{}, operandProblem(c.Operator, err)
		}
		return predicate{col: col, expr: " " + comparisons[c.Operator] + " ?", args: []any{v}}, ""

	case OpContains, OpStartsWith, OpEndsWith:
		if f.Type != schema.String {
			return predicate{}, fmt.Sprintf("operator %q does not apply to %s fields", c.Operator, f.Type)
		}
		s, ok := c.Value.(string)
		if !ok {
			return predicate{}, fmt.Sprintf("operand of %q must be a string", c.Operator)
		}
		pattern := escapeLike(s)
		switch c.Operator {
		case OpContains:
			pattern = "%" + pattern + "%"
		case OpStartsWith:
			pattern += "%"
		default:
			pattern = "%" + pattern
		}
		return predicate{col: col, expr: " LIKE ? ESCAPE '" + likeEscape + "'", args: []any{pattern}}, ""
	}

	return predicate{}, fmt.Sprintf("unsupported operator %q", c.Operator)
}

func asList(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

var likeReplacer = strings.NewReplacer(
	likeEscape, likeEscape+likeEscape,
	"%", likeEscape+"%",
	"_", likeEscape+"_",
)

func escapeLike(s string) string {
	return likeReplacer.Replace(s)
}

func operandProblem(op string, err error) string {
	return fmt.Sprintf("operand of %q: %v", op, err)
}

// coerce converts a decoded request value to the Go type bound for a column
// of type f.Type.
func coerce(f schema.Field, v any) (any, error) {
	switch f.Type {
	case schema.String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.Int:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) || math.IsInf(n, 0) {
				break
			}
			// float64(math.MaxInt64) rounds up to 2^63
			if n < math.MinInt64 || n >= -math.MinInt64 {
				return nil, fmt.Errorf("integer %g out of range", n)
			}
			return int64(n), nil
		}
	case schema.Float:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		}
	case schema.Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.Time:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			parsed, err := parseTime(t)
			if err != nil {
				return nil, fmt.Errorf("expected an RFC 3339 time, got %q", t)
			}
			return parsed, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", f.Type, v)
}
