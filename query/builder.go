package query

import (
	"sort"

	"github.com/goliatone/go-repository-query/schema"
)

// Build validates raw against the allow-lists of s and returns the
// resulting descriptor. Problems recorded while parsing raw are reported
// together with validation problems in a single *ValidationError.
func Build(raw RawQueryRequest, s *schema.EntitySchema) (QueryDescriptor, error) {
	verr := &ValidationError{Problems: append([]Problem(nil), raw.Problems...)}
	scalars := s.ScalarFields()

	d := QueryDescriptor{Entity: s.Name}
	d.Filter = buildFilter(raw.Where, scalars, verr)
	d.Order = buildOrder(raw.Sort, scalars, verr)
	d.Projection = buildProjection(raw.Select, raw.Include, scalars, s.RelationFields(), verr)

	if raw.Skip != nil {
		if *raw.Skip < 0 {
			verr.Add(ParamSkip, "", "must be a non-negative integer")
		} else {
			d.Skip = *raw.Skip
		}
	}
	if raw.Take != nil {
		if *raw.Take < 0 {
			verr.Add(ParamTake, "", "must be a non-negative integer")
		} else {
			d.Take = Int(*raw.Take)
		}
	}

	if err := verr.Err(); err != nil {
		return QueryDescriptor{}, err
	}
	return d, nil
}

func buildFilter(where map[string]any, allowed []string, verr *ValidationError) []Condition {
	if len(where) == 0 {
		return nil
	}

	keys := sortedKeys(where)
	bad := ValidateFields(ParamWhere, keys, allowed)
	verr.Merge(bad)
	rejected := map[string]bool{}
	for _, f := range bad.Fields() {
		rejected[f] = true
	}

	var conds []Condition
	for _, field := range keys {
		if rejected[field] {
			continue
		}
		ops, ok := asOperatorMap(where[field])
		if !ok {
			conds = append(conds, Condition{Field: field, Operator: OperatorEquals, Value: where[field]})
			continue
		}
		if len(ops) == 0 {
			verr.Add(ParamWhere, field, "empty predicate")
			continue
		}
		for _, op := range sortedKeys(ops) {
			conds = append(conds, Condition{Field: field, Operator: op, Value: ops[op]})
		}
	}
	return conds
}

func buildOrder(terms []SortTerm, allowed []string, verr *ValidationError) []Order {
	if len(terms) == 0 {
		return nil
	}

	fields := make([]string, len(terms))
	for i, t := range terms {
		fields[i] = t.Field
	}
	bad := ValidateFields(ParamSort, fields, allowed)
	verr.Merge(bad)
	rejected := map[string]bool{}
	for _, f := range bad.Fields() {
		rejected[f] = true
	}

	seen := map[string]bool{}
	order := make([]Order, 0, len(terms))
	for _, t := range terms {
		dir := Direction(t.Direction)
		if dir != Asc && dir != Desc {
			verr.Add(ParamSort, t.Field, "direction must be \"asc\" or \"desc\", got \""+t.Direction+"\"")
			continue
		}
		if rejected[t.Field] {
			continue
		}
		if seen[t.Field] {
			verr.Add(ParamSort, t.Field, "duplicated sort field")
			continue
		}
		seen[t.Field] = true
		order = append(order, Order{Field: t.Field, Direction: dir})
	}
	return order
}

// buildProjection resolves select over include: a non-empty select wins and
// include is ignored.
func buildProjection(sel, include, scalars, relations []string, verr *ValidationError) Projection {
	if sel = dedupe(sel); len(sel) > 0 {
		if bad := ValidateFields(ParamSelect, sel, scalars); bad != nil {
			verr.Merge(bad)
			return Projection{}
		}
		return Projection{Mode: ModeSelect, Fields: sel}
	}

	if include = dedupe(include); len(include) > 0 {
		if bad := ValidateFields(ParamInclude, include, relations); bad != nil {
			verr.Merge(bad)
			return Projection{}
		}
		return Projection{Mode: ModeInclude, Fields: include}
	}

	return Projection{Mode: ModeAll}
}

func asOperatorMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case schema.Record:
		return m, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
