// Package shape maps stored records to their public representation.
package shape

import (
	"github.com/goliatone/go-repository-query/query"
	"github.com/goliatone/go-repository-query/schema"
)

// Shaper applies a descriptor's projection to records. Only exposed fields
// ever leave a Shaper; hidden fields and unknown keys are dropped. Shaping is
// idempotent: shaping a shaped record with the same descriptor returns an
// equal record.
type Shaper struct {
	registry *schema.Registry
}

// New returns a Shaper resolving relation targets in registry.
func New(registry *schema.Registry) *Shaper {
	return &Shaper{registry: registry}
}

// Shape returns the public form of every record:
//
//   - ModeSelect: the primary key and the selected fields
//   - ModeInclude: every exposed scalar field plus the named relations, each
//     shaped with the ALL projection of its target
//   - ModeAll: every exposed scalar field
//
// Fields absent from a record stay absent. The input is not modified.
func (s *Shaper) Shape(records []schema.Record, d query.QueryDescriptor, es *schema.EntitySchema) []schema.Record {
	out := make([]schema.Record, len(records))
	for i, rec := range records {
		out[i] = s.ShapeOne(rec, d, es)
	}
	return out
}

// ShapeOne shapes a single record. A nil record stays nil.
func (s *Shaper) ShapeOne(rec schema.Record, d query.QueryDescriptor, es *schema.EntitySchema) schema.Record {
	if rec == nil {
		return nil
	}

	switch d.Projection.Mode {
	case query.ModeSelect:
		out := make(schema.Record, len(d.Projection.Fields)+1)
		copyField(out, rec, es, es.PrimaryKey)
		for _, name := range d.Projection.Fields {
			copyField(out, rec, es, name)
		}
		return out

	case query.ModeInclude:
		out := s.scalars(rec, es)
		for _, name := range d.Projection.Fields {
			s.copyRelation(out, rec, es, name)
		}
		return out

	default:
		return s.scalars(rec, es)
	}
}

func (s *Shaper) scalars(rec schema.Record, es *schema.EntitySchema) schema.Record {
	names := es.ScalarFields()
	out := make(schema.Record, len(names))
	for _, name := range names {
		copyField(out, rec, es, name)
	}
	return out
}

func copyField(dst, src schema.Record, es *schema.EntitySchema, name string) {
	if !es.Exposed(name) {
		return
	}
	if v, ok := src[name]; ok {
		dst[name] = v
	}
}

func (s *Shaper) copyRelation(dst, src schema.Record, es *schema.EntitySchema, name string) {
	rel, ok := es.Relation(name)
	if !ok || s.registry == nil {
		return
	}
	v, ok := src[name]
	if !ok {
		return
	}
	target, err := s.registry.Lookup(rel.Target)
	if err != nil {
		return
	}

	if v == nil {
		dst[name] = nil
		return
	}
	if rel.Many {
		if list, ok := asRecords(v); ok {
			shaped := make([]schema.Record, len(list))
			for i, item := range list {
				shaped[i] = s.scalars(item, target)
			}
			dst[name] = shaped
		}
		return
	}
	if item, ok := asRecord(v); ok {
		dst[name] = s.scalars(item, target)
	}
}

func asRecord(v any) (schema.Record, bool) {
	switch r := v.(type) {
	case schema.Record:
		return r, true
	case map[string]any:
		return r, true
	}
	return nil, false
}

func asRecords(v any) ([]schema.Record, bool) {
	switch list := v.(type) {
	case []schema.Record:
		return list, true
	case []map[string]any:
		out := make([]schema.Record, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out, true
	case []any:
		out := make([]schema.Record, 0, len(list))
		for _, item := range list {
			r, ok := asRecord(item)
			if !ok {
				return nil, false
			}
			out = append(out, r)
		}
		return out, true
	}
	return nil, false
}
