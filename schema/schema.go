package schema

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jinzhu/inflection"
)

// FieldType describes how a scalar value is stored and normalised.
type FieldType int

const (
	String FieldType = iota
	Int
	Float
	Bool
	Time
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Time:
		return "time"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field is a scalar attribute of an entity.
type Field struct {
	// Name is the public name clients use in where/sort/select.
	Name string
	// Column is the storage column. Defaults to the snake_case form of Name.
	Column string
	Type   FieldType
	// Hidden fields are never exposed and can not be referenced by clients.
	Hidden bool
}

// Relation links an entity to another registered entity.
type Relation struct {
	Name string
	// Target is the Name of the related EntitySchema.
	Target string
	// LocalKey is a field on this entity, ForeignKey a field on Target.
	// For a to-one relation (todo.profile) LocalKey is "profileId" and
	// ForeignKey is "id"; for a to-many relation (post.comments) LocalKey
	// is "id" and ForeignKey is "postId".
	LocalKey   string
	ForeignKey string
	Many       bool
	// ModelName is the bun relation name on typed models.
	ModelName string
}

// Record is a single row keyed by public field names.
type Record map[string]any

// EntitySchema is the static description of one resource type. It is built
// once at startup, registered, and then only read.
type EntitySchema struct {
	Name       string
	Route      string
	Table      string
	PrimaryKey string
	Fields     []Field
	Relations  []Relation

	scalars   []string
	relations []string
	byName    map[string]int
	relByName map[string]int
}

// Validate checks the schema in isolation; cross-entity checks happen in
// Registry.Validate.
func (s *EntitySchema) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Name, validation.Required),
		validation.Field(&s.PrimaryKey, validation.Required),
		validation.Field(&s.Fields, validation.Required),
	)

	errs := validation.Errors{}
	if err != nil {
		var verrs validation.Errors
		if !errors.As(err, &verrs) {
			return err
		}
		for k, v := range verrs {
			errs[k] = v
		}
	}

	seen := map[string]bool{}
	for i, f := range s.Fields {
		if f.Name == "" {
			errs[fmt.Sprintf("fields.%d", i)] = errors.New("name is required")
			continue
		}
		if seen[f.Name] {
			errs["fields."+f.Name] = errors.New("duplicated field name")
		}
		seen[f.Name] = true
	}

	if s.PrimaryKey != "" && len(s.Fields) > 0 && !seen[s.PrimaryKey] {
		errs["primaryKey"] = fmt.Errorf("%q is not a declared field", s.PrimaryKey)
	}

	for i, r := range s.Relations {
		key := fmt.Sprintf("relations.%d", i)
		if r.Name != "" {
			key = "relations." + r.Name
		}
		switch {
		case r.Name == "":
			errs[key] = errors.New("name is required")
		case seen[r.Name]:
			errs[key] = errors.New("relation name collides with a field")
		case r.Target == "":
			errs[key] = errors.New("target is required")
		case r.LocalKey == "" || r.ForeignKey == "":
			errs[key] = errors.New("local and foreign keys are required")
		case !seen[r.LocalKey]:
			errs[key] = fmt.Errorf("local key %q is not a declared field", r.LocalKey)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// init fills defaults and builds lookup indexes.
func (s *EntitySchema) init() {
	if s.Route == "" {
		s.Route = inflection.Plural(s.Name)
	}
	if s.Table == "" {
		s.Table = inflection.Plural(toSnake(s.Name))
	}

	s.byName = make(map[string]int, len(s.Fields))
	s.scalars = s.scalars[:0]
	for i := range s.Fields {
		if s.Fields[i].Column == "" {
			s.Fields[i].Column = toSnake(s.Fields[i].Name)
		}
		s.byName[s.Fields[i].Name] = i
		if !s.Fields[i].Hidden {
			s.scalars = append(s.scalars, s.Fields[i].Name)
		}
	}

	s.relByName = make(map[string]int, len(s.Relations))
	s.relations = s.relations[:0]
	for i := range s.Relations {
		if s.Relations[i].ModelName == "" {
			s.Relations[i].ModelName = exported(s.Relations[i].Name)
		}
		s.relByName[s.Relations[i].Name] = i
		s.relations = append(s.relations, s.Relations[i].Name)
	}
}

// ScalarFields returns the exposed scalar field names in declaration order.
// This is the allow-list for where, sort and select.
func (s *EntitySchema) ScalarFields() []string {
	return append([]string(nil), s.scalars...)
}

// RelationFields returns the relation names, the allow-list for include.
func (s *EntitySchema) RelationFields() []string {
	return append([]string(nil), s.relations...)
}

// Field looks up a field by public name, hidden fields included.
func (s *EntitySchema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Relation looks up a relation by name.
func (s *EntitySchema) Relation(name string) (Relation, bool) {
	i, ok := s.relByName[name]
	if !ok {
		return Relation{}, false
	}
	return s.Relations[i], true
}

// Exposed reports whether name is an exposed scalar field.
func (s *EntitySchema) Exposed(name string) bool {
	i, ok := s.byName[name]
	return ok && !s.Fields[i].Hidden
}

// Column returns the storage column for a field, or "" if unknown.
func (s *EntitySchema) Column(name string) string {
	if f, ok := s.Field(name); ok {
		return f.Column
	}
	return ""
}
