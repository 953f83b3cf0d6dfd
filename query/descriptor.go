package query

import "fmt"

// Request parameter names, also used as Problem.Param.
const (
	ParamWhere   = "where"
	ParamSort    = "sort"
	ParamSelect  = "select"
	ParamInclude = "include"
	ParamSkip    = "skip"
	ParamTake    = "take"
)

// OperatorEquals is the operator a bare scalar predicate translates to.
const OperatorEquals = "equals"

// Mode is the projection mode of a descriptor.
type Mode int

const (
	ModeAll Mode = iota
	ModeSelect
	ModeInclude
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeSelect:
		return "select"
	case ModeInclude:
		return "include"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Projection is the requested shape of returned records. Fields holds the
// selected scalar fields for ModeSelect and the relation names for
// ModeInclude; it is empty for ModeAll.
type Projection struct {
	Mode   Mode
	Fields []string
}

// Condition is one leaf of the filter tree. Operator is opaque to this
// package; its vocabulary belongs to the storage layer.
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Order is one sort term.
type Order struct {
	Field     string
	Direction Direction
}

// QueryDescriptor is a validated, storage agnostic query. Every field it
// references is in the allow-list of the entity it was built for. The filter
// is the conjunction of its conditions.
type QueryDescriptor struct {
	Entity     string
	Filter     []Condition
	Order      []Order
	Projection Projection
	Skip       int
	// Take is nil when the window is unbounded.
	Take *int
}

// Limit returns the page size and whether one is set.
func (d QueryDescriptor) Limit() (int, bool) {
	if d.Take == nil {
		return 0, false
	}
	return *d.Take, true
}

// WithCondition returns a copy of d with c appended to the filter.
func (d QueryDescriptor) WithCondition(c Condition) QueryDescriptor {
	filter := make([]Condition, 0, len(d.Filter)+1)
	filter = append(filter, d.Filter...)
	d.Filter = append(filter, c)
	return d
}

// ReferencedFields lists every scalar field named in the filter, the order
// and a select projection.
func (d QueryDescriptor) ReferencedFields() []string {
	var out []string
	for _, c := range d.Filter {
		out = append(out, c.Field)
	}
	for _, o := range d.Order {
		out = append(out, o.Field)
	}
	if d.Projection.Mode == ModeSelect {
		out = append(out, d.Projection.Fields...)
	}
	return out
}

// Int returns a pointer to n, handy for Skip and Take literals.
func Int(n int) *int {
	return &n
}
