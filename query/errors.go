package query

import (
	"fmt"
	"strings"
)

// Problem is a single reason a request was rejected.
type Problem struct {
	// Param is the request parameter the problem was found in (where, sort,
	// select, include, skip, take).
	Param string `json:"param"`
	// Field is the offending field name, empty for problems that are not
	// about a field (e.g. a negative skip).
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Field == "" {
		return p.Param + ": " + p.Message
	}
	return fmt.Sprintf("%s.%s: %s", p.Param, p.Field, p.Message)
}

// ValidationError reports every problem found in a client request. It is
// returned before storage is touched.
type ValidationError struct {
	Problems []Problem `json:"problems"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "invalid query"
	}
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return "invalid query: " + strings.Join(parts, "; ")
}

// Fields returns the distinct offending field names in the order they were
// reported.
func (e *ValidationError) Fields() []string {
	if e == nil {
		return nil
	}
	seen := make(map[string]bool, len(e.Problems))
	var out []string
	for _, p := range e.Problems {
		if p.Field == "" || seen[p.Field] {
			continue
		}
		seen[p.Field] = true
		out = append(out, p.Field)
	}
	return out
}

// Add appends a problem.
func (e *ValidationError) Add(param, field, message string) {
	e.Problems = append(e.Problems, Problem{Param: param, Field: field, Message: message})
}

// Merge appends the problems of other, which may be nil.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	e.Problems = append(e.Problems, other.Problems...)
}

// Err returns e as an error, or nil when no problem was recorded. Use it to
// avoid returning a typed nil through the error interface.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}
