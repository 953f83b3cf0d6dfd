package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	// ErrDuplicateEntity is returned when an entity name or route is registered twice.
	ErrDuplicateEntity = errors.New("entity already registered")
	// ErrUnknownEntity is returned by lookups for names that were never registered.
	ErrUnknownEntity = errors.New("unknown entity")
)

// Registry holds every EntitySchema of the process. Entities are registered
// once at startup; after that the registry is only read.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*EntitySchema
	byRoute map[string]*EntitySchema
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*EntitySchema),
		byRoute: make(map[string]*EntitySchema),
	}
}

// Register validates s, fills its defaults and stores it.
func (r *Registry) Register(s *EntitySchema) error {
	if s == nil {
		return errors.New("schema: nil entity")
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("schema %q: %w", s.Name, err)
	}
	s.init()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[s.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, s.Name)
	}
	if _, ok := r.byRoute[s.Route]; ok {
		return fmt.Errorf("%w: route %s", ErrDuplicateEntity, s.Route)
	}

	r.byName[s.Name] = s
	r.byRoute[s.Route] = s
	r.order = append(r.order, s.Name)
	return nil
}

// MustRegister registers every schema and panics on the first failure.
// Meant for package-level entity wiring.
func (r *Registry) MustRegister(schemas ...*EntitySchema) *Registry {
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*EntitySchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return s, nil
}

// ByRoute returns the schema whose route identity is route.
func (r *Registry) ByRoute(route string) (*EntitySchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byRoute[route]
	if !ok {
		return nil, fmt.Errorf("%w: route %s", ErrUnknownEntity, route)
	}
	return s, nil
}

// All returns the registered schemas in registration order.
func (r *Registry) All() []*EntitySchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*EntitySchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Validate checks relations across entities: every target must be
// registered and every foreign key must be a field of the target.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	errs := validation.Errors{}
	for _, name := range r.order {
		s := r.byName[name]
		for _, rel := range s.Relations {
			key := s.Name + "." + rel.Name
			target, ok := r.byName[rel.Target]
			if !ok {
				errs[key] = fmt.Errorf("unknown target %q", rel.Target)
				continue
			}
			if _, ok := target.Field(rel.ForeignKey); !ok {
				errs[key] = fmt.Errorf("foreign key %q is not a field of %s", rel.ForeignKey, target.Name)
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Dependents returns the routes whose cached reads can embed records of the
// named entity through an include, sorted for stable output.
func (r *Registry) Dependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var routes []string
	for _, other := range r.order {
		s := r.byName[other]
		if s.Name == name {
			continue
		}
		for _, rel := range s.Relations {
			if rel.Target == name {
				routes = append(routes, s.Route)
				break
			}
		}
	}
	sort.Strings(routes)
	return routes
}
