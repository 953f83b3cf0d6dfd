package storage

import (
	"context"

	"github.com/goliatone/go-repository-query/query"
	"github.com/goliatone/go-repository-query/schema"
)

// Executor runs a validated descriptor against a data source.
//
// Find returns the records matching the descriptor's filter, in its order,
// windowed by skip and take, carrying the fields its projection needs. An
// include projection attaches each named relation under its name: a Record
// (or nil) for to-one relations, a []Record for to-many ones.
//
// Operators are interpreted here. A condition with an operator outside
// Operators(), or an operand of the wrong type, yields a
// *query.ValidationError and no statement is executed.
type Executor interface {
	Find(ctx context.Context, es *schema.EntitySchema, d query.QueryDescriptor) ([]schema.Record, error)
}

// Writer persists records keyed by public field names.
type Writer interface {
	// Insert stores rec and returns it as read back. A missing string
	// primary key is generated.
	Insert(ctx context.Context, es *schema.EntitySchema, rec schema.Record) (schema.Record, error)
	// Update applies patch to the record with primary key id. It returns
	// ErrNotFound when no such record exists.
	Update(ctx context.Context, es *schema.EntitySchema, id string, patch schema.Record) (schema.Record, error)
	// Delete removes the record with primary key id, or returns ErrNotFound.
	Delete(ctx context.Context, es *schema.EntitySchema, id string) error
}

// ReadWriter is a data source that serves both reads and writes.
type ReadWriter interface {
	Executor
	Writer
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, es *schema.EntitySchema, d query.QueryDescriptor) ([]schema.Record, error)

// Find calls f.
func (f ExecutorFunc) Find(ctx context.Context, es *schema.EntitySchema, d query.QueryDescriptor) ([]schema.Record, error) {
	return f(ctx, es, d)
}
