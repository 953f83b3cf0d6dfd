package storage

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-query/query"
	"github.com/goliatone/go-repository-query/schema"
)

// Lister is the read side of a typed go-repository-bun repository.
// repository.Repository[T] satisfies it.
type Lister[T any] interface {
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error)
}

// RepositoryExecutor serves descriptors from a typed repository. The
// descriptor is turned into select criteria and every returned model is
// converted with ToRecord, which must key the record by public field names
// and attach loaded relations under their relation names.
type RepositoryExecutor[T any] struct {
	repo     Lister[T]
	toRecord func(T) schema.Record
}

// NewRepositoryExecutor adapts repo to Executor.
func NewRepositoryExecutor[T any](repo Lister[T], toRecord func(T) schema.Record) *RepositoryExecutor[T] {
	return &RepositoryExecutor[T]{repo: repo, toRecord: toRecord}
}

// Find implements Executor.
func (e *RepositoryExecutor[T]) Find(ctx context.Context, es *schema.EntitySchema, d query.QueryDescriptor) ([]schema.Record, error) {
	criteria, err := SelectCriteria(es, d)
	if err != nil {
		return nil, err
	}
	if take, ok := d.Limit(); ok && take == 0 {
		return []schema.Record{}, nil
	}

	items, _, err := e.repo.List(ctx, criteria...)
	if err != nil {
		return nil, wrap(es.Name, "list", err)
	}

	records := make([]schema.Record, 0, len(items))
	for _, item := range items {
		records = append(records, normalizeRow(es, e.toRecord(item)))
	}
	return records, nil
}

// SelectCriteria translates d into go-repository-bun select criteria over
// the repository model. Columns are qualified with the model alias so that
// joined relations do not make them ambiguous.
func SelectCriteria(es *schema.EntitySchema, d query.QueryDescriptor) ([]repository.SelectCriteria, error) {
	preds, err := prepare(es, d)
	if err != nil {
		return nil, err
	}

	criteria := make([]repository.SelectCriteria, 0, len(preds)+len(d.Order)+2)
	for _, p := range preds {
		p := p
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return p.where(q, true)
		})
	}
	for _, o := range d.Order {
		col, dir := es.Column(o.Field), sqlDirection(o.Direction)
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("?TableAlias.? "+dir, bun.Ident(col))
		})
	}
	if d.Projection.Mode == query.ModeInclude {
		for _, name := range d.Projection.Fields {
			rel, _ := es.Relation(name)
			model := rel.ModelName
			criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Relation(model)
			})
		}
	}
	if d.Skip > 0 {
		skip := d.Skip
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Offset(skip)
		})
	}
	if take, ok := d.Limit(); ok {
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Limit(take)
		})
	}
	return criteria, nil
}

// ModelLister lists bun models directly. It serves as the Lister of a
// RepositoryExecutor when no go-repository-bun repository is wired.
type ModelLister[T any] struct {
	db bun.IDB
}

// NewModelLister returns a Lister over db for model T.
func NewModelLister[T any](db bun.IDB) *ModelLister[T] {
	return &ModelLister[T]{db: db}
}

// List applies criteria to a select over T and returns the page and the
// total number of matching rows.
func (l *ModelLister[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	var items []T
	q := l.db.NewSelect().Model(&items)
	for _, c := range criteria {
		q = c(q)
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
