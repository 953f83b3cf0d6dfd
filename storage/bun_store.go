package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/goliatone/go-repository-query/query"
	"github.com/goliatone/go-repository-query/schema"
)

// ParamBody is the Problem.Param reported for invalid write payloads.
const ParamBody = "body"

var _ ReadWriter = (*BunStore)(nil)

// BunStore executes descriptors against tables described by entity schemas.
// Rows are scanned into maps keyed by public field names, so no Go model is
// needed per entity.
type BunStore struct {
	db       bun.IDB
	registry *schema.Registry
	logger   *slog.Logger
	newID    func() string
}

// StoreOption customises a BunStore.
type StoreOption func(*BunStore)

// WithLogger sets the logger used for statement traces.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *BunStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator replaces the uuid generator used for missing primary keys.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *BunStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewBunStore builds a store over db. The registry resolves relation
// targets for include expansion.
func NewBunStore(db bun.IDB, registry *schema.Registry, opts ...StoreOption) *BunStore {
	s := &BunStore{
		db:       db,
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Find implements Executor.
func (s *BunStore) Find(ctx context.Context, es *schema.EntitySchema, d query.QueryDescriptor) ([]schema.Record, error) {
	preds, err := prepare(es, d)
	if err != nil {
		return nil, err
	}
	if take, ok := d.Limit(); ok && take == 0 {
		return []schema.Record{}, nil
	}

	start := time.Now()
	q := s.selectFrom(es, projectedFields(es, d.Projection))
	for _, p := range preds {
		q = p.where(q, false)
	}
	for _, o := range d.Order {
		q = q.OrderExpr("? "+sqlDirection(o.Direction), bun.Ident(es.Column(o.Field)))
	}
	q = s.window(q, d)

	records, err := s.scan(ctx, es, q, "find")
	if err != nil {
		return nil, err
	}

	if d.Projection.Mode == query.ModeInclude {
		for _, name := range d.Projection.Fields {
			if err := s.expand(ctx, es, records, name); err != nil {
				return nil, err
			}
		}
	}

	s.logger.Debug("storage find",
		"entity", es.Name,
		"conditions", len(preds),
		"rows", len(records),
		"elapsed", time.Since(start),
	)
	return records, nil
}

// prepare compiles the filter and checks the rest of d against es. Every
// problem is reported at once, before any statement is built.
func prepare(es *schema.EntitySchema, d query.QueryDescriptor) ([]predicate, error) {
	preds, verr := compileFilter(es, d.Filter)
	verr.Merge(checkDescriptor(es, d))
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return preds, nil
}

// checkDescriptor guards against descriptors that were not built for es.
func checkDescriptor(es *schema.EntitySchema, d query.QueryDescriptor) *query.ValidationError {
	verr := &query.ValidationError{}
	for _, o := range d.Order {
		if !es.Exposed(o.Field) {
			verr.Add(query.ParamSort, o.Field, "unknown field")
		}
		if o.Direction != query.Asc && o.Direction != query.Desc {
			verr.Add(query.ParamSort, o.Field, fmt.Sprintf("unknown direction %q", o.Direction))
		}
	}
	switch d.Projection.Mode {
	case query.ModeSelect:
		for _, name := range d.Projection.Fields {
			if !es.Exposed(name) {
				verr.Add(query.ParamSelect, name, "unknown field")
			}
		}
	case query.ModeInclude:
		for _, name := range d.Projection.Fields {
			if _, ok := es.Relation(name); !ok {
				verr.Add(query.ParamInclude, name, "unknown relation")
			}
		}
	}
	if d.Skip < 0 {
		verr.Add(query.ParamSkip, "", "must not be negative")
	}
	if take, ok := d.Limit(); ok && take < 0 {
		verr.Add(query.ParamTake, "", "must not be negative")
	}
	return verr
}

// projectedFields returns the fields to read. A select reads what was
// selected plus the primary key; otherwise every declared field is read and
// the shaper decides what leaves the process.
func projectedFields(es *schema.EntitySchema, p query.Projection) []schema.Field {
	if p.Mode != query.ModeSelect {
		return es.Fields
	}
	out := make([]schema.Field, 0, len(p.Fields)+1)
	if pk, ok := es.Field(es.PrimaryKey); ok && !contains(p.Fields, pk.Name) {
		out = append(out, pk)
	}
	for _, name := range p.Fields {
		if f, ok := es.Field(name); ok {
			out = append(out, f)
		}
	}
	return out
}

func (s *BunStore) selectFrom(es *schema.EntitySchema, fields []schema.Field) *bun.SelectQuery {
	q := s.db.NewSelect().TableExpr("?", bun.Ident(es.Table))
	for _, f := range fields {
		q = q.ColumnExpr("? AS ?", bun.Ident(f.Column), bun.Ident(f.Name))
	}
	return q
}

func (s *BunStore) window(q *bun.SelectQuery, d query.QueryDescriptor) *bun.SelectQuery {
	if d.Skip > 0 {
		q = q.Offset(d.Skip)
	}
	if take, ok := d.Limit(); ok {
		return q.Limit(take)
	}
	// sqlite rejects OFFSET without LIMIT
	if d.Skip > 0 && s.db.Dialect().Name() == dialect.SQLite {
		q = q.Limit(-1)
	}
	return q
}

func (s *BunStore) scan(ctx context.Context, es *schema.EntitySchema, q *bun.SelectQuery, op string) ([]schema.Record, error) {
	var rows []map[string]any
	if err := q.Scan(ctx, &rows); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, wrap(es.Name, op, err)
	}
	records := make([]schema.Record, len(rows))
	for i, row := range rows {
		records[i] = normalizeRow(es, row)
	}
	return records, nil
}

// expand loads one relation for every record with a single IN query and
// attaches the result under the relation name.
func (s *BunStore) expand(ctx context.Context, es *schema.EntitySchema, records []schema.Record, name string) error {
	rel, ok := es.Relation(name)
	if !ok {
		return (&query.ValidationError{Problems: []query.Problem{{Param: query.ParamInclude, Field: name, Message: "unknown relation"}}}).Err()
	}
	if s.registry == nil {
		return fmt.Errorf("storage: include %s.%s: no registry", es.Name, name)
	}
	target, err := s.registry.Lookup(rel.Target)
	if err != nil {
		return err
	}

	keys := make([]any, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		v := rec[rel.LocalKey]
		if v == nil {
			continue
		}
		k := joinKey(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, v)
	}

	related := map[string][]schema.Record{}
	if len(keys) > 0 {
		q := s.selectFrom(target, target.Fields).
			Where("? IN (?)", bun.Ident(target.Column(rel.ForeignKey)), bun.In(keys)).
			OrderExpr("? ASC", bun.Ident(target.Column(target.PrimaryKey)))
		children, err := s.scan(ctx, target, q, "include "+name)
		if err != nil {
			return err
		}
		for _, child := range children {
			k := joinKey(child[rel.ForeignKey])
			related[k] = append(related[k], child)
		}
	}

	for _, rec := range records {
		var matches []schema.Record
		if v := rec[rel.LocalKey]; v != nil {
			matches = related[joinKey(v)]
		}
		if rel.Many {
			list := make([]schema.Record, 0, len(matches))
			for _, m := range matches {
				list = append(list, copyRecord(m))
			}
			rec[name] = list
			continue
		}
		if len(matches) > 0 {
			rec[name] = copyRecord(matches[0])
		} else {
			rec[name] = nil
		}
	}
	return nil
}

// joinKey gives key values of different Go types a common comparable form.
func joinKey(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func copyRecord(r schema.Record) schema.Record {
	out := make(schema.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func sqlDirection(d query.Direction) string {
	if d == query.Desc {
		return "DESC"
	}
	return "ASC"
}

// Insert implements Writer.
func (s *BunStore) Insert(ctx context.Context, es *schema.EntitySchema, rec schema.Record) (schema.Record, error) {
	values, err := columnValues(es, rec, true)
	if err != nil {
		return nil, err
	}

	pk, _ := es.Field(es.PrimaryKey)
	id, present := values[pk.Column]
	if !present || id == nil || id == "" {
		if pk.Type != schema.String {
			return nil, (&query.ValidationError{Problems: []query.Problem{{Param: ParamBody, Field: pk.Name, Message: "is required"}}}).Err()
		}
		id = s.newID()
		values[pk.Column] = id
	}

	if _, err := s.db.NewInsert().Model(&values).TableExpr("?", bun.Ident(es.Table)).Exec(ctx); err != nil {
		return nil, wrap(es.Name, "insert", err)
	}
	s.logger.Debug("storage insert", "entity", es.Name, "id", id)
	return s.load(ctx, es, id, "insert")
}

// Update implements Writer.
func (s *BunStore) Update(ctx context.Context, es *schema.EntitySchema, id string, patch schema.Record) (schema.Record, error) {
	key, err := primaryKeyValue(es, id)
	if err != nil {
		return nil, err
	}
	if _, ok := patch[es.PrimaryKey]; ok {
		return nil, (&query.ValidationError{Problems: []query.Problem{{Param: ParamBody, Field: es.PrimaryKey, Message: "can not be changed"}}}).Err()
	}
	values, err := columnValues(es, patch, false)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return s.load(ctx, es, key, "update")
	}

	res, err := s.db.NewUpdate().
		Model(&values).
		TableExpr("?", bun.Ident(es.Table)).
		Where("? = ?", bun.Ident(es.Column(es.PrimaryKey)), key).
		Exec(ctx)
	if err != nil {
		return nil, wrap(es.Name, "update", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, notFound(es.Name, "update")
	}
	return s.load(ctx, es, key, "update")
}

// Delete implements Writer.
func (s *BunStore) Delete(ctx context.Context, es *schema.EntitySchema, id string) error {
	key, err := primaryKeyValue(es, id)
	if err != nil {
		return err
	}
	res, err := s.db.NewDelete().
		TableExpr("?", bun.Ident(es.Table)).
		Where("? = ?", bun.Ident(es.Column(es.PrimaryKey)), key).
		Exec(ctx)
	if err != nil {
		return wrap(es.Name, "delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(es.Name, "delete")
	}
	return nil
}

func (s *BunStore) load(ctx context.Context, es *schema.EntitySchema, id any, op string) (schema.Record, error) {
	q := s.selectFrom(es, es.Fields).
		Where("? = ?", bun.Ident(es.Column(es.PrimaryKey)), id).
		Limit(1)
	records, err := s.scan(ctx, es, q, op)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, notFound(es.Name, op)
	}
	return records[0], nil
}

// columnValues maps a payload keyed by public names to column values,
// coercing each value to its field type. Hidden and unknown fields are
// rejected.
func columnValues(es *schema.EntitySchema, rec schema.Record, insert bool) (map[string]any, error) {
	verr := &query.ValidationError{}
	values := make(map[string]any, len(rec))
	for name, v := range rec {
		f, ok := es.Field(name)
		if !ok || f.Hidden {
			verr.Add(ParamBody, name, "unknown field")
			continue
		}
		if v == nil {
			values[f.Column] = nil
			continue
		}
		cv, err := coerce(f, v)
		if err != nil {
			verr.Add(ParamBody, name, err.Error())
			continue
		}
		values[f.Column] = cv
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if insert && len(values) == 0 {
		return nil, (&query.ValidationError{Problems: []query.Problem{{Param: ParamBody, Message: "empty record"}}}).Err()
	}
	return values, nil
}

// primaryKeyValue converts a path id to the primary key's type.
func primaryKeyValue(es *schema.EntitySchema, id string) (any, error) {
	pk, _ := es.Field(es.PrimaryKey)
	if pk.Type != schema.Int {
		return id, nil
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		// a non numeric id can not match any row
		return nil, notFound(es.Name, "lookup")
	}
	return n, nil
}
