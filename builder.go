package fmorm

import (
	"context"
	"fmt"

	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/filemakergo/fmorm/pkg/extract"
	"github.com/filemakergo/fmorm/pkg/models"
	"github.com/filemakergo/fmorm/pkg/query"
)

// Builder collects the predicates, sort order, window and eager loads of one query.
// A Builder is not safe for concurrent use.
type Builder struct {
	db   *DB
	spec *models.ModelSpec

	wheres []query.Predicate
	sorts  *query.SortSpec
	skip   int
	limit  int
	eager  []string

	// err is the first invalid clause; it is returned when the query runs.
	err error
}

func newBuilder(db *DB, spec *models.ModelSpec) *Builder {
	return &Builder{
		db:    db,
		spec:  spec,
		sorts: query.NewSortSpec(),
		limit: -1,
	}
}

func (b *Builder) add(p query.Predicate, boolean query.Boolean) *Builder {
	b.wheres = append(b.wheres, p.WithBoolean(boolean))
	return b
}

func (b *Builder) addOp(field, op string, value any, boolean query.Boolean) *Builder {
	p, err := query.Op(field, op, value)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	return b.add(p, boolean)
}

// Where adds an exact-match condition.
func (b *Builder) Where(field string, value any) *Builder {
	return b.add(query.Eq(field, value), query.And)
}

// WhereOp adds a condition with an explicit find operator such as ">" or "<=".
func (b *Builder) WhereOp(field, op string, value any) *Builder {
	return b.addOp(field, op, value, query.And)
}

// OrWhere starts a new alternative with an exact-match condition.
func (b *Builder) OrWhere(field string, value any) *Builder {
	return b.add(query.Eq(field, value), query.Or)
}

func (b *Builder) OrWhereOp(field, op string, value any) *Builder {
	return b.addOp(field, op, value, query.Or)
}

// WhereLike adds a condition whose pattern is raw find syntax.
func (b *Builder) WhereLike(field, pattern string) *Builder {
	return b.add(query.Like(field, pattern), query.And)
}

func (b *Builder) OrWhereLike(field, pattern string) *Builder {
	return b.add(query.Like(field, pattern), query.Or)
}

func (b *Builder) WhereNull(field string) *Builder {
	return b.add(query.Null(field), query.And)
}

func (b *Builder) WhereNotNull(field string) *Builder {
	return b.add(query.NotNull(field), query.And)
}

// WhereNested adds the conditions fn puts on a fresh builder as one group.
func (b *Builder) WhereNested(fn func(*Builder)) *Builder {
	return b.nested(fn, query.And)
}

func (b *Builder) OrWhereNested(fn func(*Builder)) *Builder {
	return b.nested(fn, query.Or)
}

func (b *Builder) nested(fn func(*Builder), boolean query.Boolean) *Builder {
	inner := newBuilder(b.db, b.spec)
	fn(inner)
	if inner.err != nil && b.err == nil {
		b.err = inner.err
	}
	if len(inner.wheres) == 0 {
		return b
	}
	return b.add(query.Group(inner.wheres...), boolean)
}

// OrderBy sorts by field. Fields sort in the order they were added.
func (b *Builder) OrderBy(field string, dir query.Direction) *Builder {
	b.sorts.Add(field, dir)
	return b
}

// SortBy sorts ascending by each field in turn.
func (b *Builder) SortBy(fields ...string) *Builder {
	for _, f := range fields {
		b.sorts.Add(f, query.Ascending)
	}
	return b
}

// Skip drops the first n matches.
func (b *Builder) Skip(n int) *Builder {
	b.skip = n
	return b
}

// Limit returns at most n matches. A negative n removes the limit.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// With eager loads relations; dotted paths such as "items.notes" load nested relations.
// Names the model does not define are ignored.
func (b *Builder) With(paths ...string) *Builder {
	b.eager = append(b.eager, paths...)
	return b
}

// Predicates returns the conditions added so far.
func (b *Builder) Predicates() []query.Predicate {
	return b.wheres
}

// Rows runs the query and returns the materialized rows.
func (b *Builder) Rows(ctx context.Context) ([]*models.Row, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.spec == nil || b.spec.Layout == "" {
		return nil, constants.ErrNoLayout
	}

	t := query.NewTranslator(b.db.store, b.spec.Layout)
	res, err := t.Execute(ctx, b.wheres, b.sorts, query.NewRange(b.skip, b.limit))
	if err != nil {
		return nil, err
	}
	b.db.logger.Debug().
		Str("layout", b.spec.Layout).
		Int("predicates", len(b.wheres)).
		Int("records", res.FetchCount()).
		Msg("find")

	rows, err := extract.New(b.spec).WithEagerLoad(b.eager...).ProcessResult(res)
	if err != nil {
		return nil, fmt.Errorf("reading records of layout %q: %w", b.spec.Layout, err)
	}
	return rows, nil
}

// Get runs the query and returns hydrated models with their eager relations bound.
func (b *Builder) Get(ctx context.Context) ([]*Model, error) {
	rows, err := b.Rows(ctx)
	if err != nil {
		return nil, err
	}
	found := b.db.Hydrate(b.spec, rows)
	if len(found) == 0 {
		return found, nil
	}

	resolver := b.db.Resolver()
	for _, name := range models.ParseEagerLoad(b.spec, b.eager).Top {
		if err := resolver.Match(found, name); err != nil {
			return nil, err
		}
	}
	return found, nil
}

// First returns the first match, or ErrNoRecord.
func (b *Builder) First(ctx context.Context) (*Model, error) {
	found, err := b.Limit(1).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, constants.ErrNoRecord
	}
	return found[0], nil
}

// Find returns the model whose primary key equals key.
func (b *Builder) Find(ctx context.Context, key any) (*Model, error) {
	if b.spec.KeyName == "" {
		return nil, fmt.Errorf("%w: layout %q", constants.ErrMissingPrimaryKey, b.spec.Layout)
	}
	return b.Where(b.spec.KeyName, key).First(ctx)
}

// Delete by criteria has no Data API equivalent; it fails without a round trip.
func (b *Builder) Delete(context.Context) error {
	return fmt.Errorf("%w: delete by criteria", constants.ErrUnsupportedOperation)
}
