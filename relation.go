package fmorm

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/filemakergo/fmorm/pkg/models"
)

// Resolver binds related rows onto models.
type Resolver struct {
	db *DB
}

// Match binds relation name of every parent from the rows extracted into its metadata.
// The entry is removed from the metadata, so a parent is matched at most once.
//
// Portal fields are named "<table>::<field>". The field names are taken from the first
// related row found and assigned by position to every row, so all rows of one relation
// must have the same fields.
func (r *Resolver) Match(parents []*Model, name string) error {
	if len(parents) == 0 {
		return nil
	}
	rel, ok := parents[0].spec.Relation(name)
	if !ok {
		return fmt.Errorf("%w: %q", constants.ErrUnknownRelation, name)
	}

	var keys []string
	for _, p := range parents {
		if rows, _ := p.Meta().RelatedRows(name); len(rows) > 0 {
			keys = fieldKeys(rows[0], rel.Table)
			break
		}
	}

	var all []*Model
	for _, p := range parents {
		rows, ok := p.Meta().ConsumeRelated(name)
		if !ok {
			continue
		}
		renamed := make([]*models.Row, 0, len(rows))
		for _, row := range rows {
			rr, err := rekey(row, keys)
			if err != nil {
				return fmt.Errorf("relation %q: %w", name, err)
			}
			renamed = append(renamed, rr)
		}

		children := r.db.Hydrate(rel.Model, renamed)
		for _, c := range children {
			c.relatedTable = rel.Table
		}
		if rel.Cardinality == models.One && len(children) > 1 {
			children = children[:1]
		}
		p.setRelation(name, children)
		all = append(all, children...)
	}

	// nested eager loads were extracted into the children's metadata
	var nested []string
	for _, c := range all {
		for _, n := range c.Meta().RelatedNames() {
			if !slices.Contains(nested, n) {
				nested = append(nested, n)
			}
		}
	}
	for _, n := range nested {
		if err := r.Match(all, n); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the models of relation name of parent. Rows still held in the
// parent's metadata are bound directly; otherwise the parent is read again by primary
// key with only this relation eager loaded.
func (r *Resolver) Resolve(ctx context.Context, parent *Model, name string) ([]*Model, error) {
	if !parent.spec.HasRelation(name) {
		return nil, fmt.Errorf("%w: %q", constants.ErrUnknownRelation, name)
	}

	if _, ok := parent.Meta().RelatedRows(name); ok {
		if err := r.Match([]*Model{parent}, name); err != nil {
			return nil, err
		}
		children, _ := parent.relations.Get(name)
		return children, nil
	}

	key := parent.Key()
	if key == nil {
		return nil, fmt.Errorf("%w: loading relation %q", constants.ErrMissingPrimaryKey, name)
	}
	fresh, err := r.db.Query(parent.spec).With(name).Find(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading relation %q: %w", name, err)
	}
	children, _ := fresh.relations.Get(name)
	if children == nil {
		children = []*Model{}
	}
	return children, nil
}

// fieldKeys returns the keys of row with the portal prefix removed.
func fieldKeys(row *models.Row, table string) []string {
	prefix := table + constants.RelatedFieldSeparator
	keys := row.Keys()
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, prefix)
	}
	return keys
}

func rekey(row *models.Row, keys []string) (*models.Row, error) {
	if row.Len() != len(keys) {
		return nil, fmt.Errorf("%w: %d fields, expected %d", constants.ErrRelatedFieldMismatch, row.Len(), len(keys))
	}
	out := models.NewRow()
	i := 0
	row.Each(func(_ string, value any) bool {
		out.Set(keys[i], value)
		i++
		return true
	})
	return out, nil
}
