// Package extract turns records returned by the store into rows.
package extract

import (
	"fmt"

	"github.com/filemakergo/fmorm/pkg/connection"
	"github.com/filemakergo/fmorm/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Extractor materializes records of one model spec, extracting the related sets of an
// eager-load list on the way.
type Extractor struct {
	spec      *models.ModelSpec
	eagerLoad models.EagerLoad
}

// New returns an extractor for spec with nothing to eager load.
func New(spec *models.ModelSpec) *Extractor {
	return &Extractor{spec: spec, eagerLoad: models.ParseEagerLoad(spec, nil)}
}

// WithEagerLoad returns a copy of e that extracts the given relation paths. Names the
// spec does not define are dropped.
func (e *Extractor) WithEagerLoad(paths ...string) *Extractor {
	return &Extractor{spec: e.spec, eagerLoad: models.ParseEagerLoad(e.spec, paths)}
}

// EagerLoad returns the relation names that will be extracted, in order.
func (e *Extractor) EagerLoad() []string {
	return e.eagerLoad.Top
}

// ProcessResult extracts all records of res. A nil or empty result yields no rows.
func (e *Extractor) ProcessResult(res *connection.Result) ([]*models.Row, error) {
	if res.FetchCount() == 0 {
		return []*models.Row{}, nil
	}
	return e.ProcessArray(res.Records)
}

// ProcessArray extracts already fetched records.
func (e *Extractor) ProcessArray(records []*connection.Record) ([]*models.Row, error) {
	rows := make([]*models.Row, 0, len(records))
	for _, rec := range records {
		row, err := e.ExtractRow(rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ExtractFields returns the fields of rec with repetitions of at most one value
// collapsed to that value. The row carries no metadata.
func (e *Extractor) ExtractFields(rec *connection.Record) *models.Row {
	row := models.NewRow()
	for _, name := range rec.FieldNames() {
		values, _ := rec.Field(name)
		row.Set(name, flatten(values))
	}
	return row
}

// ExtractRow returns the fields of rec plus metadata holding its identity and the rows
// of every eager-loaded relation.
func (e *Extractor) ExtractRow(rec *connection.Record) (*models.Row, error) {
	row := e.ExtractFields(rec)

	meta := models.NewMeta(models.RecordIdentity{
		RecordID:       rec.RecordID,
		ModificationID: rec.ModificationID,
	})

	// relations are independent of each other; results keep the eager-load order
	related := make([][]*models.Row, len(e.eagerLoad.Top))
	var g errgroup.Group
	for i, name := range e.eagerLoad.Top {
		g.Go(func() error {
			rows, err := e.extractRelated(rec, name)
			if err != nil {
				return err
			}
			related[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, name := range e.eagerLoad.Top {
		meta.SetRelated(name, related[i])
	}

	row.SetMeta(e.spec.GetMetaKey(), meta)
	return row, nil
}

func (e *Extractor) extractRelated(rec *connection.Record, name string) ([]*models.Row, error) {
	rel, _ := e.spec.Relation(name)

	records, err := rec.RelatedSet(rel.Table)
	if err != nil {
		// an empty portal and a missing portal look the same
		if connection.IsRelatedSetNotPresent(err, rel.Table) {
			return []*models.Row{}, nil
		}
		return nil, fmt.Errorf("related set %q of record %s: %w", rel.Table, rec.RecordID, err)
	}

	nested := New(rel.Model).WithEagerLoad(e.eagerLoad.Nested[name]...)
	return nested.ProcessArray(records)
}

// flatten collapses a value list with at most one populated slot to that slot's value
// and keeps longer repetitions whole.
func flatten(values []any) any {
	var populated []int
	for i, v := range values {
		if isPopulated(v) {
			populated = append(populated, i)
		}
	}
	switch {
	case len(populated) == 1:
		return values[populated[0]]
	case len(populated) == 0:
		if len(values) == 0 {
			return nil
		}
		return values[0]
	}
	out := make([]any, len(values))
	copy(out, values)
	return out
}

func isPopulated(v any) bool {
	if v == nil {
		return false
	}
	s, ok := v.(string)
	return !ok || s != ""
}
