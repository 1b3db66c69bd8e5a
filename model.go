package fmorm

import (
	"context"
	"fmt"
	"os"
	"reflect"

	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/filemakergo/fmorm/pkg/models"
	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Model is one record of a layout: its attributes, its metadata and the relations bound
// to it so far.
type Model struct {
	db   *DB
	spec *models.ModelSpec

	attributes *models.Row
	original   *models.Row

	relations    *orderedmap.OrderedMap[string, []*Model]
	relatedTable string
	exists       bool
}

func newModel(db *DB, spec *models.ModelSpec) *Model {
	return &Model{
		db:         db,
		spec:       spec,
		attributes: models.NewRow(),
		original:   models.NewRow(),
		relations:  orderedmap.New[string, []*Model](),
	}
}

// Spec returns the descriptor of the model type.
func (m *Model) Spec() *models.ModelSpec {
	return m.spec
}

// Row returns the current attributes, metadata included.
func (m *Model) Row() *models.Row {
	return m.attributes
}

// Exists reports whether the model is stored on the server.
func (m *Model) Exists() bool {
	return m.exists
}

// RelatedTable is the portal the model was read from, or "" for a top-level model.
func (m *Model) RelatedTable() string {
	return m.relatedTable
}

// Meta returns the model's metadata, nil when it was never persisted.
func (m *Model) Meta() *models.Meta {
	return m.attributes.Meta(m.spec.GetMetaKey())
}

// Identity returns the record identity of the model.
func (m *Model) Identity() models.RecordIdentity {
	return m.Meta().Identity()
}

// Key returns the primary key value.
func (m *Model) Key() any {
	if m.spec.KeyName == "" {
		return nil
	}
	return m.attributes.Value(m.spec.KeyName)
}

// Get returns the attribute stored under key. Container fields are returned as
// *models.ContainerField.
func (m *Model) Get(key string) any {
	v := m.attributes.Value(key)
	if !m.spec.IsContainerField(key) {
		return v
	}
	if c := m.containerAttribute(key, v); c != nil {
		return c
	}
	return nil
}

// Container returns the container field stored under key. With autoload enabled on the
// spec the content is downloaded on first access.
func (m *Model) Container(ctx context.Context, key string) (*models.ContainerField, error) {
	if !m.spec.IsContainerField(key) {
		return nil, fmt.Errorf("%w: %q is not a container field", constants.ErrConfiguration, key)
	}
	c := m.containerAttribute(key, m.attributes.Value(key))
	if c == nil || !m.spec.ContainerFieldsAutoload || c.IsLoaded() || c.URL == "" {
		return c, nil
	}
	if m.db.downloader == nil {
		return c, nil
	}
	data, err := m.db.downloader.DownloadContainer(ctx, c.URL)
	if err != nil {
		return nil, fmt.Errorf("loading container %q: %w", key, err)
	}
	c.SetData(data)
	return c, nil
}

// containerAttribute turns a server URL into a container field. The converted value
// replaces the stored one so it does not show up as a change.
func (m *Model) containerAttribute(key string, v any) *models.ContainerField {
	switch tv := v.(type) {
	case *models.ContainerField:
		return tv
	case string:
		if tv == "" {
			return nil
		}
		c := models.ContainerFromServer(key, tv)
		m.attributes.Set(key, c)
		m.original.Set(key, c)
		return c
	}
	return nil
}

// Set stores value under key.
//
// A container field accepts a *models.ContainerField, an *os.File or a server URL;
// an empty value clears it. A repetition field merges a []any into its repetitions
// position by position, any other value replaces the first repetition.
func (m *Model) Set(key string, value any) error {
	switch {
	case m.spec.IsContainerField(key):
		c, err := containerValue(key, value)
		if err != nil {
			return err
		}
		if c == nil {
			m.attributes.Set(key, nil)
			return nil
		}
		m.attributes.Set(key, c)
	case m.spec.IsRepetitionField(key):
		reps := m.repetitions(key)
		if values, ok := value.([]any); ok {
			for i, v := range values {
				reps = setAt(reps, i, v)
			}
		} else {
			reps = setAt(reps, 0, value)
		}
		m.attributes.Set(key, reps)
	default:
		m.attributes.Set(key, value)
	}
	return nil
}

// SetRepetition stores value in repetition n (1-based) of key.
func (m *Model) SetRepetition(key string, n int, value any) error {
	if n < 1 {
		return fmt.Errorf("%w: repetition %d of %q", constants.ErrConfiguration, n, key)
	}
	m.attributes.Set(key, setAt(m.repetitions(key), n-1, value))
	return nil
}

// Fill sets every entry of values.
func (m *Model) Fill(values map[string]any) error {
	for k, v := range values {
		if err := m.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) repetitions(key string) []any {
	switch v := m.attributes.Value(key).(type) {
	case []any:
		out := make([]any, len(v))
		copy(out, v)
		return out
	case nil:
		return []any{}
	default:
		// a single populated repetition was collapsed on read
		return []any{v}
	}
}

func setAt(values []any, i int, v any) []any {
	for len(values) <= i {
		values = append(values, "")
	}
	values[i] = v
	return values
}

func containerValue(key string, value any) (*models.ContainerField, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return models.ContainerFromServer(key, v), nil
	case *models.ContainerField:
		if v == nil {
			return nil, nil
		}
		v.Key = key
		return v, nil
	case models.ContainerField:
		v.Key = key
		return &v, nil
	case *os.File:
		c, err := models.ContainerFromPath(v.Name())
		if err != nil {
			return nil, err
		}
		c.Key = key
		return c, nil
	}
	return nil, fmt.Errorf("%w: %T for field %q", constants.ErrUnsupportedContainerValue, value, key)
}

// Dirty returns the attributes changed since the model was read or last saved.
func (m *Model) Dirty() map[string]any {
	metaKey := m.spec.GetMetaKey()
	dirty := map[string]any{}
	m.attributes.Each(func(key string, value any) bool {
		if key == metaKey {
			return true
		}
		orig, ok := m.original.Get(key)
		if !ok || !reflect.DeepEqual(orig, value) {
			dirty[key] = value
		}
		return true
	})
	return dirty
}

// IsDirty reports whether any attribute changed.
func (m *Model) IsDirty() bool {
	return len(m.Dirty()) > 0
}

// values returns every attribute except the metadata.
func (m *Model) values() map[string]any {
	metaKey := m.spec.GetMetaKey()
	out := map[string]any{}
	m.attributes.Each(func(key string, value any) bool {
		if key != metaKey {
			out[key] = value
		}
		return true
	})
	return out
}

// Save inserts a new model or writes the changed attributes of a stored one.
func (m *Model) Save(ctx context.Context) error {
	w := m.db.Writer(m.spec)
	if !m.exists {
		_, err := w.Insert(ctx, m, m.values())
		return err
	}
	dirty := m.Dirty()
	if len(dirty) == 0 {
		return nil
	}
	return w.Update(ctx, m, dirty)
}

// Delete removes the model's record.
func (m *Model) Delete(ctx context.Context) error {
	return m.db.Writer(m.spec).Delete(ctx, m)
}

// Related returns the models of relation name, loading them on first access.
func (m *Model) Related(ctx context.Context, name string) ([]*Model, error) {
	if children, ok := m.relations.Get(name); ok {
		return children, nil
	}
	children, err := m.db.Resolver().Resolve(ctx, m, name)
	if err != nil {
		return nil, err
	}
	m.setRelation(name, children)
	return children, nil
}

// RelatedOne returns the single model of a One relation, nil when there is none.
func (m *Model) RelatedOne(ctx context.Context, name string) (*Model, error) {
	children, err := m.Related(ctx, name)
	if err != nil || len(children) == 0 {
		return nil, err
	}
	return children[0], nil
}

// RelationLoaded reports whether relation name is bound.
func (m *Model) RelationLoaded(name string) bool {
	_, ok := m.relations.Get(name)
	return ok
}

func (m *Model) setRelation(name string, children []*Model) {
	m.relations.Set(name, children)
}

func (m *Model) setRawAttributes(row *models.Row) {
	m.attributes = row
}

func (m *Model) setMeta(meta *models.Meta) {
	m.attributes.SetMeta(m.spec.GetMetaKey(), meta)
}

func (m *Model) syncOriginal() {
	m.original = m.attributes.Clone()
}

// MarshalJSON encodes the attributes followed by the bound relations. Metadata is left out.
func (m *Model) MarshalJSON() ([]byte, error) {
	out := orderedmap.New[string, any]()
	metaKey := m.spec.GetMetaKey()
	m.attributes.Each(func(key string, value any) bool {
		if key == metaKey {
			return true
		}
		if c, ok := value.(*models.ContainerField); ok {
			value = c.String()
		}
		out.Set(key, value)
		return true
	})
	for pair := m.relations.Oldest(); pair != nil; pair = pair.Next() {
		rel, _ := m.spec.Relation(pair.Key)
		if rel.Cardinality == models.One {
			if len(pair.Value) == 0 {
				out.Set(pair.Key, nil)
			} else {
				out.Set(pair.Key, pair.Value[0])
			}
			continue
		}
		out.Set(pair.Key, pair.Value)
	}
	return json.Marshal(out)
}
