package models

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Row is an ordered mapping from field name to value, as materialized from a record.
//
// A value is a scalar, a []any holding the ordered values of a repetition field,
// or a *Meta stored under the model's meta key.
type Row struct {
	fields *orderedmap.OrderedMap[string, any]
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{fields: orderedmap.New[string, any]()}
}

// RowFromPairs builds a row from alternating key/value arguments.
// It panics on an odd argument count or a non-string key, so it is meant for tests
// and static data.
func RowFromPairs(kv ...any) *Row {
	if len(kv)%2 != 0 {
		panic("models: RowFromPairs needs an even number of arguments")
	}
	r := NewRow()
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// Set stores value under key, keeping the original position of an existing key.
func (r *Row) Set(key string, value any) {
	r.fields.Set(key, value)
}

// Get returns the value stored under key.
func (r *Row) Get(key string) (any, bool) {
	return r.fields.Get(key)
}

// Value returns the value stored under key, or nil.
func (r *Row) Value(key string) any {
	v, _ := r.fields.Get(key)
	return v
}

// Has reports whether key is present.
func (r *Row) Has(key string) bool {
	_, ok := r.fields.Get(key)
	return ok
}

// Delete removes key.
func (r *Row) Delete(key string) {
	r.fields.Delete(key)
}

// Len returns the number of entries, the meta entry included.
func (r *Row) Len() int {
	return r.fields.Len()
}

// Keys returns the keys in insertion order.
func (r *Row) Keys() []string {
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Each calls fn for every entry in insertion order until fn returns false.
func (r *Row) Each(fn func(key string, value any) bool) {
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Meta returns the metadata stored under metaKey, or nil when the row was never persisted.
func (r *Row) Meta(metaKey string) *Meta {
	v, ok := r.fields.Get(metaKey)
	if !ok {
		return nil
	}
	m, _ := v.(*Meta)
	return m
}

// SetMeta replaces the metadata stored under metaKey.
func (r *Row) SetMeta(metaKey string, meta *Meta) {
	r.fields.Set(metaKey, meta)
}

// Clone returns a shallow copy. Repetition slices are copied, metadata is shared.
func (r *Row) Clone() *Row {
	c := NewRow()
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		if rep, ok := pair.Value.([]any); ok {
			cp := make([]any, len(rep))
			copy(cp, rep)
			c.Set(pair.Key, cp)
			continue
		}
		c.Set(pair.Key, pair.Value)
	}
	return c
}

// MarshalJSON encodes the row as a JSON object in field order.
func (r *Row) MarshalJSON() ([]byte, error) {
	return r.fields.MarshalJSON()
}
