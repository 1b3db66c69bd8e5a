package models

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// RecordIdentity is the pair the store assigns to a record. RecordID never changes,
// ModificationID changes on every successful write and acts as the
// optimistic-concurrency token.
type RecordIdentity struct {
	RecordID       string `json:"recordId"`
	ModificationID string `json:"modificationId"`
}

// IsZero reports whether the identity was never assigned.
func (id RecordIdentity) IsZero() bool {
	return id.RecordID == ""
}

// Meta is the metadata attached to every materialized row.
type Meta struct {
	RecordID       string                                   `json:"recordId"`
	ModificationID string                                   `json:"modificationId"`
	Related        *orderedmap.OrderedMap[string, []*Row] `json:"related,omitempty"`
}

// NewMeta returns metadata for identity with an empty related map.
func NewMeta(identity RecordIdentity) *Meta {
	return &Meta{
		RecordID:       identity.RecordID,
		ModificationID: identity.ModificationID,
		Related:        orderedmap.New[string, []*Row](),
	}
}

// Identity returns the record identity held by the metadata.
func (m *Meta) Identity() RecordIdentity {
	if m == nil {
		return RecordIdentity{}
	}
	return RecordIdentity{RecordID: m.RecordID, ModificationID: m.ModificationID}
}

// RelatedRows returns the eagerly extracted rows of relation name.
func (m *Meta) RelatedRows(name string) ([]*Row, bool) {
	if m == nil || m.Related == nil {
		return nil, false
	}
	return m.Related.Get(name)
}

// SetRelated stores the extracted rows of relation name.
func (m *Meta) SetRelated(name string, rows []*Row) {
	if m.Related == nil {
		m.Related = orderedmap.New[string, []*Row]()
	}
	m.Related.Set(name, rows)
}

// ConsumeRelated removes and returns the rows of relation name.
func (m *Meta) ConsumeRelated(name string) ([]*Row, bool) {
	if m == nil || m.Related == nil {
		return nil, false
	}
	return m.Related.Delete(name)
}

// RelatedNames returns the relation names held, in extraction order.
func (m *Meta) RelatedNames() []string {
	if m == nil || m.Related == nil {
		return nil
	}
	names := make([]string, 0, m.Related.Len())
	for pair := m.Related.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}
