package models

import (
	"slices"
	"strings"

	"github.com/filemakergo/fmorm/pkg/constants"
)

// Cardinality tells whether a relation binds one child model or an ordered list of them.
type Cardinality int

const (
	Many Cardinality = iota
	One
)

func (c Cardinality) String() string {
	if c == One {
		return "one"
	}
	return "many"
}

// Relation describes a portal of a layout.
type Relation struct {
	// Table is the related table (portal) name, also the prefix of the portal's field names.
	Table string
	// Model describes the related records.
	Model *ModelSpec
	Cardinality Cardinality
}

// ModelSpec is the static capability descriptor of a model type.
// It is consulted by the query, extraction and write paths instead of inspecting
// model values at runtime, and must not be modified once queries run against it.
type ModelSpec struct {
	// Layout the records are read from and written to.
	Layout string
	// KeyName is the primary key field. Lazy relation loading and Find need it.
	KeyName string
	// MetaKey is the row entry holding Meta. Defaults to constants.DefaultMetaKey.
	MetaKey string

	RepetitionFields []string
	ContainerFields  []string
	// ContainerFieldsAutoload downloads container data when a container field is read.
	ContainerFieldsAutoload bool

	Relations map[string]Relation
}

// GetMetaKey returns MetaKey or the default.
func (s *ModelSpec) GetMetaKey() string {
	if s == nil || s.MetaKey == "" {
		return constants.DefaultMetaKey
	}
	return s.MetaKey
}

func (s *ModelSpec) IsRepetitionField(key string) bool {
	return slices.Contains(s.RepetitionFields, key)
}

func (s *ModelSpec) IsContainerField(key string) bool {
	return slices.Contains(s.ContainerFields, key)
}

// Relation returns the relation registered under name.
func (s *ModelSpec) Relation(name string) (Relation, bool) {
	if s == nil || s.Relations == nil {
		return Relation{}, false
	}
	r, ok := s.Relations[name]
	return r, ok
}

// HasRelation reports whether name is a registered relation.
func (s *ModelSpec) HasRelation(name string) bool {
	_, ok := s.Relation(name)
	return ok
}

// EagerLoad is a parsed eager-load list. Top holds the first path segment of every
// requested relation in request order; Nested holds the remaining dotted path per
// top-level relation.
type EagerLoad struct {
	Top    []string
	Nested map[string][]string
}

// ParseEagerLoad parses dotted relation paths such as "items" or "items.notes" and drops
// every top-level name that spec does not define. Nested segments are validated when
// the nested extractor parses them against the related spec.
func ParseEagerLoad(spec *ModelSpec, paths []string) EagerLoad {
	el := EagerLoad{Nested: map[string][]string{}}
	for _, p := range paths {
		name, rest, _ := strings.Cut(p, ".")
		if name == "" || !spec.HasRelation(name) {
			continue
		}
		if !slices.Contains(el.Top, name) {
			el.Top = append(el.Top, name)
		}
		if rest != "" && !slices.Contains(el.Nested[name], rest) {
			el.Nested[name] = append(el.Nested[name], rest)
		}
	}
	return el
}

// Empty reports whether nothing is to be eager loaded.
func (el EagerLoad) Empty() bool {
	return len(el.Top) == 0
}
