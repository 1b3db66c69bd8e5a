package query

import (
	"strings"

	"github.com/filemakergo/fmorm/pkg/connection"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type Direction int

const (
	Ascending Direction = iota
	Descending
)

// ParseDirection maps "desc"/"descend"/"descending" to Descending and anything else to
// Ascending.
func ParseDirection(s string) Direction {
	switch strings.ToLower(s) {
	case "desc", "descend", "descending":
		return Descending
	}
	return Ascending
}

func (d Direction) order() connection.SortOrder {
	if d == Descending {
		return connection.SortDescend
	}
	return connection.SortAscend
}

// SortSpec orders results by fields; insertion order is precedence.
// Sorting again by a field keeps its precedence and replaces its direction.
type SortSpec struct {
	fields *orderedmap.OrderedMap[string, Direction]
}

func NewSortSpec() *SortSpec {
	return &SortSpec{fields: orderedmap.New[string, Direction]()}
}

func (s *SortSpec) Add(field string, dir Direction) *SortSpec {
	s.fields.Set(field, dir)
	return s
}

func (s *SortSpec) Len() int {
	if s == nil {
		return 0
	}
	return s.fields.Len()
}

// Range is the skip/limit window of a query.
type Range = connection.Range

// NewRange returns a window of at most limit records after skip. A negative limit is
// unbounded.
func NewRange(skip, limit int) Range {
	if limit < 0 {
		return Range{Skip: skip}
	}
	return Range{Skip: skip, Limit: &limit}
}
