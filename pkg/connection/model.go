package connection

import (
	"errors"
	"fmt"

	"github.com/filemakergo/fmorm/pkg/constants"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// StoreError is an error-shaped result of the Data API.
type StoreError struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *StoreError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("filemaker error %d", e.Code)
	}
	return fmt.Sprintf("filemaker error %d: %s", e.Code, e.Message)
}

// Is matches any *StoreError when target has no code, otherwise it matches by code.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	if t == nil || t.Code == 0 {
		return true
	}
	return t.Code == e.Code
}

// ErrNoRecordsMatch is the store error a find returns when nothing matched.
var ErrNoRecordsMatch = &StoreError{Code: constants.CodeNoRecordsMatch}

// NewRelatedSetNotPresentError returns the error RelatedSet reports for a missing portal.
func NewRelatedSetNotPresentError(table string) *StoreError {
	return &StoreError{Message: fmt.Sprintf(constants.RelatedSetNotPresentFormat, table)}
}

// IsRelatedSetNotPresent reports whether err is the missing-portal error for table.
func IsRelatedSetNotPresent(err error, table string) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Message == fmt.Sprintf(constants.RelatedSetNotPresentFormat, table)
}

// Criterion is one field condition of a find request, the value already carrying its
// operator token.
type Criterion struct {
	Field string
	Value string
}

type SortOrder string

const (
	SortAscend  SortOrder = "ascend"
	SortDescend SortOrder = "descend"
)

// SortRule orders results by Field. Precedence starts at 1.
type SortRule struct {
	Field      string
	Precedence int
	Order      SortOrder
}

// Range selects a window of the found set. A nil Limit means unbounded.
type Range struct {
	Skip  int
	Limit *int
}

type findOptions struct {
	SortRules []SortRule
	Range     Range
}

// AddSortRule appends a sort rule.
func (o *findOptions) AddSortRule(field string, precedence int, order SortOrder) {
	o.SortRules = append(o.SortRules, SortRule{Field: field, Precedence: precedence, Order: order})
}

// SetRange sets the window of records to return.
func (o *findOptions) SetRange(skip int, limit *int) {
	o.Range = Range{Skip: skip, Limit: limit}
}

// FindRequest is a basic find: all criteria must hold.
type FindRequest struct {
	findOptions
	Layout   string
	Criteria []Criterion
}

// NewFindRequest returns an empty find request on layout.
func NewFindRequest(layout string) *FindRequest {
	return &FindRequest{Layout: layout}
}

// AddFindCriterion appends a criterion.
func (r *FindRequest) AddFindCriterion(field, value string) {
	r.Criteria = append(r.Criteria, Criterion{Field: field, Value: value})
}

// CompoundFindRequest is an OR of basic find requests, ordered by precedence.
type CompoundFindRequest struct {
	findOptions
	Layout   string
	Requests *orderedmap.OrderedMap[int, *FindRequest]
}

// NewCompoundFindRequest returns an empty compound find request on layout.
func NewCompoundFindRequest(layout string) *CompoundFindRequest {
	return &CompoundFindRequest{
		Layout:   layout,
		Requests: orderedmap.New[int, *FindRequest](),
	}
}

// Add attaches req under precedence.
func (c *CompoundFindRequest) Add(precedence int, req *FindRequest) {
	c.Requests.Set(precedence, req)
}

// SubRequests returns the attached requests in precedence order.
func (c *CompoundFindRequest) SubRequests() []*FindRequest {
	reqs := make([]*FindRequest, 0, c.Requests.Len())
	for pair := c.Requests.Oldest(); pair != nil; pair = pair.Next() {
		reqs = append(reqs, pair.Value)
	}
	return reqs
}

// Result is the successful outcome of a store command.
type Result struct {
	Records []*Record
	// FoundCount is the size of the found set before the range was applied.
	FoundCount int
}

// FetchCount returns the number of records returned.
func (r *Result) FetchCount() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// First returns the first record or nil.
func (r *Result) First() *Record {
	if r.FetchCount() == 0 {
		return nil
	}
	return r.Records[0]
}

// Record is a record as returned by the store. Every field value is an ordered list to
// support repetitions.
type Record struct {
	RecordID       string
	ModificationID string

	fieldNames []string
	fields     map[string][]any
	related    *orderedmap.OrderedMap[string, []*Record]
}

// NewRecord returns a record with no fields.
func NewRecord(recordID, modificationID string) *Record {
	return &Record{
		RecordID:       recordID,
		ModificationID: modificationID,
		fields:         map[string][]any{},
		related:        orderedmap.New[string, []*Record](),
	}
}

// SetField sets the values of name, appending name to the field order when new.
func (r *Record) SetField(name string, values ...any) *Record {
	if _, ok := r.fields[name]; !ok {
		r.fieldNames = append(r.fieldNames, name)
	}
	r.fields[name] = values
	return r
}

// SetRepetition sets the value of repetition idx (1-based) of name.
func (r *Record) SetRepetition(name string, idx int, value any) *Record {
	values := r.fields[name]
	for len(values) < idx {
		values = append(values, nil)
	}
	values[idx-1] = value
	return r.SetField(name, values...)
}

// AddRelatedSet attaches the records of a related table.
func (r *Record) AddRelatedSet(table string, records ...*Record) *Record {
	r.related.Set(table, records)
	return r
}

// FieldNames returns the field names in layout order.
func (r *Record) FieldNames() []string {
	return r.fieldNames
}

// Field returns the values of name.
func (r *Record) Field(name string) ([]any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// RelatedSetNames returns the names of the attached related sets.
func (r *Record) RelatedSetNames() []string {
	names := make([]string, 0, r.related.Len())
	for pair := r.related.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// RelatedSet returns the related records of table. A table the record carries no
// portal for yields the error built by NewRelatedSetNotPresentError, which is also what
// an empty portal looks like to the API.
func (r *Record) RelatedSet(table string) ([]*Record, error) {
	records, ok := r.related.Get(table)
	if !ok || len(records) == 0 {
		return nil, NewRelatedSetNotPresentError(table)
	}
	return records, nil
}
