// Package fakestore provides an in-memory FileMaker store for testing purposes.
// It implements connection.Store with the find semantics the query layer relies on
// (criteria operators, compound OR finds, sorting and ranges), record and
// modification ids, portals and container storage.
//
// To flexibly inject failures, you can configure stub responses that match specific
// operations and layouts, along with failure configurations that specify how a
// matching call fails (e.g., delays, empty responses).
package fakestore

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/filemakergo/fmorm/pkg/connection"
	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/filemakergo/fmorm/pkg/models"
	"github.com/gofrs/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// cryptoRandInt64 generates a cryptographically secure random int64 in [0, max)
func cryptoRandInt64(rMax int64) int64 {
	if rMax <= 0 {
		return 0
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(rMax))
	return n.Int64()
}

// cryptoRandFloat64 generates a cryptographically secure random float64 in [0.0, 1.0)
func cryptoRandFloat64() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(1<<53))
	return float64(n.Int64()) / float64(1<<53)
}

// Operation names a store call.
type Operation string

const (
	OpFind         Operation = "find"
	OpFindCompound Operation = "findCompound"
	OpAdd          Operation = "add"
	OpEdit         Operation = "edit"
	OpDelete       Operation = "delete"
	OpUpload       Operation = "upload"
)

// FailureType represents the type of failure to inject during a call
type FailureType string

const (
	// FailureNone indicates no failure injection
	FailureNone FailureType = "none"
	// FailureRequestDelay delays before processing the call
	FailureRequestDelay FailureType = "request_delay"
	// FailureRandomDelay applies a random delay between MinDelay and MaxDelay
	FailureRandomDelay FailureType = "random_delay"
	// FailureEmptyResponse returns a successful result without records
	FailureEmptyResponse FailureType = "empty_response"
)

// FailureConfig defines how and when to inject a specific failure type
type FailureConfig struct {
	Type FailureType
	// Probability of triggering this failure (0.0 to 1.0)
	Probability float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// Call is a recorded store call.
type Call struct {
	Operation Operation
	Layout    string
	RecordID  string
	Fields    map[string]any
	Find      *connection.FindRequest
	Compound  *connection.CompoundFindRequest
}

// RequestMatcher defines criteria for matching calls.
type RequestMatcher struct {
	Operation Operation
	// Layout restricts the match to one layout when set.
	Layout string
	// Matcher is an optional function to match based on the call.
	Matcher func(call Call) bool
}

func (m RequestMatcher) matches(call Call) bool {
	if m.Operation != call.Operation {
		return false
	}
	if m.Layout != "" && m.Layout != call.Layout {
		return false
	}
	return m.Matcher == nil || m.Matcher(call)
}

// StubResponse defines a pre-configured outcome for matching calls. Result and Error
// are mutually exclusive; with neither set the call runs normally after the failures.
type StubResponse struct {
	Matcher  RequestMatcher
	Result   *connection.Result
	Error    *connection.StoreError
	Failures []FailureConfig
}

// ErrorStubResponse creates a stub failing every call of op with code.
func ErrorStubResponse(op Operation, code int, message string) StubResponse {
	return StubResponse{
		Matcher: RequestMatcher{Operation: op},
		Error:   &connection.StoreError{Code: code, Message: message},
	}
}

type portalRow struct {
	recordID int
	modID    int
	fields   *models.Row
}

type storedRecord struct {
	recordID int
	modID    int
	fields   map[string][]any
	portals  *orderedmap.OrderedMap[string, []portalRow]
}

type layout struct {
	name    string
	keyName string
	fields  []string
	records []*storedRecord
}

// Store is an in-memory connection.Store.
type Store struct {
	mu             sync.RWMutex
	layouts        map[string]*layout
	stubResponses  []StubResponse
	globalFailures []FailureConfig
	calls          []Call
	containers     map[string][]byte

	nextRecordID int
	nextPortalID int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		layouts:      map[string]*layout{},
		containers:   map[string][]byte{},
		nextRecordID: 1,
		nextPortalID: 1,
	}
}

// DefineLayout registers a layout and its fields in layout order. keyName, when set, is
// auto-entered with a UUID on records added without it.
func (s *Store) DefineLayout(name, keyName string, fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layouts[name] = &layout{name: name, keyName: keyName, fields: fields}
}

// Seed stores a record with its portal rows and returns its record id. Portal row
// fields are named "<table>::<field>" as the Data API returns them.
func (s *Store) Seed(layoutName string, fields *models.Row, portals map[string][]*models.Row) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.layout(layoutName)
	if err != nil {
		return "", err
	}
	rec, err := s.newRecord(l, rowFields(fields))
	if err != nil {
		return "", err
	}

	tables := make([]string, 0, len(portals))
	for t := range portals {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		rows := make([]portalRow, 0, len(portals[t]))
		for _, r := range portals[t] {
			rows = append(rows, portalRow{recordID: s.nextPortalID, fields: r})
			s.nextPortalID++
		}
		rec.portals.Set(t, rows)
	}
	return strconv.Itoa(rec.recordID), nil
}

// AddStubResponse adds a stub response configuration to the store.
// Stub responses are matched in the order they were added.
func (s *Store) AddStubResponse(stub StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubResponses = append(s.stubResponses, stub)
}

// SetGlobalFailures sets failure configurations that apply to all calls.
// These are checked before stub-specific failures.
func (s *Store) SetGlobalFailures(failures []FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalFailures = failures
}

// Calls returns the calls made so far.
func (s *Store) Calls() []Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.calls)
}

// Count returns the number of records on a layout.
func (s *Store) Count(layoutName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.layouts[layoutName]; ok {
		return len(l.records)
	}
	return 0
}

// Find implements connection.Store.
func (s *Store) Find(ctx context.Context, req *connection.FindRequest) (*connection.Result, error) {
	call := Call{Operation: OpFind, Layout: req.Layout, Find: req}
	if res, done, err := s.intercept(ctx, call); done {
		return res, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	l, err := s.layout(req.Layout)
	if err != nil {
		return nil, err
	}
	var found []*storedRecord
	for _, rec := range l.records {
		ok, err := matchAll(rec, req.Criteria)
		if err != nil {
			return nil, err
		}
		if ok {
			found = append(found, rec)
		}
	}
	return window(l, found, req.SortRules, req.Range)
}

// FindCompound implements connection.Store. Records matching any sub-request are found.
func (s *Store) FindCompound(ctx context.Context, req *connection.CompoundFindRequest) (*connection.Result, error) {
	call := Call{Operation: OpFindCompound, Layout: req.Layout, Compound: req}
	if res, done, err := s.intercept(ctx, call); done {
		return res, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	l, err := s.layout(req.Layout)
	if err != nil {
		return nil, err
	}
	subs := req.SubRequests()
	var found []*storedRecord
	for _, rec := range l.records {
		for _, sub := range subs {
			ok, err := matchAll(rec, sub.Criteria)
			if err != nil {
				return nil, err
			}
			if ok {
				found = append(found, rec)
				break
			}
		}
	}
	return window(l, found, req.SortRules, req.Range)
}

// Add implements connection.Store.
func (s *Store) Add(ctx context.Context, layoutName string, fields map[string]any) (*connection.Result, error) {
	call := Call{Operation: OpAdd, Layout: layoutName, Fields: fields}
	if res, done, err := s.intercept(ctx, call); done {
		return res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.layout(layoutName)
	if err != nil {
		return nil, err
	}
	values := map[string][]any{}
	for k, v := range fields {
		values[k] = fieldValues(v)
	}
	rec, err := s.newRecord(l, values)
	if err != nil {
		return nil, err
	}
	return &connection.Result{Records: []*connection.Record{toRecord(l, rec)}, FoundCount: 1}, nil
}

// Edit implements connection.Store. A non-empty modificationID must match the record's.
func (s *Store) Edit(ctx context.Context, layoutName, recordID, modificationID string, fields map[string]any) (*connection.Result, error) {
	call := Call{Operation: OpEdit, Layout: layoutName, RecordID: recordID, Fields: fields}
	if res, done, err := s.intercept(ctx, call); done {
		return res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.layout(layoutName)
	if err != nil {
		return nil, err
	}
	_, rec, err := l.record(recordID)
	if err != nil {
		return nil, err
	}
	if modificationID != "" && modificationID != strconv.Itoa(rec.modID) {
		return nil, &connection.StoreError{
			Code:    constants.CodeModIDMismatch,
			Message: "Record modification ID does not match",
		}
	}
	for k := range fields {
		if !slices.Contains(l.fields, k) {
			return nil, fieldMissing(k)
		}
	}
	for k, v := range fields {
		rec.fields[k] = fieldValues(v)
	}
	rec.modID++
	return &connection.Result{Records: []*connection.Record{toRecord(l, rec)}, FoundCount: 1}, nil
}

// Delete implements connection.Store.
func (s *Store) Delete(ctx context.Context, layoutName, recordID string) (*connection.Result, error) {
	call := Call{Operation: OpDelete, Layout: layoutName, RecordID: recordID}
	if res, done, err := s.intercept(ctx, call); done {
		return res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.layout(layoutName)
	if err != nil {
		return nil, err
	}
	i, _, err := l.record(recordID)
	if err != nil {
		return nil, err
	}
	l.records = slices.Delete(l.records, i, i+1)
	return &connection.Result{}, nil
}

// UploadContainer implements connection.ContainerUploader. The field afterwards holds a
// URL that DownloadContainer serves the data from.
func (s *Store) UploadContainer(ctx context.Context, layoutName, recordID, field, filename string, data []byte) (string, error) {
	call := Call{Operation: OpUpload, Layout: layoutName, RecordID: recordID, Fields: map[string]any{field: filename}}
	if _, done, err := s.intercept(ctx, call); done {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.layout(layoutName)
	if err != nil {
		return "", err
	}
	_, rec, err := l.record(recordID)
	if err != nil {
		return "", err
	}
	if !slices.Contains(l.fields, field) {
		return "", fieldMissing(field)
	}
	url := fmt.Sprintf("https://fakestore/Streaming/%s/%s/%s/%s", layoutName, recordID, field, filename)
	s.containers[url] = slices.Clone(data)
	rec.fields[field] = []any{url}
	rec.modID++
	return strconv.Itoa(rec.modID), nil
}

// DownloadContainer implements connection.ContainerDownloader.
func (s *Store) DownloadContainer(_ context.Context, url string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.containers[url]
	if !ok {
		return nil, fmt.Errorf("fakestore: no container at %s", url)
	}
	return slices.Clone(data), nil
}

// intercept records call, applies failures and returns the stubbed outcome if any.
func (s *Store) intercept(ctx context.Context, call Call) (*connection.Result, bool, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	failures := slices.Clone(s.globalFailures)
	var stub *StubResponse
	for i := range s.stubResponses {
		if s.stubResponses[i].Matcher.matches(call) {
			stub = &s.stubResponses[i]
			break
		}
	}
	if stub != nil {
		failures = append(failures, stub.Failures...)
	}
	s.mu.Unlock()

	for _, f := range failures {
		if f.Probability < 1 && cryptoRandFloat64() >= f.Probability {
			continue
		}
		switch f.Type {
		case FailureRequestDelay:
			if err := sleep(ctx, f.MinDelay); err != nil {
				return nil, true, err
			}
		case FailureRandomDelay:
			d := f.MinDelay + time.Duration(cryptoRandInt64(int64(f.MaxDelay-f.MinDelay)))
			if err := sleep(ctx, d); err != nil {
				return nil, true, err
			}
		case FailureEmptyResponse:
			return &connection.Result{}, true, nil
		}
	}

	if stub == nil {
		return nil, false, nil
	}
	if stub.Error != nil {
		return nil, true, stub.Error
	}
	if stub.Result != nil {
		return stub.Result, true, nil
	}
	return nil, false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Store) layout(name string) (*layout, error) {
	l, ok := s.layouts[name]
	if !ok {
		return nil, &connection.StoreError{Code: constants.CodeLayoutIsMissing, Message: "Layout is missing"}
	}
	return l, nil
}

func (s *Store) nextID() int {
	id := s.nextRecordID
	s.nextRecordID++
	return id
}

// newRecord stores a record holding every layout field; fields not given are empty.
func (s *Store) newRecord(l *layout, values map[string][]any) (*storedRecord, error) {
	for k := range values {
		if !slices.Contains(l.fields, k) {
			return nil, fieldMissing(k)
		}
	}
	rec := &storedRecord{
		recordID: s.nextID(),
		fields:   map[string][]any{},
		portals:  orderedmap.New[string, []portalRow](),
	}
	for _, f := range l.fields {
		if v, ok := values[f]; ok {
			rec.fields[f] = v
			continue
		}
		rec.fields[f] = []any{""}
	}
	if l.keyName != "" && isEmpty(rec.fields[l.keyName]) {
		key, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		rec.fields[l.keyName] = []any{key.String()}
	}
	l.records = append(l.records, rec)
	return rec, nil
}

func (l *layout) record(recordID string) (int, *storedRecord, error) {
	for i, rec := range l.records {
		if strconv.Itoa(rec.recordID) == recordID {
			return i, rec, nil
		}
	}
	return 0, nil, &connection.StoreError{Code: constants.CodeRecordIsMissing, Message: "Record is missing"}
}

// window sorts found, applies the range and converts the records.
func window(l *layout, found []*storedRecord, rules []connection.SortRule, rng connection.Range) (*connection.Result, error) {
	if len(found) == 0 {
		return nil, &connection.StoreError{Code: constants.CodeNoRecordsMatch, Message: "No records match the request"}
	}
	sorted := slices.Clone(found)
	rules = slices.Clone(rules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Precedence < rules[j].Precedence })
	sort.SliceStable(sorted, func(i, j int) bool {
		for _, r := range rules {
			c := compare(first(sorted[i].fields[r.Field]), first(sorted[j].fields[r.Field]))
			if c == 0 {
				continue
			}
			if r.Order == connection.SortDescend {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	lo := min(rng.Skip, len(sorted))
	hi := len(sorted)
	if rng.Limit != nil {
		hi = min(lo+*rng.Limit, hi)
	}

	res := &connection.Result{FoundCount: len(found)}
	for _, rec := range sorted[lo:hi] {
		res.Records = append(res.Records, toRecord(l, rec))
	}
	return res, nil
}

func toRecord(l *layout, rec *storedRecord) *connection.Record {
	out := connection.NewRecord(strconv.Itoa(rec.recordID), strconv.Itoa(rec.modID))
	for _, f := range l.fields {
		out.SetField(f, slices.Clone(rec.fields[f])...)
	}
	for pair := rec.portals.Oldest(); pair != nil; pair = pair.Next() {
		related := make([]*connection.Record, 0, len(pair.Value))
		for _, row := range pair.Value {
			r := connection.NewRecord(strconv.Itoa(row.recordID), strconv.Itoa(row.modID))
			row.fields.Each(func(key string, value any) bool {
				r.SetField(key, fieldValues(value)...)
				return true
			})
			related = append(related, r)
		}
		out.AddRelatedSet(pair.Key, related...)
	}
	return out
}

func rowFields(row *models.Row) map[string][]any {
	out := map[string][]any{}
	if row == nil {
		return out
	}
	row.Each(func(key string, value any) bool {
		out[key] = fieldValues(value)
		return true
	})
	return out
}

// fieldValues turns a written value into its repetition list.
func fieldValues(v any) []any {
	if rep, ok := v.([]any); ok {
		return slices.Clone(rep)
	}
	if v == nil {
		return []any{""}
	}
	return []any{v}
}

func first(values []any) any {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func isEmpty(values []any) bool {
	for _, v := range values {
		if v != nil && v != "" {
			return false
		}
	}
	return true
}

func fieldMissing(field string) error {
	return &connection.StoreError{Code: constants.CodeFieldIsMissing, Message: "Field is missing: " + strings.TrimSpace(field)}
}
