package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filemakergo/fmorm/pkg/connection"
	"github.com/spf13/cast"
)

// DateFormat is the layout time values are written in when used as criteria.
const DateFormat = "01/02/2006"

// Request is a translated find: exactly one of Basic and Compound is set.
type Request struct {
	Basic    *connection.FindRequest
	Compound *connection.CompoundFindRequest
}

// IsCompound reports whether the request is an OR of sub-requests.
func (r *Request) IsCompound() bool {
	return r.Compound != nil
}

// Translator turns predicates, sorts and a range into a find request on one layout
// and runs it. A Translator serves a single query.
type Translator struct {
	store  connection.Store
	layout string

	// groupIndex numbers compound sub-requests across the whole query.
	groupIndex int
}

func NewTranslator(store connection.Store, layout string) *Translator {
	return &Translator{store: store, layout: layout}
}

// Translate builds the find request.
//
// Without a top-level "or" every predicate lands in one basic request. Otherwise the
// predicates are split into OR-separated groups, each becoming an AND sub-request of a
// compound request. A nested group with an internal "or" is distributed over its
// enclosing group, which yields one sub-request per alternative.
func (t *Translator) Translate(preds []Predicate, sorts *SortSpec, rng Range) (*Request, error) {
	conjunctions, err := disjuncts(preds)
	if err != nil {
		return nil, err
	}

	req := &Request{}
	var opts interface {
		AddSortRule(field string, precedence int, order connection.SortOrder)
		SetRange(skip int, limit *int)
	}

	if len(conjunctions) > 1 || (len(conjunctions) == 1 && containsOr(preds)) {
		compound := connection.NewCompoundFindRequest(t.layout)
		for _, conj := range conjunctions {
			sub := connection.NewFindRequest(t.layout)
			if err := addCriteria(sub, conj); err != nil {
				return nil, err
			}
			t.groupIndex++
			compound.Add(t.groupIndex, sub)
		}
		req.Compound = compound
		opts = compound
	} else {
		basic := connection.NewFindRequest(t.layout)
		if len(conjunctions) == 1 {
			if err := addCriteria(basic, conjunctions[0]); err != nil {
				return nil, err
			}
		}
		req.Basic = basic
		opts = basic
	}

	if sorts != nil {
		i := 1
		for pair := sorts.fields.Oldest(); pair != nil; pair = pair.Next() {
			opts.AddSortRule(pair.Key, i, pair.Value.order())
			i++
		}
	}
	opts.SetRange(rng.Skip, rng.Limit)

	return req, nil
}

// Execute translates and runs the find. A find that matched nothing returns an empty
// result instead of the store's error.
func (t *Translator) Execute(ctx context.Context, preds []Predicate, sorts *SortSpec, rng Range) (*connection.Result, error) {
	req, err := t.Translate(preds, sorts, rng)
	if err != nil {
		return nil, err
	}

	var res *connection.Result
	if req.IsCompound() {
		res, err = t.store.FindCompound(ctx, req.Compound)
	} else {
		res, err = t.store.Find(ctx, req.Basic)
	}
	if err != nil {
		if errors.Is(err, connection.ErrNoRecordsMatch) {
			return &connection.Result{}, nil
		}
		return nil, fmt.Errorf("find on layout %q: %w", t.layout, err)
	}
	if res == nil {
		res = &connection.Result{}
	}
	return res, nil
}

// disjuncts returns preds in disjunctive normal form: every element is a list of leaf
// predicates that must all hold. Empty groups add no condition, and an alternative made
// of empty groups only is dropped rather than matching every record.
func disjuncts(preds []Predicate) ([][]Predicate, error) {
	var groups [][]Predicate
	for i, p := range preds {
		if i == 0 || p.Boolean == Or {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], p)
	}

	var out [][]Predicate
	for _, group := range groups {
		conj := [][]Predicate{{}}
		for _, p := range group {
			if !p.IsGroup() {
				for i := range conj {
					conj[i] = append(conj[i], p)
				}
				continue
			}

			alts, err := disjuncts(p.Nested)
			if err != nil {
				return nil, err
			}
			if len(alts) == 0 {
				continue
			}
			next := make([][]Predicate, 0, len(conj)*len(alts))
			for _, c := range conj {
				for _, a := range alts {
					merged := make([]Predicate, 0, len(c)+len(a))
					merged = append(merged, c...)
					merged = append(merged, a...)
					next = append(next, merged)
				}
			}
			conj = next
		}
		for _, c := range conj {
			if len(c) > 0 {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func addCriteria(req *connection.FindRequest, preds []Predicate) error {
	for _, p := range preds {
		value, err := criterion(p)
		if err != nil {
			return err
		}
		req.AddFindCriterion(p.Field, value)
	}
	return nil
}

func criterion(p Predicate) (string, error) {
	s, err := stringify(p.Value)
	if err != nil {
		return "", fmt.Errorf("criterion for field %q: %w", p.Field, err)
	}
	if p.Operator == OpLike {
		return s, nil
	}
	op := p.Operator
	if op == "" {
		op = OpEquals
	}
	return op + Escape(s), nil
}

func stringify(v any) (string, error) {
	switch tv := v.(type) {
	case time.Time:
		return tv.Format(DateFormat), nil
	case *time.Time:
		if tv == nil {
			return "", nil
		}
		return tv.Format(DateFormat), nil
	}
	return cast.ToStringE(v)
}
