package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/filemakergo/fmorm/pkg/constants"
)

// Boolean joins a predicate to the ones before it.
type Boolean string

const (
	And Boolean = "and"
	Or  Boolean = "or"
)

// Find operators.
const (
	// OpEquals is the exact-match operator and the default of value-only predicates.
	OpEquals = "=="
	// OpMatchWord matches whole words; it is not interchangeable with OpEquals.
	OpMatchWord = "="
	// OpLike passes the value through as raw find syntax, unescaped.
	OpLike = "like"
	// OpAny matches any non-empty value.
	OpAny = "*"
)

var operators = []string{
	"=", "==", "<", ">", "<=", ">=", "<>", "≠", "≤", "≥", "!", "~", `""`, `*""`, OpLike,
}

// ValidOperator reports whether op can be used in a predicate.
func ValidOperator(op string) bool {
	return slices.Contains(operators, strings.ToLower(op))
}

// Predicate is a field condition, or a group of predicates when Nested is non-nil.
type Predicate struct {
	Field    string
	Operator string
	Value    any
	Boolean  Boolean
	Nested   []Predicate
}

// Eq returns a value-only predicate; it uses the exact-match operator.
func Eq(field string, value any) Predicate {
	return Predicate{Field: field, Operator: OpEquals, Value: value, Boolean: And}
}

// Op returns a predicate with an explicit operator.
func Op(field, op string, value any) (Predicate, error) {
	if !ValidOperator(op) {
		return Predicate{}, fmt.Errorf("%w: %q", constants.ErrInvalidOperator, op)
	}
	return Predicate{Field: field, Operator: strings.ToLower(op), Value: value, Boolean: And}, nil
}

// Like returns a predicate whose value is raw find syntax.
func Like(field, pattern string) Predicate {
	return Predicate{Field: field, Operator: OpLike, Value: pattern, Boolean: And}
}

// Null matches records where field is empty.
func Null(field string) Predicate {
	return Predicate{Field: field, Operator: OpMatchWord, Boolean: And}
}

// NotNull matches records where field has any value.
func NotNull(field string) Predicate {
	return Predicate{Field: field, Operator: OpAny, Boolean: And}
}

// Group returns a nested group of predicates.
func Group(preds ...Predicate) Predicate {
	if preds == nil {
		preds = []Predicate{}
	}
	return Predicate{Nested: preds, Boolean: And}
}

// WithBoolean returns a copy of p joined by b.
func (p Predicate) WithBoolean(b Boolean) Predicate {
	p.Boolean = b
	return p
}

// IsGroup reports whether p is a nested group.
func (p Predicate) IsGroup() bool {
	return p.Nested != nil
}

// containsOr reports whether an "or" joins two predicates; the boolean of the first
// predicate joins nothing.
func containsOr(preds []Predicate) bool {
	for i, p := range preds {
		if i > 0 && p.Boolean == Or {
			return true
		}
	}
	return false
}
