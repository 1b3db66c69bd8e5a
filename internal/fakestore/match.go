package fakestore

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/filemakergo/fmorm/pkg/connection"
	"github.com/spf13/cast"
)

// operators in the order they are recognized at the start of a criterion.
var operators = []string{"==", "<=", ">=", "<>", "≠", "≤", "≥", "=", "<", ">", "~"}

var unescaper = strings.NewReplacer(
	`\"\"`, `""`,
	`\/\/`, `//`,
	`\@`, `@`,
	`\#`, `#`,
	`\?`, `?`,
	`\*`, `*`,
)

func matchAll(rec *storedRecord, criteria []connection.Criterion) (bool, error) {
	for _, c := range criteria {
		values, ok := rec.fields[c.Field]
		if !ok {
			return false, fieldMissing(c.Field)
		}
		if !matchField(values, c.Value) {
			return false, nil
		}
	}
	return true, nil
}

// matchField reports whether any repetition of a field satisfies criterion.
func matchField(values []any, criterion string) bool {
	op, operand := splitOperator(criterion)
	if len(values) == 0 {
		values = []any{""}
	}
	for _, v := range values {
		if matchValue(cast.ToString(v), op, operand) {
			return true
		}
	}
	return false
}

func splitOperator(criterion string) (string, string) {
	for _, op := range operators {
		if strings.HasPrefix(criterion, op) {
			return op, criterion[len(op):]
		}
	}
	return "", criterion
}

func matchValue(s, op, operand string) bool {
	switch op {
	case "":
		return matchPattern(s, operand)
	case "==":
		return compare(s, unescaper.Replace(operand)) == 0
	case "~":
		return strings.EqualFold(s, unescaper.Replace(operand))
	case "=":
		operand = unescaper.Replace(operand)
		if operand == "" {
			return s == ""
		}
		return matchWords(s, operand)
	case "<>", "≠":
		return compare(s, unescaper.Replace(operand)) != 0
	}
	if s == "" {
		return false
	}
	c := compare(s, unescaper.Replace(operand))
	switch op {
	case "<":
		return c < 0
	case ">":
		return c > 0
	case "<=", "≤":
		return c <= 0
	case ">=", "≥":
		return c >= 0
	}
	return false
}

// matchWords reports whether every word of operand is a word of s.
func matchWords(s, operand string) bool {
	words := strings.Fields(strings.ToLower(s))
	for _, w := range strings.Fields(strings.ToLower(operand)) {
		found := false
		for _, sw := range words {
			if sw == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// matchPattern implements unprefixed criteria: "*" finds any value, wildcards "*", "@"
// and "#" match anywhere, and a plain value finds words starting with it.
func matchPattern(s, pattern string) bool {
	if pattern == "*" {
		return s != ""
	}
	re, wild := patternRegexp(pattern)
	if wild {
		return re.MatchString(s)
	}
	plain := strings.ToLower(unescaper.Replace(pattern))
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if strings.HasPrefix(w, plain) {
			return true
		}
	}
	return plain == ""
}

func patternRegexp(pattern string) (*regexp.Regexp, bool) {
	var b strings.Builder
	b.WriteString(`(?i)(^|\s)`)
	wild := false
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes):
			i++
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		case r == '*':
			wild = true
			b.WriteString(".*")
		case r == '@':
			wild = true
			b.WriteString(".")
		case r == '#':
			wild = true
			b.WriteString("[0-9]")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if !wild {
		return nil, false
	}
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, false
	}
	return re, true
}

// compare orders values numerically when both are numbers and case-insensitively
// otherwise.
func compare(a, b any) int {
	as, bs := cast.ToString(a), cast.ToString(b)
	af, aerr := strconv.ParseFloat(as, 64)
	bf, berr := strconv.ParseFloat(bs, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(as), strings.ToLower(bs))
}
