package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscape(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a@b.com", `a\@b.com`},
		{"#1", `\#1`},
		{"why?", `why\?`},
		{"5*", `5\*`},
		{`say ""hi""`, `say \"\"hi\"\"`},
		{"http://x", `http:\/\/x`},
		{`a "quote"`, `a "quote"`},
		{"a/b", "a/b"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Escape(c.in), c.in)
	}
}
