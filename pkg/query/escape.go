package query

import "strings"

// escaper prefixes the characters the find syntax gives a meaning to.
// Multi-character sequences come first so "//" is not split.
var escaper = strings.NewReplacer(
	`""`, `\"\"`,
	`//`, `\/\/`,
	`@`, `\@`,
	`#`, `\#`,
	`?`, `\?`,
	`*`, `\*`,
)

// Escape makes s safe to use as a literal find criterion value.
// It must be applied exactly once, when a value is turned into a criterion.
func Escape(s string) string {
	return escaper.Replace(s)
}
