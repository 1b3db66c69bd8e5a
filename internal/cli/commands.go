package cli

import (
	"fmt"
	"strings"

	"github.com/filemakergo/fmorm"
	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/filemakergo/fmorm/pkg/query"
	"github.com/spf13/cobra"
)

const conditionOperators = "=<>!~"

// condition is a parsed "field<op>value" argument such as "status=open" or "priority>=5".
type condition struct {
	field string
	op    string
	value string
}

func parseCondition(s string) (condition, error) {
	i := strings.IndexAny(s, conditionOperators)
	if i <= 0 {
		return condition{}, fmt.Errorf("%w: condition %q has no field and operator", constants.ErrConfiguration, s)
	}
	j := i
	for j < len(s) && strings.IndexByte(conditionOperators, s[j]) >= 0 {
		j++
	}
	c := condition{field: s[:i], op: s[i:j], value: s[j:]}
	switch c.op {
	case "=":
		c.op = "=="
	case "!=":
		c.op = "<>"
	}
	return c, nil
}

func (c condition) apply(b *fmorm.Builder, or bool) {
	switch {
	case c.op == "==" && or:
		b.OrWhere(c.field, c.value)
	case c.op == "==":
		b.Where(c.field, c.value)
	case c.op == "~" && or:
		b.OrWhereLike(c.field, c.value)
	case c.op == "~":
		b.WhereLike(c.field, c.value)
	case or:
		b.OrWhereOp(c.field, c.op, c.value)
	default:
		b.WhereOp(c.field, c.op, c.value)
	}
}

// clause is one --where or --or argument, kept in command-line order.
type clause struct {
	raw string
	or  bool
}

// clauseFlag appends to a list shared by --where and --or so that the conditions
// are applied in the order they were given.
type clauseFlag struct {
	list *[]clause
	or   bool
}

func (f *clauseFlag) Set(v string) error {
	*f.list = append(*f.list, clause{raw: v, or: f.or})
	return nil
}

func (f *clauseFlag) Type() string { return "stringArray" }

func (f *clauseFlag) String() string {
	var vals []string
	if f.list != nil {
		for _, c := range *f.list {
			if c.or == f.or {
				vals = append(vals, c.raw)
			}
		}
	}
	return "[" + strings.Join(vals, ",") + "]"
}

// parseSort reads "field" or "field:desc".
func parseSort(s string) (string, query.Direction) {
	field, dir, _ := strings.Cut(s, ":")
	return field, query.ParseDirection(dir)
}

func newFindCmd(a *app) *cobra.Command {
	var (
		clauses []clause
		sorts   []string
		skip  int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find records of a layout",
		Example: `  fmquery find -l Tasks --where status=open --or status=blocked --sort priority:desc
  fmquery find -l Tasks --where status=open --or status=blocked --where "priority>=5"
  fmquery find -l Tasks --where "priority>=5" --where "title~Rev*" --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := a.db.Query(a.spec()).With(a.portals...).Skip(skip).Limit(limit)
			for _, cl := range clauses {
				c, err := parseCondition(cl.raw)
				if err != nil {
					return err
				}
				c.apply(b, cl.or)
			}
			for _, s := range sorts {
				b.OrderBy(parseSort(s))
			}

			found, err := b.Get(cmd.Context())
			if err != nil {
				return err
			}
			return a.view().render(cmd.Context(), cmd.OutOrStdout(), found)
		},
	}
	f := cmd.Flags()
	f.VarP(&clauseFlag{list: &clauses}, "where", "w", "condition joined with AND to the current group, e.g. status=open (repeatable)")
	f.Var(&clauseFlag{list: &clauses, or: true}, "or", "condition starting a new OR group; later --where conditions join it (repeatable)")
	f.StringArrayVarP(&sorts, "sort", "s", nil, "sort field, optionally field:desc (repeatable)")
	f.IntVar(&skip, "skip", 0, "records to skip")
	f.IntVar(&limit, "limit", -1, "maximum records to return, -1 for all")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Show the record with the given primary key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.db.Query(a.spec()).With(a.portals...).Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.view().render(cmd.Context(), cmd.OutOrStdout(), []*fmorm.Model{m})
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "set KEY FIELD=VALUE...",
		Short:   "Update fields of the record with the given primary key",
		Example: `  fmquery set -l Tasks t1 status=done "title=Final report"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.db.Query(a.spec()).Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, arg := range args[1:] {
				field, value, ok := strings.Cut(arg, "=")
				if !ok || field == "" {
					return fmt.Errorf("%w: assignment %q is not FIELD=VALUE", constants.ErrConfiguration, arg)
				}
				if err := m.Set(field, value); err != nil {
					return err
				}
			}
			if err := m.Save(cmd.Context()); err != nil {
				return err
			}
			return a.view().render(cmd.Context(), cmd.OutOrStdout(), []*fmorm.Model{m})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete the record with the given primary key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.db.Query(a.spec()).Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := m.Delete(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted record %s\n", m.Identity().RecordID)
			return err
		},
	}
}
