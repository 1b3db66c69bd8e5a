package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/filemakergo/fmorm"
	"github.com/filemakergo/fmorm/internal/config"
	"github.com/filemakergo/fmorm/pkg/models"
	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cast"
)

// view is what a command prints.
type view struct {
	format  string
	spec    *models.ModelSpec
	portals []string
}

func (a *app) view() view {
	return view{format: a.cfg.Output, spec: a.spec(), portals: a.portals}
}

func (v view) render(ctx context.Context, w io.Writer, found []*fmorm.Model) error {
	if v.format == config.OutputJSON {
		return renderJSON(w, found)
	}
	return v.renderTable(ctx, w, found)
}

func renderJSON(w io.Writer, found []*fmorm.Model) error {
	if found == nil {
		found = []*fmorm.Model{}
	}
	data, err := json.MarshalIndent(found, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// columns lists the fields of all records in first-seen order, without metadata.
func columns(spec *models.ModelSpec, found []*fmorm.Model) []string {
	metaKey := spec.GetMetaKey()
	var cols []string
	for _, m := range found {
		for _, key := range m.Row().Keys() {
			if key != metaKey && !slices.Contains(cols, key) {
				cols = append(cols, key)
			}
		}
	}
	return cols
}

func (v view) renderTable(ctx context.Context, w io.Writer, found []*fmorm.Model) error {
	if len(found) == 0 {
		_, err := fmt.Fprintln(w, "(0 records)")
		return err
	}
	cols := columns(v.spec, found)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := table.Row{"recordId"}
	for _, col := range cols {
		header = append(header, col)
	}
	for _, name := range v.portals {
		header = append(header, name)
	}
	t.AppendHeader(header)

	for _, m := range found {
		row := table.Row{m.Identity().RecordID}
		for _, col := range cols {
			row = append(row, cell(m.Get(col)))
		}
		for _, name := range v.portals {
			children, err := m.Related(ctx, name)
			if err != nil {
				return err
			}
			row = append(row, fmt.Sprintf("%d rows", len(children)))
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d records", len(found))})
	t.Render()
	return nil
}

func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	case []any:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = cell(p)
		}
		return strings.Join(parts, " | ")
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
