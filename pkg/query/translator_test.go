package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filemakergo/fmorm/internal/fakestore"
	"github.com/filemakergo/fmorm/pkg/connection"
	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/filemakergo/fmorm/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOp(t *testing.T, field, op string, value any) Predicate {
	t.Helper()
	p, err := Op(field, op, value)
	require.NoError(t, err)
	return p
}

func criteria(req *connection.FindRequest) map[string]string {
	out := map[string]string{}
	for _, c := range req.Criteria {
		out[c.Field] = c.Value
	}
	return out
}

func TestTranslateBasic(t *testing.T) {
	tr := NewTranslator(nil, "Tasks")
	req, err := tr.Translate([]Predicate{
		Eq("status", "open"),
		mustOp(t, "priority", ">", 3),
		Like("title", "Rep*"),
	}, nil, NewRange(0, -1))
	require.NoError(t, err)

	require.False(t, req.IsCompound())
	assert.Equal(t, "Tasks", req.Basic.Layout)
	assert.Equal(t, map[string]string{
		"status":   "==open",
		"priority": ">3",
		"title":    "Rep*",
	}, criteria(req.Basic))
	assert.Nil(t, req.Basic.Range.Limit)
	assert.Empty(t, req.Basic.SortRules)
}

func TestTranslateCompound(t *testing.T) {
	cases := []struct {
		name   string
		preds  []Predicate
		groups []map[string]string
	}{
		{
			name: "or of two",
			preds: []Predicate{
				Eq("status", "open"),
				Eq("status", "blocked").WithBoolean(Or),
			},
			groups: []map[string]string{
				{"status": "==open"},
				{"status": "==blocked"},
			},
		},
		{
			name: "and binds tighter than or",
			preds: []Predicate{
				Eq("status", "open"),
				Eq("owner", "ann"),
				Eq("status", "blocked").WithBoolean(Or),
			},
			groups: []map[string]string{
				{"status": "==open", "owner": "==ann"},
				{"status": "==blocked"},
			},
		},
		{
			name: "nested or is distributed",
			preds: []Predicate{
				Eq("owner", "ann"),
				Group(Eq("status", "open"), Eq("status", "done").WithBoolean(Or)),
			},
			groups: []map[string]string{
				{"owner": "==ann", "status": "==open"},
				{"owner": "==ann", "status": "==done"},
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req, err := NewTranslator(nil, "Tasks").Translate(c.preds, nil, NewRange(0, -1))
			require.NoError(t, err)
			require.True(t, req.IsCompound())

			subs := req.Compound.SubRequests()
			require.Len(t, subs, len(c.groups))
			for i, g := range c.groups {
				assert.Equal(t, g, criteria(subs[i]))
			}
		})
	}
}

func TestTranslateNestedAndStaysBasic(t *testing.T) {
	req, err := NewTranslator(nil, "Tasks").Translate([]Predicate{
		Eq("owner", "ann"),
		Group(Eq("status", "open"), Eq("priority", 1)),
	}, nil, NewRange(0, -1))
	require.NoError(t, err)
	require.False(t, req.IsCompound())
	assert.Len(t, req.Basic.Criteria, 3)
}

// alternatives lists the criteria of every sub-request, or of the basic request when it
// has any.
func alternatives(req *Request) []map[string]string {
	if !req.IsCompound() {
		if len(req.Basic.Criteria) == 0 {
			return nil
		}
		return []map[string]string{criteria(req.Basic)}
	}
	var out []map[string]string
	for _, sub := range req.Compound.SubRequests() {
		out = append(out, criteria(sub))
	}
	return out
}

func TestTranslateDropsEmptyGroups(t *testing.T) {
	cases := []struct {
		name  string
		preds []Predicate
		want  []map[string]string
	}{
		{
			name:  "or with empty group",
			preds: []Predicate{Eq("status", "open"), Group().WithBoolean(Or)},
			want:  []map[string]string{{"status": "==open"}},
		},
		{
			name:  "empty group before or",
			preds: []Predicate{Group(), Eq("status", "blocked").WithBoolean(Or)},
			want:  []map[string]string{{"status": "==blocked"}},
		},
		{
			name:  "group of empty groups",
			preds: []Predicate{Eq("status", "open"), Group(Group(), Group().WithBoolean(Or)).WithBoolean(Or)},
			want:  []map[string]string{{"status": "==open"}},
		},
		{
			name:  "only empty groups",
			preds: []Predicate{Group(), Group().WithBoolean(Or)},
			want:  nil,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req, err := NewTranslator(nil, "Tasks").Translate(c.preds, nil, NewRange(0, -1))
			require.NoError(t, err)
			assert.Equal(t, c.want, alternatives(req))
			if req.IsCompound() {
				for _, sub := range req.Compound.SubRequests() {
					assert.NotEmpty(t, sub.Criteria)
				}
			}
		})
	}
}

func TestTranslateGroupIndexIsGlobal(t *testing.T) {
	req, err := NewTranslator(nil, "Tasks").Translate([]Predicate{
		Eq("a", 1),
		Eq("b", 2).WithBoolean(Or),
		Eq("c", 3).WithBoolean(Or),
	}, nil, NewRange(0, -1))
	require.NoError(t, err)

	var keys []int
	for pair := req.Compound.Requests.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []int{1, 2, 3}, keys)
}

func TestTranslateSortAndRange(t *testing.T) {
	sorts := NewSortSpec().
		Add("priority", Descending).
		Add("title", Ascending).
		Add("priority", Ascending)

	req, err := NewTranslator(nil, "Tasks").Translate(nil, sorts, NewRange(20, 10))
	require.NoError(t, err)
	require.False(t, req.IsCompound())
	assert.Empty(t, req.Basic.Criteria)
	assert.Equal(t, []connection.SortRule{
		{Field: "priority", Precedence: 1, Order: connection.SortAscend},
		{Field: "title", Precedence: 2, Order: connection.SortAscend},
	}, req.Basic.SortRules)
	assert.Equal(t, 20, req.Basic.Range.Skip)
	require.NotNil(t, req.Basic.Range.Limit)
	assert.Equal(t, 10, *req.Basic.Range.Limit)
}

func TestCriterionValues(t *testing.T) {
	day := time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		pred Predicate
		want string
	}{
		{Eq("n", 42), "==42"},
		{Eq("n", 1.5), "==1.5"},
		{Eq("b", true), "==true"},
		{Eq("d", day), "==03/07/2024"},
		{Eq("e", "x@y"), `==x\@y`},
		{Like("e", "x@y"), "x@y"},
		{Null("e"), "="},
		{NotNull("e"), "*"},
		{Predicate{Field: "f", Value: "v"}, "==v"},
	}
	for _, c := range cases {
		got, err := criterion(c.pred)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, c.pred.Field)
	}
}

func TestOpRejectsUnknownOperator(t *testing.T) {
	_, err := Op("a", "between", 1)
	assert.ErrorIs(t, err, constants.ErrInvalidOperator)

	p, err := Op("a", "LIKE", "x*")
	require.NoError(t, err)
	assert.Equal(t, OpLike, p.Operator)
}

func TestParseDirection(t *testing.T) {
	assert.Equal(t, Descending, ParseDirection("DESC"))
	assert.Equal(t, Descending, ParseDirection("descend"))
	assert.Equal(t, Ascending, ParseDirection("asc"))
	assert.Equal(t, Ascending, ParseDirection(""))
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	store := fakestore.New()
	store.DefineLayout("Tasks", "", "status", "priority")
	for _, r := range []*models.Row{
		models.RowFromPairs("status", "open", "priority", 1),
		models.RowFromPairs("status", "blocked", "priority", 7),
		models.RowFromPairs("status", "done", "priority", 3),
	} {
		_, err := store.Seed("Tasks", r, nil)
		require.NoError(t, err)
	}

	t.Run("tasks scenario", func(t *testing.T) {
		res, err := NewTranslator(store, "Tasks").Execute(ctx,
			[]Predicate{Eq("status", "open"), Eq("status", "blocked").WithBoolean(Or)},
			NewSortSpec().Add("priority", Descending),
			NewRange(0, 10))
		require.NoError(t, err)
		require.Equal(t, 2, res.FetchCount())
		status, _ := res.Records[0].Field("status")
		assert.Equal(t, []any{"blocked"}, status)
	})

	t.Run("no records match is empty", func(t *testing.T) {
		res, err := NewTranslator(store, "Tasks").Execute(ctx,
			[]Predicate{Eq("status", "archived")}, nil, NewRange(0, -1))
		require.NoError(t, err)
		assert.Equal(t, 0, res.FetchCount())
	})

	t.Run("other store errors surface", func(t *testing.T) {
		failing := fakestore.New()
		failing.AddStubResponse(fakestore.ErrorStubResponse(fakestore.OpFind, 802, "Unable to open file"))

		_, err := NewTranslator(failing, "Tasks").Execute(ctx, nil, nil, NewRange(0, -1))
		var se *connection.StoreError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 802, se.Code)
	})
}
