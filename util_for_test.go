package fmorm

import (
	"testing"

	"github.com/filemakergo/fmorm/internal/fakestore"
	"github.com/filemakergo/fmorm/pkg/models"
	"github.com/stretchr/testify/require"
)

var (
	authorSpec = &models.ModelSpec{
		Layout:  "Authors",
		KeyName: "id",
	}

	noteSpec = &models.ModelSpec{
		Layout:  "Notes",
		KeyName: "id",
		Relations: map[string]models.Relation{
			"author": {Table: "Authors", Model: authorSpec, Cardinality: models.One},
		},
	}

	projectSpec = &models.ModelSpec{
		Layout:  "Projects",
		KeyName: "id",
	}

	taskSpec = &models.ModelSpec{
		Layout:           "Tasks",
		KeyName:          "id",
		RepetitionFields: []string{"tags"},
		ContainerFields:  []string{"attachment"},
		Relations: map[string]models.Relation{
			"notes":   {Table: "Notes", Model: noteSpec, Cardinality: models.Many},
			"project": {Table: "Projects", Model: projectSpec, Cardinality: models.One},
		},
	}
)

// newTestStore returns a store holding three tasks; t1 has two notes and a project.
func newTestStore(t *testing.T) *fakestore.Store {
	t.Helper()

	s := fakestore.New()
	s.DefineLayout("Tasks", "id", "id", "title", "status", "priority", "tags", "attachment")

	_, err := s.Seed("Tasks",
		models.RowFromPairs("id", "t1", "title", "Write report", "status", "open", "priority", 2, "tags", []any{"work", "", ""}),
		map[string][]*models.Row{
			"Notes": {
				models.RowFromPairs("Notes::id", "n1", "Notes::text", "first draft"),
				models.RowFromPairs("Notes::id", "n2", "Notes::text", "sent"),
			},
			"Projects": {
				models.RowFromPairs("Projects::id", "p1", "Projects::name", "Apollo"),
			},
		})
	require.NoError(t, err)

	_, err = s.Seed("Tasks",
		models.RowFromPairs("id", "t2", "title", "Review code", "status", "blocked", "priority", 5, "tags", []any{"work", "urgent"}),
		nil)
	require.NoError(t, err)

	_, err = s.Seed("Tasks",
		models.RowFromPairs("id", "t3", "title", "Deploy", "status", "done", "priority", 9),
		nil)
	require.NoError(t, err)

	return s
}
