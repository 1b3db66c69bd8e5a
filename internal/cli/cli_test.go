package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/filemakergo/fmorm"
	"github.com/filemakergo/fmorm/internal/config"
	"github.com/filemakergo/fmorm/internal/fakestore"
	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/filemakergo/fmorm/pkg/models"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CLITestSuite struct {
	suite.Suite
	store *fakestore.Store
}

func TestCLITestSuite(t *testing.T) {
	suite.Run(t, new(CLITestSuite))
}

func (s *CLITestSuite) SetupTest() {
	s.T().Chdir(s.T().TempDir())

	s.store = fakestore.New()
	s.store.DefineLayout("Tasks", "id", "id", "title", "status", "priority")
	for _, row := range []*models.Row{
		models.RowFromPairs("id", "t1", "title", "Write report", "status", "open", "priority", 2),
		models.RowFromPairs("id", "t2", "title", "Review code", "status", "blocked", "priority", 5),
		models.RowFromPairs("id", "t3", "title", "Deploy", "status", "done", "priority", 9),
	} {
		var portals map[string][]*models.Row
		if v, _ := row.Get("id"); v == "t1" {
			portals = map[string][]*models.Row{"Notes": {
				models.RowFromPairs("Notes::id", "n1", "Notes::text", "first draft"),
			}}
		}
		_, err := s.store.Seed("Tasks", row, portals)
		s.Require().NoError(err)
	}
}

func (s *CLITestSuite) run(args ...string) (string, error) {
	open := func(context.Context, *config.Config) (*fmorm.DB, error) {
		return fmorm.New(s.store), nil
	}
	var out, errOut bytes.Buffer
	err := Run(context.Background(), open, args, &out, &errOut)
	return out.String(), err
}

func (s *CLITestSuite) TestFindTable() {
	out, err := s.run("find", "-l", "Tasks", "--where", "priority>=5", "--sort", "priority:desc")
	s.Require().NoError(err)
	s.Contains(out, "Deploy")
	s.Contains(out, "Review code")
	s.NotContains(out, "Write report")
	s.Contains(strings.ToLower(out), "2 records")
	s.Less(strings.Index(out, "Deploy"), strings.Index(out, "Review code"))
}

func (s *CLITestSuite) TestFindJSONWithOr() {
	out, err := s.run("find", "-l", "Tasks", "-o", "json",
		"--where", "status=open", "--or", "status=blocked", "--sort", "priority")
	s.Require().NoError(err)

	var found []map[string]any
	s.Require().NoError(json.Unmarshal([]byte(out), &found))
	s.Require().Len(found, 2)
	s.Equal("Write report", found[0]["title"])
	s.Equal("Review code", found[1]["title"])

	calls := s.store.Calls()
	s.Require().Len(calls, 1)
	s.Equal(fakestore.OpFindCompound, calls[0].Operation)
}

func (s *CLITestSuite) TestFindKeepsConditionOrder() {
	out, err := s.run("find", "-l", "Tasks", "-o", "json",
		"--where", "status=open", "--or", "status=blocked", "--where", "priority>=5", "--sort", "priority")
	s.Require().NoError(err)

	var found []map[string]any
	s.Require().NoError(json.Unmarshal([]byte(out), &found))
	s.Require().Len(found, 2)
	s.Equal("Write report", found[0]["title"])
	s.Equal("Review code", found[1]["title"])

	out, err = s.run("find", "-l", "Tasks", "-o", "json",
		"--or", "status=done", "--where", "priority<5")
	s.Require().NoError(err)
	found = nil
	s.Require().NoError(json.Unmarshal([]byte(out), &found))
	s.Empty(found)
}

func (s *CLITestSuite) TestFindNothing() {
	out, err := s.run("find", "-l", "Tasks", "--where", "status=archived")
	s.Require().NoError(err)
	s.Contains(out, "(0 records)")

	out, err = s.run("find", "-l", "Tasks", "-o", "json", "--where", "status=archived")
	s.Require().NoError(err)
	s.JSONEq("[]", out)
}

func (s *CLITestSuite) TestGetWithPortal() {
	out, err := s.run("get", "t1", "-l", "Tasks", "-p", "Notes", "-o", "json")
	s.Require().NoError(err)

	var found []map[string]any
	s.Require().NoError(json.Unmarshal([]byte(out), &found))
	s.Require().Len(found, 1)
	notes, ok := found[0]["Notes"].([]any)
	s.Require().True(ok)
	s.Require().Len(notes, 1)
	s.Equal("first draft", notes[0].(map[string]any)["text"])
	s.Len(s.store.Calls(), 1)
}

func (s *CLITestSuite) TestGetMissing() {
	_, err := s.run("get", "t9", "-l", "Tasks")
	s.ErrorIs(err, fmorm.ErrNoRecord)
}

func (s *CLITestSuite) TestSet() {
	out, err := s.run("set", "t2", "status=open", "title=Review tests", "-l", "Tasks")
	s.Require().NoError(err)
	s.Contains(out, "Review tests")

	calls := s.store.Calls()
	last := calls[len(calls)-1]
	s.Equal(fakestore.OpEdit, last.Operation)
	s.Equal(map[string]any{"status": "open", "title": "Review tests"}, last.Fields)

	_, err = s.run("set", "t2", "status", "-l", "Tasks")
	s.ErrorIs(err, constants.ErrConfiguration)
}

func (s *CLITestSuite) TestDelete() {
	out, err := s.run("delete", "t3", "-l", "Tasks")
	s.Require().NoError(err)
	s.Equal("deleted record 3\n", out)
	s.Equal(2, s.store.Count("Tasks"))
}

func (s *CLITestSuite) TestInvalidCondition() {
	_, err := s.run("find", "-l", "Tasks", "--where", "status")
	s.ErrorIs(err, constants.ErrConfiguration)

	_, err = s.run("find", "-l", "Tasks", "--where", "priority%%1")
	s.ErrorIs(err, constants.ErrConfiguration)
}

func TestParseCondition(t *testing.T) {
	cases := []struct {
		in   string
		want condition
	}{
		{"status=open", condition{"status", "==", "open"}},
		{"priority>=5", condition{"priority", ">=", "5"}},
		{"priority<5", condition{"priority", "<", "5"}},
		{"status!=done", condition{"status", "<>", "done"}},
		{"title~Rev*", condition{"title", "~", "Rev*"}},
		{"note=a=b", condition{"note", "==", "a=b"}},
		{"empty=", condition{"empty", "==", ""}},
	}
	for _, c := range cases {
		got, err := parseCondition(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, err := parseCondition("=open")
	assert.ErrorIs(t, err, constants.ErrConfiguration)
}

func TestCell(t *testing.T) {
	assert.Equal(t, "", cell(nil))
	assert.Equal(t, "5", cell(5))
	assert.Equal(t, "a | b", cell([]any{"a", "b"}))
	assert.Equal(t, "https://host/f", cell(&models.ContainerField{URL: "https://host/f"}))
}
