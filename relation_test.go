package fmorm

import (
	"context"
	"testing"

	"github.com/filemakergo/fmorm/internal/fakestore"
	"github.com/filemakergo/fmorm/pkg/connection"
	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/suite"
)

type RelationTestSuite struct {
	suite.Suite
	store *fakestore.Store
	db    *DB
}

func TestRelationTestSuite(t *testing.T) {
	suite.Run(t, new(RelationTestSuite))
}

func (s *RelationTestSuite) SetupTest() {
	s.store = newTestStore(s.T())
	s.db = New(s.store)
}

func (s *RelationTestSuite) TestEagerLoad() {
	ctx := context.Background()

	m, err := s.db.Query(taskSpec).With("notes", "project", "unknown").Find(ctx, "t1")
	s.Require().NoError(err)
	s.True(m.RelationLoaded("notes"))
	s.True(m.RelationLoaded("project"))
	s.Empty(m.Meta().RelatedNames(), "bound relations are consumed")

	notes, err := m.Related(ctx, "notes")
	s.Require().NoError(err)
	s.Require().Len(notes, 2)
	s.Equal("n1", notes[0].Get("id"))
	s.Equal("first draft", notes[0].Get("text"))
	s.Equal("sent", notes[1].Get("text"))
	s.Equal("Notes", notes[0].RelatedTable())
	s.Equal("1", notes[0].Identity().RecordID)

	project, err := m.RelatedOne(ctx, "project")
	s.Require().NoError(err)
	s.Require().NotNil(project)
	s.Equal("Apollo", project.Get("name"))

	s.Len(s.store.Calls(), 1, "eager relations need no extra round trip")
}

func (s *RelationTestSuite) TestEmptyPortal() {
	ctx := context.Background()

	m, err := s.db.Query(taskSpec).With("notes").Find(ctx, "t2")
	s.Require().NoError(err)

	notes, err := m.Related(ctx, "notes")
	s.Require().NoError(err)
	s.Empty(notes)
	s.Len(s.store.Calls(), 1)
}

func (s *RelationTestSuite) TestLazyLoad() {
	ctx := context.Background()

	m, err := s.db.Query(taskSpec).Find(ctx, "t1")
	s.Require().NoError(err)
	s.False(m.RelationLoaded("notes"))

	notes, err := m.Related(ctx, "notes")
	s.Require().NoError(err)
	s.Len(notes, 2)

	calls := s.store.Calls()
	s.Require().Len(calls, 2)
	s.Equal([]connection.Criterion{{Field: "id", Value: "==t1"}}, calls[1].Find.Criteria)

	// bound now
	_, err = m.Related(ctx, "notes")
	s.Require().NoError(err)
	s.Len(s.store.Calls(), 2)
}

func (s *RelationTestSuite) TestResolveAfterMatchRefetches() {
	ctx := context.Background()

	m, err := s.db.Query(taskSpec).With("notes").Find(ctx, "t1")
	s.Require().NoError(err)

	notes, err := s.db.Resolver().Resolve(ctx, m, "notes")
	s.Require().NoError(err)
	s.Len(notes, 2)
	s.Len(s.store.Calls(), 2, "consumed rows are fetched again")
}

func (s *RelationTestSuite) TestUnknownRelation() {
	m, err := s.db.Query(taskSpec).Find(context.Background(), "t1")
	s.Require().NoError(err)

	_, err = m.Related(context.Background(), "owner")
	s.ErrorIs(err, ErrUnknownRelation)
}

func (s *RelationTestSuite) TestLazyLoadWithoutKey() {
	m := s.db.NewModel(taskSpec)
	_, err := m.Related(context.Background(), "notes")
	s.ErrorIs(err, ErrMissingPrimaryKey)
	s.Empty(s.store.Calls())
}

func (s *RelationTestSuite) TestNestedEagerLoad() {
	rec := connection.NewRecord("1", "3").
		SetField("id", "t1").
		SetField("title", "Write report")
	rec.AddRelatedSet("Notes",
		connection.NewRecord("10", "0").
			SetField("Notes::id", "n1").
			SetField("Notes::text", "draft").
			AddRelatedSet("Authors", connection.NewRecord("20", "0").SetField("Authors::name", "Ada")),
		connection.NewRecord("11", "0").
			SetField("Notes::id", "n2").
			SetField("Notes::text", "final"),
	)
	s.store.AddStubResponse(fakestore.StubResponse{
		Matcher: fakestore.RequestMatcher{Operation: fakestore.OpFind, Layout: "Tasks"},
		Result:  &connection.Result{Records: []*connection.Record{rec}, FoundCount: 1},
	})

	found, err := s.db.Query(taskSpec).With("notes.author").Get(context.Background())
	s.Require().NoError(err)
	s.Require().Len(found, 1)

	notes, err := found[0].Related(context.Background(), "notes")
	s.Require().NoError(err)
	s.Require().Len(notes, 2)

	author, err := notes[0].RelatedOne(context.Background(), "author")
	s.Require().NoError(err)
	s.Require().NotNil(author)
	s.Equal("Ada", author.Get("name"))
	s.Equal("Authors", author.RelatedTable())

	s.True(notes[1].RelationLoaded("author"))
	none, err := notes[1].RelatedOne(context.Background(), "author")
	s.Require().NoError(err)
	s.Nil(none)
}

func (s *RelationTestSuite) TestFieldMismatch() {
	rec := connection.NewRecord("1", "0").SetField("id", "t1")
	rec.AddRelatedSet("Notes",
		connection.NewRecord("10", "0").SetField("Notes::id", "n1").SetField("Notes::text", "a"),
		connection.NewRecord("11", "0").SetField("Notes::id", "n2"),
	)
	s.store.AddStubResponse(fakestore.StubResponse{
		Matcher: fakestore.RequestMatcher{Operation: fakestore.OpFind},
		Result:  &connection.Result{Records: []*connection.Record{rec}, FoundCount: 1},
	})

	_, err := s.db.Query(taskSpec).With("notes").Get(context.Background())
	s.ErrorIs(err, constants.ErrRelatedFieldMismatch)
}

func (s *RelationTestSuite) TestRelatedRowsKeepFieldOrder() {
	rows, err := s.db.Query(taskSpec).With("notes").Where("id", "t1").Rows(context.Background())
	s.Require().NoError(err)
	s.Require().Len(rows, 1)

	related, ok := rows[0].Meta(constants.DefaultMetaKey).RelatedRows("notes")
	s.Require().True(ok)
	s.Require().Len(related, 2)

	want := []string{"Notes::id", "Notes::text", constants.DefaultMetaKey}
	if diff := cmp.Diff(want, related[0].Keys()); diff != "" {
		s.T().Errorf("related row keys mismatch (-want +got):\n%s", diff)
	}
}
