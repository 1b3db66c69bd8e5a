package fmorm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/filemakergo/fmorm/internal/fakestore"
	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/filemakergo/fmorm/pkg/models"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelSetContainer(t *testing.T) {
	db := New(fakestore.New())
	m := db.NewModel(taskSpec)

	require.NoError(t, m.Set("attachment", models.ContainerFromBytes("a.txt", []byte("a"))))
	c, ok := m.Get("attachment").(*models.ContainerField)
	require.True(t, ok)
	assert.Equal(t, "attachment", c.Key)
	assert.True(t, c.HasUpload())

	require.NoError(t, m.Set("attachment", "https://host/Streaming/a.txt"))
	c = m.Get("attachment").(*models.ContainerField)
	assert.Equal(t, "https://host/Streaming/a.txt", c.URL)
	assert.False(t, c.HasUpload())

	require.NoError(t, m.Set("attachment", ""))
	assert.Nil(t, m.Get("attachment"))

	err := m.Set("attachment", 42)
	assert.ErrorIs(t, err, constants.ErrUnsupportedContainerValue)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestModelSetContainerFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	m := New(fakestore.New()).NewModel(taskSpec)
	require.NoError(t, m.Set("attachment", f))

	c := m.Get("attachment").(*models.ContainerField)
	assert.Equal(t, "notes.txt", c.Filename)
	assert.Equal(t, []byte("hello"), c.Data)
}

func TestModelRepetitions(t *testing.T) {
	m := New(fakestore.New()).NewModel(taskSpec)

	require.NoError(t, m.Set("tags", []any{"a", "b"}))
	require.NoError(t, m.SetRepetition("tags", 3, "c"))
	assert.Equal(t, []any{"a", "b", "c"}, m.Get("tags"))

	require.NoError(t, m.Set("tags", []any{"x"}))
	assert.Equal(t, []any{"x", "b", "c"}, m.Get("tags"))

	require.NoError(t, m.Set("tags", "y"))
	assert.Equal(t, []any{"y", "b", "c"}, m.Get("tags"))

	assert.ErrorIs(t, m.SetRepetition("tags", 0, "z"), ErrConfiguration)
}

func TestModelDirty(t *testing.T) {
	store := newTestStore(t)
	db := New(store)

	m, err := db.Query(taskSpec).Find(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, m.IsDirty())

	require.NoError(t, m.Set("status", "done"))
	require.NoError(t, m.SetRepetition("tags", 2, "home"))
	assert.Equal(t, map[string]any{
		"status": "done",
		"tags":   []any{"work", "home"},
	}, m.Dirty())
}

func TestModelMarshalJSON(t *testing.T) {
	store := newTestStore(t)
	db := New(store)

	m, err := db.Query(taskSpec).With("project").Find(context.Background(), "t3")
	require.NoError(t, err)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "t3",
		"title": "Deploy",
		"status": "done",
		"priority": 9,
		"tags": "",
		"attachment": "",
		"project": null
	}`, string(data))
}
