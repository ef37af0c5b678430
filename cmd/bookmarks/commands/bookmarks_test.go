package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/smart-bookmarks/internal/model"
)

func TestPrintBookmarks(t *testing.T) {
	rows := []model.Bookmark{
		{ID: "b2", Title: "Go", URL: "https://go.dev", CreatedAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	require.NoError(t, printBookmarks(&buf, rows, "table"))
	assert.Contains(t, buf.String(), "TITLE")
	assert.Contains(t, buf.String(), "https://go.dev")

	buf.Reset()
	require.NoError(t, printBookmarks(&buf, rows, "json"))
	assert.Contains(t, buf.String(), `"url": "https://go.dev"`)

	buf.Reset()
	require.NoError(t, printBookmarks(&buf, rows, "yaml"))
	assert.Contains(t, buf.String(), "title: Go")

	buf.Reset()
	require.NoError(t, printBookmarks(&buf, nil, "table"))
	assert.Equal(t, "No bookmarks yet.\n", buf.String())

	assert.Error(t, printBookmarks(&buf, rows, "xml"))
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	for _, name := range []string{"login", "logout", "list", "add", "rm"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestAddCommand_RequiresTwoArgs(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"add", "only-title"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}
