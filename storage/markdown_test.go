package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgedocs/wikiforge/errors"
	"github.com/forgedocs/wikiforge/wiki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWiki() *wiki.Wiki {
	w := wiki.New(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Provider:  "openai",
		Languages: []string{"en", "zh"},
	})
	w.AddPage(&wiki.Page{
		ID: "overview_en", Title: "Overview", Type: wiki.PageTypeOverview,
		Language: "en", Content: "# Overview\n\nSome content.", WordCount: 3, ReadingTime: 1,
	})
	w.AddPage(&wiki.Page{
		ID: "overview_zh", Title: "概述", Type: wiki.PageTypeOverview,
		Language: "zh", Content: "# 概述", WordCount: 1, ReadingTime: 1,
	})
	return w
}

func TestSaveAndLoad(t *testing.T) {
	store, err := NewMarkdownStore(t.TempDir())
	require.NoError(t, err)

	w := testWiki()
	require.NoError(t, store.SaveWiki(w))

	loaded, err := store.LoadWiki(w.ID)
	require.NoError(t, err)

	assert.Equal(t, w.ID, loaded.ID)
	assert.Equal(t, w.Status, loaded.Status)
	require.Len(t, loaded.Pages, 2)
	assert.Equal(t, "overview_en", loaded.Pages[0].ID)
}

func TestSaveWritesMarkdownTree(t *testing.T) {
	root := t.TempDir()
	store, err := NewMarkdownStore(root)
	require.NoError(t, err)

	w := testWiki()
	require.NoError(t, store.SaveWiki(w))

	// github.com/gin-gonic/gin becomes nested directories
	pagePath := filepath.Join(root, "github.com", "gin-gonic", "gin", "en", "overview_en.md")
	data, err := os.ReadFile(pagePath)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "---\n")
	assert.Contains(t, content, "id: overview_en")
	assert.Contains(t, content, "# Overview")

	zhPath := filepath.Join(root, "github.com", "gin-gonic", "gin", "zh", "overview_zh.md")
	assert.FileExists(t, zhPath)

	// No leftover temp index
	assert.NoFileExists(t, filepath.Join(root, "github.com", "gin-gonic", "gin", "index.json.tmp"))
}

func TestSaveIsRepeatable(t *testing.T) {
	store, err := NewMarkdownStore(t.TempDir())
	require.NoError(t, err)

	w := testWiki()
	require.NoError(t, store.SaveWiki(w))

	// Saving again after progress updates overwrites in place
	w.SetProgress(80)
	w.Complete()
	require.NoError(t, store.SaveWiki(w))

	loaded, err := store.LoadWiki(w.ID)
	require.NoError(t, err)
	assert.Equal(t, wiki.StatusCompleted, loaded.Status)
	assert.Equal(t, 100, loaded.Progress)
}

func TestLoadMissing(t *testing.T) {
	store, err := NewMarkdownStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadWiki("github.com/none/such")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListWikis(t *testing.T) {
	store, err := NewMarkdownStore(t.TempDir())
	require.NoError(t, err)

	first := testWiki()
	require.NoError(t, store.SaveWiki(first))

	second := wiki.New(&wiki.GenerationRequest{RepoURL: "https://github.com/spf13/cobra"})
	require.NoError(t, store.SaveWiki(second))

	wikis, err := store.ListWikis()
	require.NoError(t, err)
	require.Len(t, wikis, 2)

	// Sorted by ID
	assert.Equal(t, "github.com/gin-gonic/gin", wikis[0].ID)
	assert.Equal(t, "github.com/spf13/cobra", wikis[1].ID)
}

func TestDeleteWiki(t *testing.T) {
	store, err := NewMarkdownStore(t.TempDir())
	require.NoError(t, err)

	w := testWiki()
	require.NoError(t, store.SaveWiki(w))
	require.NoError(t, store.DeleteWiki(w.ID))

	_, err = store.LoadWiki(w.ID)
	assert.True(t, errors.IsNotFoundError(err))

	err = store.DeleteWiki(w.ID)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestAppendLogAccumulates(t *testing.T) {
	dir := t.TempDir()
	store, err := NewMarkdownStore(dir)
	require.NoError(t, err)

	w := testWiki()
	require.NoError(t, store.AppendLog(w.ID, []string{"10:00:00 generation started", "10:00:01 analyzing repository"}))
	require.NoError(t, store.AppendLog(w.ID, []string{"10:00:05 generation completed with 2 pages"}))
	require.NoError(t, store.AppendLog(w.ID, nil))

	data, err := os.ReadFile(filepath.Join(store.wikiDir(w.ID), "generation.log"))
	require.NoError(t, err)
	assert.Equal(t,
		"10:00:00 generation started\n10:00:01 analyzing repository\n10:00:05 generation completed with 2 pages\n",
		string(data))
}

func TestSanitizeSegment(t *testing.T) {
	assert.Equal(t, "safe-name", sanitizeSegment("safe-name"))
	assert.Equal(t, "_", sanitizeSegment(""))
	assert.Equal(t, "a_b", sanitizeSegment("a:b"))
	assert.NotContains(t, sanitizeSegment(".."), "..")
}
