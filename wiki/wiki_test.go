package wiki

import (
	"testing"

	"github.com/forgedocs/wikiforge/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"github https", "https://github.com/gin-gonic/gin", "github.com/gin-gonic/gin"},
		{"github trailing git", "https://github.com/gin-gonic/gin.git", "github.com/gin-gonic/gin"},
		{"github trailing slash", "https://github.com/gin-gonic/gin/", "github.com/gin-gonic/gin"},
		{"github mixed case", "https://github.com/Gin-Gonic/GIN", "github.com/gin-gonic/gin"},
		{"gitlab", "https://gitlab.com/owner/repo", "gitlab.com/owner/repo"},
		{"template docs", "template-docs", "template-docs/example"},
		{"empty", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveID(tt.url))
		})
	}
}

func TestDeriveIDUnparseable(t *testing.T) {
	id := DeriveID("ssh://internal.host/whatever")
	assert.Contains(t, id, "unknown/")

	// Same input always derives the same ID
	assert.Equal(t, id, DeriveID("ssh://internal.host/whatever"))
}

func TestNewWiki(t *testing.T) {
	req := &GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		Languages: []string{"en", "zh"},
	}
	w := New(req)

	assert.Equal(t, "github.com/gin-gonic/gin", w.ID)
	assert.Equal(t, StatusPending, w.Status)
	assert.Equal(t, 0, w.Progress)
	assert.Equal(t, "gin Documentation", w.Title)
	assert.Equal(t, "openai", w.Settings.Provider)
	assert.NotZero(t, w.CreatedAt)
	assert.Empty(t, w.Pages)
}

func TestStatusTransitions(t *testing.T) {
	w := New(&GenerationRequest{RepoURL: "https://github.com/a/b"})

	w.SetStatus(StatusAnalyzing)
	assert.Equal(t, StatusAnalyzing, w.Status)

	w.SetStatus(StatusGenerating)
	w.Complete()
	assert.Equal(t, StatusCompleted, w.Status)
	assert.Equal(t, 100, w.Progress)

	// Terminal states absorb further transitions
	w.SetStatus(StatusGenerating)
	assert.Equal(t, StatusCompleted, w.Status)
	w.Fail(errors.New("late failure"))
	assert.Equal(t, StatusCompleted, w.Status)
	assert.Empty(t, w.ErrorMsg)
}

func TestFail(t *testing.T) {
	w := New(&GenerationRequest{RepoURL: "https://github.com/a/b"})
	w.SetProgress(40)
	w.Fail(errors.New("provider unreachable"))

	assert.Equal(t, StatusFailed, w.Status)
	assert.Equal(t, "provider unreachable", w.ErrorMsg)
	// Failure does not force progress to 100
	assert.Equal(t, 40, w.Progress)

	// Failed is terminal too
	w.Complete()
	assert.Equal(t, StatusFailed, w.Status)
}

func TestProgressMonotonic(t *testing.T) {
	w := New(&GenerationRequest{RepoURL: "https://github.com/a/b"})

	w.SetProgress(20)
	w.SetProgress(55)
	w.SetProgress(30) // Regression ignored
	assert.Equal(t, 55, w.Progress)

	w.SetProgress(150) // Clamped
	assert.Equal(t, 100, w.Progress)
}

func TestAddPage(t *testing.T) {
	w := New(&GenerationRequest{RepoURL: "https://github.com/a/b"})

	w.AddPage(&Page{ID: "overview_en", Language: "en"})
	w.AddPage(&Page{ID: "overview_zh", Language: "zh"})
	w.AddPage(&Page{ID: "setup_en", Language: "en"})

	require.Len(t, w.Pages, 3)
	assert.Equal(t, 3, w.Metadata.PagesGenerated)
	assert.Equal(t, 2, w.Metadata.Statistics["en"])
	assert.Equal(t, 1, w.Metadata.Statistics["zh"])
}

func TestReadingTime(t *testing.T) {
	assert.Equal(t, 1, ReadingTime(0))
	assert.Equal(t, 1, ReadingTime(150))
	assert.Equal(t, 2, ReadingTime(400))
	assert.Equal(t, 10, ReadingTime(2000))
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 4, WordCount("four words in here"))
	assert.Equal(t, 2, WordCount("  spaced \n out  "))
}

func TestCloneIsDetached(t *testing.T) {
	w := New(&GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	})
	w.AddPage(&Page{ID: "overview_en", Title: "Overview", Language: "en"})

	cp := w.Clone()
	require.Len(t, cp.Pages, 1)

	w.SetStatus(StatusGenerating)
	w.SetProgress(50)
	w.AddPage(&Page{ID: "setup_en", Language: "en"})
	w.Pages[0].Title = "Renamed"

	assert.Equal(t, StatusPending, cp.Status)
	assert.Equal(t, 0, cp.Progress)
	assert.Len(t, cp.Pages, 1)
	assert.Equal(t, "Overview", cp.Pages[0].Title)
	assert.Equal(t, 1, cp.Metadata.Statistics["en"])
}
