package generator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"text/template"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgedocs/wikiforge/ai"
	"github.com/forgedocs/wikiforge/config"
	"github.com/forgedocs/wikiforge/errors"
	"github.com/forgedocs/wikiforge/wiki"
)

// stubProvider is an in-memory ai.Provider with scriptable failures
type stubProvider struct {
	name string
	// fail decides whether a given attempt for a prompt errors out
	fail func(prompt string, attempt int) error
	// release, when set, blocks Generate until closed
	release chan struct{}

	mu       sync.Mutex
	calls    int
	attempts map[string]int
}

func newStub() *stubProvider {
	return &stubProvider{name: "stub", attempts: make(map[string]int)}
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Models(ctx context.Context) ([]ai.ModelInfo, error) {
	return []ai.ModelInfo{{ID: "stub-model", Name: "stub-model", Provider: p.name}}, nil
}

func (p *stubProvider) Generate(ctx context.Context, prompt string, opts *ai.GenerationOptions) (*ai.GenerationResult, error) {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	p.calls++
	p.attempts[prompt]++
	attempt := p.attempts[prompt]
	p.mu.Unlock()

	if p.fail != nil {
		if err := p.fail(prompt, attempt); err != nil {
			return nil, err
		}
	}
	return &ai.GenerationResult{
		Text:      "Generated documentation content for testing purposes.",
		Model:     "stub-model",
		Provider:  p.name,
		Tokens:    10,
		Duration:  time.Millisecond,
		CreatedAt: time.Now(),
	}, nil
}

func (p *stubProvider) Stream(ctx context.Context, prompt string, opts *ai.GenerationOptions) (<-chan ai.StreamChunk, error) {
	res, err := p.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan ai.StreamChunk, 2)
	ch <- ai.StreamChunk{Content: res.Text}
	ch <- ai.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *stubProvider) Available(ctx context.Context) bool { return true }

func (p *stubProvider) Usage() ai.Usage { return ai.Usage{} }

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *stubProvider) attemptsFor(substr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for prompt, n := range p.attempts {
		if strings.Contains(prompt, substr) {
			total += n
		}
	}
	return total
}

// memStore is an in-memory ResultStore keeping snapshot copies
type memStore struct {
	mu    sync.Mutex
	wikis map[string]*wiki.Wiki
}

func newMemStore() *memStore {
	return &memStore{wikis: make(map[string]*wiki.Wiki)}
}

func (s *memStore) SaveWiki(w *wiki.Wiki) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	cp.Pages = append([]*wiki.Page(nil), w.Pages...)
	s.wikis[cp.ID] = &cp
	return nil
}

func (s *memStore) LoadWiki(id string) (*wiki.Wiki, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wikis[id]
	if !ok {
		return nil, errors.NewNotFoundError("wiki %s not found", id)
	}
	return w, nil
}

func (s *memStore) ListWikis() ([]*wiki.Wiki, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wiki.Wiki, 0, len(s.wikis))
	for _, w := range s.wikis {
		out = append(out, w)
	}
	return out, nil
}

func (s *memStore) DeleteWiki(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wikis, id)
	return nil
}

func newTestGenerator(t *testing.T, p *stubProvider, cfg config.GenerationConfig) (*Generator, *memStore) {
	t.Helper()
	reg := ai.NewRegistry("")
	reg.Register(p)
	store := newMemStore()
	g := New(cfg, reg, store, nil)
	g.backoff = func(int) time.Duration { return 0 }
	return g, store
}

func waitTerminal(t *testing.T, store *memStore, id string) *wiki.Wiki {
	t.Helper()
	var w *wiki.Wiki
	require.Eventually(t, func() bool {
		loaded, err := store.LoadWiki(id)
		if err != nil {
			return false
		}
		w = loaded
		return w.Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond)
	return w
}

func TestGenerateWikiReturnsImmediately(t *testing.T) {
	p := newStub()
	p.release = make(chan struct{})
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	})
	require.NoError(t, err)
	assert.Equal(t, "github.com/gin-gonic/gin", w.ID)
	assert.True(t, g.Active(w.ID))

	close(p.release)
	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusCompleted, done.Status)
}

func TestRepositoryPipelineHappyPath(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin.git",
		Languages: []string{"en", "zh"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.Len(t, done.Pages, 10)

	assert.Equal(t, 10, done.Metadata.PagesGenerated)
	assert.Equal(t, 5, done.Metadata.Statistics["en"])
	assert.Equal(t, 5, done.Metadata.Statistics["zh"])
	assert.Equal(t, 100, done.Metadata.TokensUsed)

	byID := make(map[string]*wiki.Page)
	for _, page := range done.Pages {
		byID[page.ID] = page
	}
	require.Contains(t, byID, "project-overview_en")
	require.Contains(t, byID, "项目概述_zh")
	assert.Equal(t, 1, byID["project-overview_en"].Order)
	assert.Equal(t, wiki.PageTypeOverview, byID["project-overview_en"].Type)
	assert.Equal(t, "项目概述", byID["项目概述_zh"].Title)
}

func TestProgressMonotonicEndsCompleted(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	var mu sync.Mutex
	var events []wiki.Progress
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case evt := <-g.Progress():
				mu.Lock()
				events = append(events, evt)
				mu.Unlock()
			case <-stop:
				return
			}
		}
	}()

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/spf13/cobra",
		Languages: []string{"en"},
	})
	require.NoError(t, err)
	waitTerminal(t, store, w.ID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0 && events[len(events)-1].Status == wiki.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
	close(stop)

	mu.Lock()
	defer mu.Unlock()
	last := 0
	for _, evt := range events {
		assert.Equal(t, w.ID, evt.WikiID)
		assert.GreaterOrEqual(t, evt.Progress, last)
		last = evt.Progress
	}
	assert.Equal(t, 100, events[len(events)-1].Progress)
}

func TestDuplicateSubmissionConflict(t *testing.T) {
	p := newStub()
	p.release = make(chan struct{})
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	req := &wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	}
	w, err := g.GenerateWiki(req)
	require.NoError(t, err)

	_, err = g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))

	close(p.release)
	waitTerminal(t, store, w.ID)

	// once the first job finishes, resubmission is allowed again
	require.Eventually(t, func() bool { return !g.Active(w.ID) }, 5*time.Second, 10*time.Millisecond)
	_, err = g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	})
	require.NoError(t, err)
	waitTerminal(t, store, w.ID)
}

func TestUnknownProviderFailsJob(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Provider:  "no-such-provider",
		Languages: []string{"en"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusFailed, done.Status)
	assert.NotEmpty(t, done.ErrorMsg)
	assert.Empty(t, done.Pages)
	assert.Zero(t, p.callCount())
}

func TestUnsupportedRepositoryFailsJob(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://example.com/some/repo",
		Languages: []string{"en"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusFailed, done.Status)
	assert.Zero(t, p.callCount())
}

func TestAllPagesFailedFailsJobWithRetries(t *testing.T) {
	p := newStub()
	p.fail = func(string, int) error { return errors.ErrNetwork }
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusFailed, done.Status)
	assert.Empty(t, done.Pages)
	// 5 pages, 3 attempts each
	assert.Equal(t, 15, p.callCount())
}

func TestTemplatePagesNotRetried(t *testing.T) {
	p := newStub()
	p.fail = func(string, int) error { return errors.ErrNetwork }
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   wiki.TemplateDocsSource,
		Languages: []string{"en", "zh"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusFailed, done.Status)
	// 2 languages, 5 templates each, single shot per template
	assert.Equal(t, 10, p.callCount())
}

func TestTemplatePipelineHappyPath(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   wiki.TemplateDocsSource,
		Languages: []string{"zh"},
	})
	require.NoError(t, err)
	assert.Equal(t, "template-docs/example", w.ID)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusCompleted, done.Status)
	require.Len(t, done.Pages, 5)

	ids := make([]string, 0, len(done.Pages))
	for _, page := range done.Pages {
		ids = append(ids, page.ID)
	}
	assert.Contains(t, ids, "overview_zh")
	assert.Contains(t, ids, "architecture_zh")
	assert.Equal(t, "项目概述", done.Pages[0].Title)
}

func TestPartialFailureCompletes(t *testing.T) {
	p := newStub()
	p.fail = func(prompt string, _ int) error {
		if strings.Contains(prompt, "API Reference") {
			return errors.ErrTimeout
		}
		return nil
	}
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusCompleted, done.Status)
	require.Len(t, done.Pages, 4)
	assert.Equal(t, 4, done.Metadata.Statistics["en"])
	for _, page := range done.Pages {
		assert.NotEqual(t, wiki.PageTypeAPI, page.Type)
	}
	// the failed page still burned its full retry budget
	assert.Equal(t, 3, p.attemptsFor("API Reference"))
}

func TestFlakyPageRetriesSucceed(t *testing.T) {
	p := newStub()
	p.fail = func(_ string, attempt int) error {
		if attempt < 3 {
			return errors.ErrTimeout
		}
		return nil
	}
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusCompleted, done.Status)
	assert.Len(t, done.Pages, 5)
	assert.Equal(t, 15, p.callCount())
}

func TestProgressChannelNeverBlocks(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{ProgressBuffer: 1})

	// nobody drains the progress channel; generation must still finish
	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en", "zh"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusCompleted, done.Status)
}

func TestJobLogRingCapped(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{MaxJobLogLines: 5})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en", "zh"},
	})
	require.NoError(t, err)
	waitTerminal(t, store, w.ID)

	require.Eventually(t, func() bool { return !g.Active(w.ID) }, 5*time.Second, 10*time.Millisecond)
	lines := g.JobLogs(w.ID)
	require.NotEmpty(t, lines)
	assert.LessOrEqual(t, len(lines), 5)
	assert.Contains(t, lines[len(lines)-1], "generation completed")
}

func TestDefaultLanguagesApplied(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{DefaultLanguages: []string{"en"}})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL: "https://github.com/gin-gonic/gin",
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusCompleted, done.Status)
	assert.Len(t, done.Pages, 5)
	for _, page := range done.Pages {
		assert.Equal(t, "en", page.Language)
	}
}

func TestAnalyzeRepository(t *testing.T) {
	info, err := analyzeRepository("https://github.com/gin-gonic/gin.git")
	require.NoError(t, err)
	assert.Equal(t, "gin-gonic/gin", info.Name)

	info, err = analyzeRepository("https://gitlab.com/acme/widget")
	require.NoError(t, err)
	assert.Equal(t, "acme/widget", info.Name)

	_, err = analyzeRepository("https://bitbucket.org/acme/widget")
	require.Error(t, err)
}

func TestBuildRepoPromptLocalized(t *testing.T) {
	info := &RepositoryInfo{Name: "gin-gonic/gin", URL: "https://github.com/gin-gonic/gin"}

	en := buildRepoPrompt(info, wiki.PageTypeOverview, "Project Overview", "en")
	assert.Contains(t, en, "English technical documentation")
	assert.Contains(t, en, "gin-gonic/gin")

	zh := buildRepoPrompt(info, wiki.PageTypeOverview, "项目概述", "zh")
	assert.Contains(t, zh, "中文技术文档")
}

// staticTemplates is a TemplateSource serving a fixed set of pages
type staticTemplates struct {
	templates []*PageTemplate
}

func (s staticTemplates) Templates(language string) ([]*PageTemplate, error) {
	return s.templates, nil
}

func TestCustomTemplateSource(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{})
	g.SetTemplateSource(staticTemplates{templates: []*PageTemplate{
		{Type: "intro", Title: "简介", Order: 1, Prompt: template.Must(template.New("intro").Parse("write intro for {{.ProjectName}}"))},
		{Type: "guide", Title: "指南", Order: 2, Prompt: template.Must(template.New("guide").Parse("write guide for {{.ProjectName}}"))},
		{Type: "faq", Title: "常见问题", Order: 3, Prompt: template.Must(template.New("faq").Parse("write faq for {{.ProjectName}}"))},
	}})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   wiki.TemplateDocsSource,
		Languages: []string{"zh"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.Len(t, done.Pages, 3)
	assert.Equal(t, "intro_zh", done.Pages[0].ID)
	assert.Equal(t, "faq_zh", done.Pages[2].ID)
	for _, page := range done.Pages {
		assert.Equal(t, "Generated documentation content for testing purposes.", page.Content)
	}
	assert.Equal(t, 3, p.callCount())
}

func TestRepositoryLanguagePartialFailure(t *testing.T) {
	p := newStub()
	p.fail = func(prompt string, attempt int) error {
		if strings.Contains(prompt, "English technical documentation") {
			return errors.ErrBadResponse
		}
		return nil
	}
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en", "zh"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusCompleted, done.Status)
	require.Len(t, done.Pages, 5)
	for _, page := range done.Pages {
		assert.Equal(t, "zh", page.Language)
	}
	assert.Equal(t, 5, done.Metadata.Statistics["zh"])
	assert.Zero(t, done.Metadata.Statistics["en"])
}

// logStore is a memStore that also records appended generation logs
type logStore struct {
	*memStore

	logMu sync.Mutex
	lines []string
}

func (s *logStore) AppendLog(id string, lines []string) error {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.lines = append(s.lines, lines...)
	return nil
}

func (s *logStore) appended() []string {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return append([]string(nil), s.lines...)
}

func TestJobLogsPersistedToLogAppender(t *testing.T) {
	p := newStub()
	reg := ai.NewRegistry("")
	reg.Register(p)
	store := &logStore{memStore: newMemStore()}
	g := New(config.GenerationConfig{}, reg, store, nil)
	g.backoff = func(int) time.Duration { return 0 }

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	})
	require.NoError(t, err)

	waitTerminal(t, store.memStore, w.ID)
	require.Eventually(t, func() bool {
		return len(store.appended()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	lines := store.appended()
	assert.Contains(t, lines[len(lines)-1], "generation completed")
}

func TestGenerateWikiReturnsSnapshot(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusCompleted, done.Status)
	require.Len(t, done.Pages, 5)

	// The returned wiki is a snapshot of submission time, untouched by the job
	assert.Equal(t, wiki.StatusPending, w.Status)
	assert.Equal(t, 0, w.Progress)
	assert.Empty(t, w.Pages)
}

func TestAuthErrorsNotRetried(t *testing.T) {
	p := newStub()
	p.fail = func(string, int) error { return errors.ErrAuth }
	g, store := newTestGenerator(t, p, config.GenerationConfig{})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusFailed, done.Status)
	// One attempt per page, no retries for permanent failures
	assert.Equal(t, 5, p.callCount())
}

// languageTemplates serves a fixed per-language template map
type languageTemplates map[string][]*PageTemplate

func (m languageTemplates) Templates(language string) ([]*PageTemplate, error) {
	return m[language], nil
}

func TestTemplateLanguageFallback(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{})
	g.SetTemplateSource(languageTemplates{
		"zh": {
			{Type: "overview", Title: "项目概述", Order: 1, Prompt: template.Must(template.New("overview").Parse("overview of {{.ProjectName}}"))},
			{Type: "usage", Title: "快速开始", Order: 2, Prompt: template.Must(template.New("usage").Parse("usage of {{.ProjectName}}"))},
		},
	})

	w, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   wiki.TemplateDocsSource,
		Languages: []string{"en"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, store, w.ID)
	assert.Equal(t, wiki.StatusCompleted, done.Status)
	require.Len(t, done.Pages, 2)
	assert.Equal(t, "overview_en", done.Pages[0].ID)
	for _, page := range done.Pages {
		assert.Equal(t, "en", page.Language)
	}
}

func TestFinishedJobLogsEvicted(t *testing.T) {
	p := newStub()
	g, store := newTestGenerator(t, p, config.GenerationConfig{MaxTrackedJobs: 1})

	first, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/gin-gonic/gin",
		Languages: []string{"en"},
	})
	require.NoError(t, err)
	waitTerminal(t, store, first.ID)

	second, err := g.GenerateWiki(&wiki.GenerationRequest{
		RepoURL:   "https://github.com/spf13/cobra",
		Languages: []string{"en"},
	})
	require.NoError(t, err)
	waitTerminal(t, store, second.ID)

	require.Eventually(t, func() bool {
		return len(g.JobLogs(first.ID)) == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, g.JobLogs(second.ID))
}
