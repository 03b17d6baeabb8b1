// Package generator orchestrates wiki generation: it accepts requests,
// resolves an AI provider, runs the repository or template pipeline in the
// background and reports progress through a bounded channel.
package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/forgedocs/wikiforge/ai"
	"github.com/forgedocs/wikiforge/ai/tracker"
	"github.com/forgedocs/wikiforge/config"
	"github.com/forgedocs/wikiforge/errors"
	"github.com/forgedocs/wikiforge/logger"
	"github.com/forgedocs/wikiforge/wiki"
)

// maxPageRetries bounds generation attempts per repository page. Template
// pages are never retried.
const maxPageRetries = 3

// defaults applied when the generation config leaves fields zero
const (
	defaultPageWorkers    = 2
	defaultProgressBuffer = 100
	defaultMaxJobLogLines = 100
	defaultMaxTrackedJobs = 256
)

// defaultTemplateLanguage is the language whose template set backs the
// template pipeline when a requested language has no templates of its own.
const defaultTemplateLanguage = "zh"

// ResultStore persists finished and in-flight wikis
type ResultStore interface {
	SaveWiki(w *wiki.Wiki) error
	LoadWiki(id string) (*wiki.Wiki, error)
	ListWikis() ([]*wiki.Wiki, error)
	DeleteWiki(id string) error
}

// LogAppender is an optional ResultStore extension that persists a job's
// retained log lines next to the generated wiki.
type LogAppender interface {
	AppendLog(id string, lines []string) error
}

// RepositoryInfo is what repository analysis extracts from a source URL
type RepositoryInfo struct {
	Name        string
	URL         string
	Language    string
	Framework   string
	Description string
}

// Generator runs wiki generation jobs
type Generator struct {
	cfg      config.GenerationConfig
	registry *ai.Registry
	store    ResultStore
	tracker  *tracker.Tracker
	source   TemplateSource

	mu       sync.Mutex
	inFlight map[string]bool
	jobLogs  map[string][]string
	logOrder []string

	progress chan wiki.Progress

	// backoff computes the delay before a retry attempt; replaced in tests
	backoff func(attempt int) time.Duration

	log *zap.SugaredLogger
}

// New creates a generator. store is required; tr may be nil to disable usage
// tracking.
func New(cfg config.GenerationConfig, registry *ai.Registry, store ResultStore, tr *tracker.Tracker) *Generator {
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = defaultPageWorkers
	}
	if cfg.ProgressBuffer <= 0 {
		cfg.ProgressBuffer = defaultProgressBuffer
	}
	if cfg.MaxJobLogLines <= 0 {
		cfg.MaxJobLogLines = defaultMaxJobLogLines
	}
	if cfg.MaxTrackedJobs <= 0 {
		cfg.MaxTrackedJobs = defaultMaxTrackedJobs
	}
	return &Generator{
		cfg:      cfg,
		registry: registry,
		store:    store,
		tracker:  tr,
		source:   builtinTemplates{},
		inFlight: make(map[string]bool),
		jobLogs:  make(map[string][]string),
		progress: make(chan wiki.Progress, cfg.ProgressBuffer),
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * time.Second
		},
		log: logger.ComponentLogger("generator"),
	}
}

// SetTemplateSource replaces the built-in template set
func (g *Generator) SetTemplateSource(src TemplateSource) {
	g.source = src
}

// Progress returns the stream of generation progress events. Events are
// dropped, never blocked on, when the consumer falls behind.
func (g *Generator) Progress() <-chan wiki.Progress {
	return g.progress
}

// GenerateWiki accepts a generation request and returns a snapshot of the
// pending wiki immediately. Generation continues in the background, detached
// from the caller's context; callers read further state from the store. A
// second request for the same wiki while the first is still running returns
// ErrConflict.
func (g *Generator) GenerateWiki(req *wiki.GenerationRequest) (*wiki.Wiki, error) {
	if req == nil || req.RepoURL == "" {
		return nil, errors.New("repo_url is required")
	}
	if len(req.Languages) == 0 {
		req.Languages = g.defaultLanguages()
	}

	w := wiki.New(req)

	g.mu.Lock()
	if g.inFlight[w.ID] {
		g.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrConflict, "wiki %s is already being generated", w.ID)
	}
	g.inFlight[w.ID] = true
	if _, tracked := g.jobLogs[w.ID]; !tracked {
		g.logOrder = append(g.logOrder, w.ID)
	}
	g.jobLogs[w.ID] = nil
	g.mu.Unlock()

	g.appendJobLog(w.ID, "generation requested for %s (%d languages)", req.RepoURL, len(req.Languages))
	g.persist(w)

	snapshot := w.Clone()
	go g.run(context.Background(), w, req)

	return snapshot, nil
}

// JobLogs returns the retained log lines for a wiki generation job
func (g *Generator) JobLogs(wikiID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	lines := g.jobLogs[wikiID]
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

// Active reports whether a generation job for the given wiki is running
func (g *Generator) Active(wikiID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight[wikiID]
}

func (g *Generator) defaultLanguages() []string {
	if len(g.cfg.DefaultLanguages) > 0 {
		return g.cfg.DefaultLanguages
	}
	return []string{"en"}
}

// run drives one generation job to a terminal state
func (g *Generator) run(ctx context.Context, w *wiki.Wiki, req *wiki.GenerationRequest) {
	started := time.Now()
	defer func() {
		g.mu.Lock()
		delete(g.inFlight, w.ID)
		g.pruneJobLogsLocked()
		g.mu.Unlock()
	}()

	provider, err := g.registry.Resolve(ctx, req.Provider)
	if err != nil {
		g.log.Errorw("provider resolution failed", "wiki", w.ID, "provider", req.Provider, "error", err)
		g.appendJobLog(w.ID, "provider resolution failed: %v", err)
		g.fail(w, err)
		return
	}
	w.Provider = provider.Name()
	g.appendJobLog(w.ID, "using provider %s", provider.Name())

	opts := &ai.GenerationOptions{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	if req.RepoURL == wiki.TemplateDocsSource {
		g.runTemplatePipeline(ctx, w, req, provider, opts)
	} else {
		g.runRepositoryPipeline(ctx, w, req, provider, opts)
	}

	w.Metadata.GenerationTime = time.Since(started).Seconds()

	if w.Status.Terminal() {
		g.persist(w)
		g.persistLogs(w.ID)
		return
	}

	if len(w.Pages) == 0 {
		g.appendJobLog(w.ID, "no pages were generated")
		g.fail(w, errors.New("all page generations failed"))
		g.persistLogs(w.ID)
		return
	}

	w.Complete()
	g.persist(w)
	g.appendJobLog(w.ID, "generation completed with %d pages", len(w.Pages))
	g.persistLogs(w.ID)
	g.sendProgress(w, wiki.StatusCompleted, 100, "completed",
		fmt.Sprintf("generated %d pages", len(w.Pages)), nil)
	g.log.Infow("wiki generation completed",
		"wiki", w.ID, "pages", len(w.Pages), "duration", time.Since(started))
}

// runRepositoryPipeline generates the fixed five-page plan per language from
// repository analysis. Pages within a language run concurrently, bounded by
// the worker config, and each page retries failed generations.
func (g *Generator) runRepositoryPipeline(ctx context.Context, w *wiki.Wiki, req *wiki.GenerationRequest, provider ai.Provider, opts *ai.GenerationOptions) {
	w.SetStatus(wiki.StatusAnalyzing)
	w.SetProgress(10)
	g.sendProgress(w, wiki.StatusAnalyzing, 10, "analyzing", "analyzing repository", nil)

	info, err := analyzeRepository(req.RepoURL)
	if err != nil {
		g.appendJobLog(w.ID, "repository analysis failed: %v", err)
		g.fail(w, err)
		return
	}
	g.appendJobLog(w.ID, "analyzed repository %s", info.Name)

	w.SetStatus(wiki.StatusGenerating)
	w.SetProgress(20)
	g.sendProgress(w, wiki.StatusGenerating, 20, "generating", "repository analysis complete", nil)

	languages := normalizeLanguages(req.Languages, "en")
	langShare := 60.0 / float64(len(languages))
	for langIdx, language := range languages {
		pages := g.generateRepositoryLanguage(ctx, w, info, language, provider, opts, langIdx, langShare)
		if len(pages) == 0 {
			g.appendJobLog(w.ID, "all pages failed for language %s", language)
			g.sendProgress(w, wiki.StatusGenerating, w.Progress, "generating",
				fmt.Sprintf("language %s produced no pages", language), nil)
			continue
		}
		sort.Slice(pages, func(i, j int) bool { return pages[i].Order < pages[j].Order })
		for _, p := range pages {
			w.AddPage(p)
		}
		g.persist(w)
		g.appendJobLog(w.ID, "language %s: generated %d/%d pages", language, len(pages), len(repoPageSpecs))
	}
}

// generateRepositoryLanguage runs the page plan for one language through a
// bounded worker pool and returns the pages that succeeded.
func (g *Generator) generateRepositoryLanguage(ctx context.Context, w *wiki.Wiki, info *RepositoryInfo, language string, provider ai.Provider, opts *ai.GenerationOptions, langIdx int, langShare float64) []*wiki.Page {
	pageShare := langShare / float64(len(repoPageSpecs))

	var mu sync.Mutex
	var pages []*wiki.Page
	completed := 0

	p := pool.New().WithMaxGoroutines(g.cfg.PageWorkers)
	for _, spec := range repoPageSpecs {
		spec := spec
		p.Go(func() {
			title := localizedTitle(spec.ZhTitle, spec.EnTitle, language)
			page, tokens, err := g.generateRepositoryPage(ctx, w, info, spec, title, language, provider, opts)

			mu.Lock()
			defer mu.Unlock()
			completed++
			progress := int(20.0 + float64(langIdx)*langShare + float64(completed)*pageShare)
			if err != nil {
				g.appendJobLog(w.ID, "page %s (%s) failed: %v", title, language, err)
				g.sendProgress(w, wiki.StatusGenerating, progress, "generating",
					fmt.Sprintf("page %s failed", title), nil)
				return
			}
			pages = append(pages, page)
			w.Metadata.TokensUsed += tokens
			w.SetProgress(progress)
			g.appendJobLog(w.ID, "page %s (%s) generated, %d words", title, language, page.WordCount)
			g.sendProgress(w, wiki.StatusGenerating, progress, "generating",
				fmt.Sprintf("generated %s", title), nil)
		})
	}
	p.Wait()

	return pages
}

// generateRepositoryPage produces one page, retrying transient failures with
// incrementally longer delays between attempts. Permanent failures, auth
// errors among them, abort without further attempts.
func (g *Generator) generateRepositoryPage(ctx context.Context, w *wiki.Wiki, info *RepositoryInfo, spec repoPageSpec, title, language string, provider ai.Provider, opts *ai.GenerationOptions) (*wiki.Page, int, error) {
	prompt := buildRepoPrompt(info, spec.Type, title, language)

	var res *ai.GenerationResult
	var err error
	attempts := 0
	for attempt := 0; attempt < maxPageRetries; attempt++ {
		if attempt > 0 {
			g.log.Debugw("retrying page generation",
				"wiki", w.ID, "page", title, "attempt", attempt+1)
			time.Sleep(g.backoff(attempt))
		}
		attempts++
		res, err = provider.Generate(ctx, prompt, opts)
		if err == nil {
			break
		}
		if !errors.IsRetryable(err) {
			break
		}
	}

	g.track(w.ID, pageID(title, language), provider.Name(), res, err)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "generate page %s after %d attempts", title, attempts)
	}

	now := time.Now()
	return &wiki.Page{
		ID:          pageID(title, language),
		Title:       title,
		Content:     res.Text,
		Type:        spec.Type,
		Language:    language,
		Order:       spec.Order,
		WordCount:   wiki.WordCount(res.Text),
		ReadingTime: wiki.ReadingTime(wiki.WordCount(res.Text)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, res.Tokens, nil
}

// runTemplatePipeline renders the configured template set per language.
// Template pages are generated sequentially and never retried; a failed page
// is logged and skipped.
func (g *Generator) runTemplatePipeline(ctx context.Context, w *wiki.Wiki, req *wiki.GenerationRequest, provider ai.Provider, opts *ai.GenerationOptions) {
	w.SetStatus(wiki.StatusAnalyzing)
	w.SetProgress(10)
	g.sendProgress(w, wiki.StatusAnalyzing, 10, "scanning", "scanning templates", nil)

	w.SetStatus(wiki.StatusGenerating)
	w.SetProgress(20)
	g.sendProgress(w, wiki.StatusGenerating, 20, "generating", "template scan complete", nil)

	languages := normalizeLanguages(req.Languages, defaultTemplateLanguage)
	langShare := 60.0 / float64(len(languages))
	for langIdx, language := range languages {
		templates, err := g.source.Templates(language)
		if err != nil {
			g.appendJobLog(w.ID, "template listing failed for %s: %v", language, err)
			continue
		}
		if len(templates) == 0 && language != defaultTemplateLanguage {
			g.appendJobLog(w.ID, "no templates for language %s, using %s templates", language, defaultTemplateLanguage)
			templates, err = g.source.Templates(defaultTemplateLanguage)
			if err != nil {
				g.appendJobLog(w.ID, "template listing failed for %s: %v", defaultTemplateLanguage, err)
				continue
			}
		}
		if len(templates) == 0 {
			g.appendJobLog(w.ID, "no templates for language %s", language)
			continue
		}

		pageShare := langShare / float64(len(templates))
		generated := 0
		for i, tmpl := range templates {
			progress := int(20.0 + float64(langIdx)*langShare + float64(i+1)*pageShare)

			page, err := g.generateTemplatePage(ctx, w, tmpl, language, provider, opts)
			if err != nil {
				g.appendJobLog(w.ID, "template page %s (%s) failed: %v", tmpl.Title, language, err)
				g.sendProgress(w, wiki.StatusGenerating, progress, "generating",
					fmt.Sprintf("template %s failed", tmpl.Title), nil)
				continue
			}

			w.AddPage(page)
			w.SetProgress(progress)
			generated++
			g.appendJobLog(w.ID, "template page %s (%s) generated", page.Title, language)
			g.sendProgress(w, wiki.StatusGenerating, progress, "generating",
				fmt.Sprintf("generated %s", page.Title), nil)
		}

		g.persist(w)
		g.appendJobLog(w.ID, "language %s: generated %d/%d template pages", language, generated, len(templates))
	}
}

// generateTemplatePage renders and generates one template page, single shot
func (g *Generator) generateTemplatePage(ctx context.Context, w *wiki.Wiki, tmpl *PageTemplate, language string, provider ai.Provider, opts *ai.GenerationOptions) (*wiki.Page, error) {
	prompt, err := renderTemplatePrompt(tmpl, w, language)
	if err != nil {
		return nil, errors.Wrapf(err, "render template %s", tmpl.Title)
	}

	res, err := provider.Generate(ctx, prompt, opts)
	id := fmt.Sprintf("%s_%s", tmpl.Type, language)
	g.track(w.ID, id, provider.Name(), res, err)
	if err != nil {
		return nil, err
	}

	w.Metadata.TokensUsed += res.Tokens

	now := time.Now()
	return &wiki.Page{
		ID:          id,
		Title:       tmpl.Title,
		Content:     res.Text,
		Type:        pageTypeFor(tmpl.Type),
		Language:    language,
		Order:       tmpl.Order,
		WordCount:   wiki.WordCount(res.Text),
		ReadingTime: wiki.ReadingTime(wiki.WordCount(res.Text)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// fail transitions the wiki to failed and emits the terminal event
func (g *Generator) fail(w *wiki.Wiki, err error) {
	w.Fail(err)
	g.persist(w)
	g.sendProgress(w, wiki.StatusFailed, w.Progress, "failed", "generation failed", err)
}

// persistLogs writes the job's log ring to the store when it supports logs
func (g *Generator) persistLogs(wikiID string) {
	la, ok := g.store.(LogAppender)
	if !ok {
		return
	}
	if err := la.AppendLog(wikiID, g.JobLogs(wikiID)); err != nil {
		g.log.Warnw("persist job log failed", "wiki", wikiID, "error", err)
	}
}

// persist saves the wiki snapshot. Persistence failures are logged, never
// fatal to the job.
func (g *Generator) persist(w *wiki.Wiki) {
	if g.store == nil {
		return
	}
	if err := g.store.SaveWiki(w); err != nil {
		g.log.Warnw("persist wiki failed", "wiki", w.ID, "error", err)
	}
}

// track records one page generation outcome when tracking is enabled
func (g *Generator) track(wikiID, pageID, providerName string, res *ai.GenerationResult, genErr error) {
	if g.tracker == nil {
		return
	}
	rec := &tracker.Record{
		WikiID:    wikiID,
		PageID:    pageID,
		Provider:  providerName,
		Success:   genErr == nil,
		CreatedAt: time.Now(),
	}
	if res != nil {
		rec.Model = res.Model
		rec.Tokens = &res.Tokens
		rec.DurationMS = res.Duration.Milliseconds()
	}
	if genErr != nil {
		msg := genErr.Error()
		rec.ErrorMsg = &msg
	}
	if err := g.tracker.Track(rec); err != nil {
		g.log.Debugw("usage tracking failed", "wiki", wikiID, "error", err)
	}
}

// sendProgress emits a progress event without ever blocking the pipeline
func (g *Generator) sendProgress(w *wiki.Wiki, status wiki.Status, progress int, step, message string, err error) {
	evt := wiki.Progress{
		WikiID:      w.ID,
		Status:      status,
		Progress:    progress,
		CurrentStep: step,
		Message:     message,
		UpdatedAt:   time.Now(),
	}
	if err != nil {
		evt.Error = err.Error()
	}
	select {
	case g.progress <- evt:
	default:
		g.log.Debugw("progress channel full, dropping event", "wiki", w.ID)
	}
}

// appendJobLog adds a timestamped line to the job's log ring, keeping only
// the most recent entries.
func (g *Generator) appendJobLog(wikiID, format string, args ...any) {
	line := fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))

	g.mu.Lock()
	defer g.mu.Unlock()
	lines := append(g.jobLogs[wikiID], line)
	if len(lines) > g.cfg.MaxJobLogLines {
		lines = lines[len(lines)-g.cfg.MaxJobLogLines:]
	}
	g.jobLogs[wikiID] = lines
}

// pruneJobLogsLocked evicts finished jobs' log rings oldest-first once the
// retained set exceeds the configured cap. Callers hold g.mu.
func (g *Generator) pruneJobLogsLocked() {
	for len(g.jobLogs) > g.cfg.MaxTrackedJobs {
		evicted := false
		for i, id := range g.logOrder {
			if g.inFlight[id] {
				continue
			}
			delete(g.jobLogs, id)
			g.logOrder = append(g.logOrder[:i], g.logOrder[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

// normalizeLanguages replaces empty entries with the pipeline default
func normalizeLanguages(languages []string, fallback string) []string {
	out := make([]string, 0, len(languages))
	for _, l := range languages {
		if l == "" {
			l = fallback
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		out = append(out, fallback)
	}
	return out
}

// analyzeRepository extracts project facts from a supported repository URL
func analyzeRepository(repoURL string) (*RepositoryInfo, error) {
	info := &RepositoryInfo{URL: repoURL}

	var framework string
	switch {
	case strings.Contains(repoURL, "github.com"):
		framework = "Web Framework"
	case strings.Contains(repoURL, "gitlab.com"):
		framework = "Application"
	default:
		return nil, errors.Newf("unsupported repository host: %s", repoURL)
	}

	parts := strings.Split(strings.TrimSuffix(repoURL, "/"), "/")
	if len(parts) >= 2 {
		owner := parts[len(parts)-2]
		repo := strings.TrimSuffix(parts[len(parts)-1], ".git")
		info.Name = fmt.Sprintf("%s/%s", owner, repo)
	}
	if info.Name == "" {
		info.Name = "Unknown Repository"
	}

	info.Language = "Go"
	info.Framework = framework
	info.Description = fmt.Sprintf("Documentation for %s", info.Name)

	return info, nil
}
