// Package wiki defines the documentation domain model: wikis, pages,
// generation requests and progress events.
package wiki

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a wiki generation job
type Status string

const (
	StatusPending    Status = "pending"
	StatusAnalyzing  Status = "analyzing"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status absorbs further transitions
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TemplateDocsSource is the reserved repository URL that routes a request to
// the template documentation pipeline instead of repository analysis.
const TemplateDocsSource = "template-docs"

// Wiki is a generated documentation set for one repository
type Wiki struct {
	ID          string    `json:"id"` // Normalized package path, e.g. github.com/gin-gonic/gin
	RepoURL     string    `json:"repo_url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"` // 0-100, monotonically non-decreasing
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Languages   []string  `json:"languages"`
	Pages       []*Page   `json:"pages"`
	Settings    Settings  `json:"settings"`
	Metadata    Metadata  `json:"metadata"`
	ErrorMsg    string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Page is a single generated documentation page
type Page struct {
	ID          string    `json:"id"` // {title-slug}_{language} or {type}_{language}
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Type        PageType  `json:"type"`
	Language    string    `json:"language"`
	Order       int       `json:"order"`
	WordCount   int       `json:"word_count"`
	ReadingTime int       `json:"reading_time"` // Minutes
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PageType classifies what a page documents
type PageType string

const (
	PageTypeOverview     PageType = "overview"
	PageTypeArchitecture PageType = "architecture"
	PageTypeSetup        PageType = "setup"
	PageTypeUsage        PageType = "usage"
	PageTypeAPI          PageType = "api"
)

// Settings captures the generation parameters a wiki was built with
type Settings struct {
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Languages   []string `json:"languages"`
	Templates   []string `json:"templates,omitempty"`
}

// Metadata records what generation produced and consumed
type Metadata struct {
	GenerationTime float64        `json:"generation_time"` // Seconds
	TokensUsed     int            `json:"tokens_used"`
	PagesGenerated int            `json:"pages_generated"`
	Statistics     map[string]int `json:"statistics,omitempty"` // Pages per language
}

// GenerationRequest is a client's ask to generate a wiki
type GenerationRequest struct {
	RepoURL     string   `json:"repo_url"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Languages   []string `json:"languages,omitempty"`
	Templates   []string `json:"templates,omitempty"`
}

// Progress is a point-in-time generation status event
type Progress struct {
	WikiID      string    `json:"wiki_id"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	CurrentStep string    `json:"current_step"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SupportedLanguages maps language codes to display names
var SupportedLanguages = map[string]string{
	"en": "English",
	"zh": "中文",
	"ja": "日本語",
	"ko": "한국어",
	"es": "Español",
	"fr": "Français",
	"de": "Deutsch",
}

// New constructs a pending wiki from a generation request
func New(req *GenerationRequest) *Wiki {
	now := time.Now()
	id := DeriveID(req.RepoURL)

	title := req.Title
	if title == "" {
		title = deriveTitle(req.RepoURL, id)
	}
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Documentation for %s", id)
	}

	return &Wiki{
		ID:          id,
		RepoURL:     req.RepoURL,
		Title:       title,
		Description: description,
		Status:      StatusPending,
		Progress:    0,
		Provider:    req.Provider,
		Model:       req.Model,
		Languages:   req.Languages,
		Pages:       []*Page{},
		Settings: Settings{
			Provider:    req.Provider,
			Model:       req.Model,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Languages:   req.Languages,
			Templates:   req.Templates,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus transitions the wiki to a new status. Terminal states absorb:
// once completed or failed, further transitions are ignored.
func (w *Wiki) SetStatus(s Status) {
	if w.Status.Terminal() {
		return
	}
	w.Status = s
	w.UpdatedAt = time.Now()
}

// SetProgress advances the progress counter. Progress never decreases and
// never exceeds 100.
func (w *Wiki) SetProgress(p int) {
	if p > 100 {
		p = 100
	}
	if p <= w.Progress {
		return
	}
	w.Progress = p
	w.UpdatedAt = time.Now()
}

// Complete marks the wiki finished; progress snaps to 100
func (w *Wiki) Complete() {
	if w.Status.Terminal() {
		return
	}
	w.Status = StatusCompleted
	w.Progress = 100
	w.UpdatedAt = time.Now()
}

// Clone returns a deep copy that is safe to read while the original keeps
// being mutated by a running generation job.
func (w *Wiki) Clone() *Wiki {
	cp := *w
	cp.Languages = append([]string(nil), w.Languages...)
	cp.Pages = make([]*Page, len(w.Pages))
	for i, p := range w.Pages {
		pc := *p
		cp.Pages[i] = &pc
	}
	cp.Settings.Languages = append([]string(nil), w.Settings.Languages...)
	cp.Settings.Templates = append([]string(nil), w.Settings.Templates...)
	if w.Settings.Temperature != nil {
		t := *w.Settings.Temperature
		cp.Settings.Temperature = &t
	}
	if w.Settings.MaxTokens != nil {
		m := *w.Settings.MaxTokens
		cp.Settings.MaxTokens = &m
	}
	if w.Metadata.Statistics != nil {
		cp.Metadata.Statistics = make(map[string]int, len(w.Metadata.Statistics))
		for lang, n := range w.Metadata.Statistics {
			cp.Metadata.Statistics[lang] = n
		}
	}
	return &cp
}

// Fail marks the wiki failed with the given cause
func (w *Wiki) Fail(err error) {
	if w.Status.Terminal() {
		return
	}
	w.Status = StatusFailed
	if err != nil {
		w.ErrorMsg = err.Error()
	}
	w.UpdatedAt = time.Now()
}

// AddPage appends a page and refreshes derived metadata
func (w *Wiki) AddPage(p *Page) {
	w.Pages = append(w.Pages, p)
	w.Metadata.PagesGenerated = len(w.Pages)
	if w.Metadata.Statistics == nil {
		w.Metadata.Statistics = make(map[string]int)
	}
	w.Metadata.Statistics[p.Language]++
	w.UpdatedAt = time.Now()
}

// DeriveID normalizes a repository URL into a package-path identifier.
// github.com and gitlab.com URLs become host/owner/repo; the reserved
// template source keeps its own namespace; anything else falls back to a
// hex encoding under unknown/.
func DeriveID(repoURL string) string {
	if repoURL == "" {
		return "unknown"
	}

	if repoURL == TemplateDocsSource {
		return TemplateDocsSource + "/example"
	}

	for _, host := range []string{"github.com", "gitlab.com"} {
		if !strings.Contains(repoURL, host) {
			continue
		}
		parts := strings.Split(strings.TrimSuffix(repoURL, "/"), "/")
		if len(parts) >= 2 {
			owner := parts[len(parts)-2]
			repo := strings.TrimSuffix(parts[len(parts)-1], ".git")
			if owner != "" && repo != "" && owner != host {
				return fmt.Sprintf("%s/%s/%s", host, strings.ToLower(owner), strings.ToLower(repo))
			}
		}
	}

	return fmt.Sprintf("unknown/%x", repoURL)
}

func deriveTitle(repoURL, id string) string {
	parts := strings.Split(id, "/")
	if len(parts) >= 3 {
		return fmt.Sprintf("%s Documentation", parts[len(parts)-1])
	}
	return fmt.Sprintf("Documentation for %s", repoURL)
}

// ReadingTime estimates reading minutes at 200 words per minute, minimum 1
func ReadingTime(wordCount int) int {
	minutes := wordCount / 200
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// WordCount counts whitespace-separated words in content
func WordCount(content string) int {
	return len(strings.Fields(content))
}
