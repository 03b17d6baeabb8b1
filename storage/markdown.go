// Package storage persists generated wikis as markdown trees: one directory
// per wiki with an index.json plus per-language page files carrying YAML
// front matter.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgedocs/wikiforge/errors"
	"github.com/forgedocs/wikiforge/logger"
	"github.com/forgedocs/wikiforge/wiki"
	"go.uber.org/zap"
)

const (
	indexFile = "index.json"
	logFile   = "generation.log"
	dirPerm   = 0o755
	filePerm  = 0o644
)

// MarkdownStore writes wikis under a root directory
type MarkdownStore struct {
	root string
	log  *zap.SugaredLogger
}

// NewMarkdownStore creates a store rooted at dir, creating it if needed
func NewMarkdownStore(dir string) (*MarkdownStore, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.Wrapf(err, "failed to create storage root %s", dir)
	}
	return &MarkdownStore{
		root: dir,
		log:  logger.ComponentLogger("storage"),
	}, nil
}

// wikiDir maps a wiki ID like github.com/owner/repo to a directory path.
// Path separators in the ID become real directories; anything hostile to a
// filesystem is replaced.
func (s *MarkdownStore) wikiDir(id string) string {
	parts := strings.Split(id, "/")
	for i, part := range parts {
		parts[i] = sanitizeSegment(part)
	}
	return filepath.Join(append([]string{s.root}, parts...)...)
}

func sanitizeSegment(segment string) string {
	replacer := strings.NewReplacer(
		"..", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	cleaned := replacer.Replace(segment)
	if cleaned == "" {
		return "_"
	}
	return cleaned
}

// SaveWiki writes the wiki's metadata and all pages. The index is written
// atomically via temp file and rename so readers never see a torn index.
func (s *MarkdownStore) SaveWiki(w *wiki.Wiki) error {
	dir := s.wikiDir(w.ID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errors.Wrapf(err, "failed to create wiki directory %s", dir)
	}

	for _, page := range w.Pages {
		if err := s.savePage(dir, page); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode wiki index")
	}

	tmp := filepath.Join(dir, indexFile+".tmp")
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, filepath.Join(dir, indexFile)); err != nil {
		return errors.Wrap(err, "failed to publish wiki index")
	}

	s.log.Debugw("Saved wiki", logger.FieldWikiID, w.ID, logger.FieldCount, len(w.Pages))
	return nil
}

// AppendLog appends generation log lines to the wiki's plain-text log file
func (s *MarkdownStore) AppendLog(id string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	dir := s.wikiDir(id)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errors.Wrapf(err, "failed to create wiki directory %s", dir)
	}

	f, err := os.OpenFile(filepath.Join(dir, logFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return errors.Wrap(err, "failed to open generation log")
	}
	defer f.Close()

	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		return errors.Wrap(err, "failed to append generation log")
	}
	return nil
}

func (s *MarkdownStore) savePage(dir string, page *wiki.Page) error {
	language := page.Language
	if language == "" {
		language = "en"
	}
	langDir := filepath.Join(dir, language)
	if err := os.MkdirAll(langDir, dirPerm); err != nil {
		return errors.Wrapf(err, "failed to create language directory %s", langDir)
	}

	path := filepath.Join(langDir, sanitizeSegment(page.ID)+".md")
	content := renderPage(page)
	if err := os.WriteFile(path, []byte(content), filePerm); err != nil {
		return errors.Wrapf(err, "failed to write page %s", path)
	}
	return nil
}

// renderPage serializes a page as markdown with YAML front matter
func renderPage(page *wiki.Page) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", page.ID)
	fmt.Fprintf(&b, "title: %q\n", page.Title)
	fmt.Fprintf(&b, "type: %s\n", page.Type)
	fmt.Fprintf(&b, "language: %s\n", page.Language)
	fmt.Fprintf(&b, "order: %d\n", page.Order)
	fmt.Fprintf(&b, "word_count: %d\n", page.WordCount)
	fmt.Fprintf(&b, "reading_time: %d\n", page.ReadingTime)
	b.WriteString("---\n\n")
	b.WriteString(page.Content)
	return b.String()
}

// LoadWiki reads a wiki back from its index
func (s *MarkdownStore) LoadWiki(id string) (*wiki.Wiki, error) {
	path := filepath.Join(s.wikiDir(id), indexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("wiki %s not stored", id)
		}
		return nil, errors.Wrapf(err, "failed to read wiki index %s", path)
	}

	var w wiki.Wiki
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrapf(err, "corrupt wiki index %s", path)
	}
	return &w, nil
}

// ListWikis loads every stored wiki, sorted by ID
func (s *MarkdownStore) ListWikis() ([]*wiki.Wiki, error) {
	var wikis []*wiki.Wiki

	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != indexFile {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var w wiki.Wiki
		if err := json.Unmarshal(data, &w); err != nil {
			// Skip corrupt entries rather than failing the listing
			s.log.Warnw("Skipping corrupt wiki index", logger.FieldPath, path, logger.FieldError, err.Error())
			return nil
		}
		wikis = append(wikis, &w)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to walk storage root")
	}

	sort.Slice(wikis, func(i, j int) bool { return wikis[i].ID < wikis[j].ID })
	return wikis, nil
}

// DeleteWiki removes a stored wiki and its pages
func (s *MarkdownStore) DeleteWiki(id string) error {
	dir := s.wikiDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errors.NewNotFoundError("wiki %s not stored", id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "failed to delete wiki %s", id)
	}
	s.log.Infow("Deleted wiki", logger.FieldWikiID, id)
	return nil
}
