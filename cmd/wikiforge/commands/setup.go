package commands

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/forgedocs/wikiforge/ai"
	"github.com/forgedocs/wikiforge/ai/tracker"
	"github.com/forgedocs/wikiforge/config"
	"github.com/forgedocs/wikiforge/errors"
	"github.com/forgedocs/wikiforge/generator"
	"github.com/forgedocs/wikiforge/logger"
	"github.com/forgedocs/wikiforge/storage"
)

// stack bundles the wired application components commands run against
type stack struct {
	cfg       *config.Config
	registry  *ai.Registry
	store     *storage.MarkdownStore
	tracker   *tracker.Tracker
	generator *generator.Generator
	db        *sql.DB
}

// buildStack loads config and assembles storage, providers and the generator
func buildStack() (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	store, err := storage.NewMarkdownStore(cfg.Storage.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open wiki storage")
	}

	registry := ai.NewRegistryFromConfig(cfg)
	if len(registry.List()) == 0 {
		logger.Warnw("no AI providers configured",
			"hint", "set OPENAI_API_KEY, DEEPSEEK_API_KEY, GEMINI_API_KEY or run Ollama locally")
	}

	s := &stack{cfg: cfg, registry: registry, store: store}

	if cfg.Storage.TrackCost && cfg.Storage.UsageDB != "" {
		db, err := sql.Open("sqlite3", cfg.Storage.UsageDB)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open usage database")
		}
		tr := tracker.New(db)
		if err := tr.Migrate(); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to migrate usage database")
		}
		s.db = db
		s.tracker = tr
	}

	s.generator = generator.New(cfg.Generation, registry, store, s.tracker)
	return s, nil
}

// close releases resources held by the stack
func (s *stack) close() {
	if s.db != nil {
		s.db.Close()
	}
}
