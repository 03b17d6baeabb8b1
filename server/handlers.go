package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/forgedocs/wikiforge/ai"
	"github.com/forgedocs/wikiforge/errors"
	"github.com/forgedocs/wikiforge/version"
	"github.com/forgedocs/wikiforge/wiki"
)

// handleHealth reports liveness and the set of registered providers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   version.Get(),
		"providers": s.registry.List(),
		"time":      time.Now().UTC(),
	})
}

// handleWikis lists wikis (GET) or submits a generation request (POST)
func (s *Server) handleWikis(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		wikis, err := s.store.ListWikis()
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"wikis": wikis, "total": len(wikis)})

	case http.MethodPost:
		var req wiki.GenerationRequest
		if !readJSON(w, r, &req) {
			return
		}
		if req.RepoURL == "" {
			writeError(w, http.StatusBadRequest, "repo_url is required")
			return
		}

		created, err := s.generator.GenerateWiki(&req)
		if err != nil {
			if errors.IsConflictError(err) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.log.Infow("generation accepted", "wiki", created.ID, "repo", req.RepoURL)
		writeJSON(w, http.StatusAccepted, created)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleWiki serves one wiki (GET/DELETE) or its generation logs. Wiki IDs
// contain slashes, so everything after the prefix up to a trailing /logs is
// the ID.
func (s *Server) handleWiki(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/wikis/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "wiki id is required")
		return
	}

	if rest, ok := strings.CutSuffix(id, "/logs"); ok && rest != "" {
		s.handleWikiLogs(w, r, rest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		loaded, err := s.store.LoadWiki(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, loaded)

	case http.MethodDelete:
		if s.generator.Active(id) {
			writeError(w, http.StatusConflict, "wiki is currently being generated")
			return
		}
		if err := s.store.DeleteWiki(id); err != nil {
			writeDomainError(w, err)
			return
		}
		s.log.Infow("wiki deleted", "wiki", id)
		writeJSON(w, http.StatusOK, map[string]string{"deleted": id})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleWikiLogs returns the retained generation log lines for a wiki
func (s *Server) handleWikiLogs(w http.ResponseWriter, r *http.Request, id string) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	lines := s.generator.JobLogs(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"wiki_id": id,
		"logs":    lines,
		"active":  s.generator.Active(id),
	})
}

// handleModels returns the union of models across available providers
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	models := s.registry.AllModels(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"models": models, "total": len(models)})
}

// providerStatus is one row of the provider listing
type providerStatus struct {
	Name      string   `json:"name"`
	Available bool     `json:"available"`
	Usage     ai.Usage `json:"usage"`
}

// handleProviders reports availability and usage per registered provider
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}

	usage := s.registry.UsageReport()
	out := make([]providerStatus, 0)
	for _, name := range s.registry.List() {
		p, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		out = append(out, providerStatus{
			Name:      name,
			Available: p.Available(r.Context()),
			Usage:     usage[name],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

// handleUsage aggregates persisted usage over the last 30 days
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	if s.tracker == nil {
		writeError(w, http.StatusNotFound, "usage tracking is disabled")
		return
	}

	since := time.Now().AddDate(0, 0, -30)
	stats, err := s.tracker.GetStats(since)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	breakdown, err := s.tracker.GetBreakdown(since)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":     since,
		"stats":     stats,
		"breakdown": breakdown,
	})
}
