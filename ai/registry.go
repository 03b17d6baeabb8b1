package ai

import (
	"context"
	"sync"

	"github.com/forgedocs/wikiforge/config"
	"github.com/forgedocs/wikiforge/errors"
	"github.com/forgedocs/wikiforge/logger"
	"go.uber.org/zap"
)

// Registry resolves providers by name and picks a default when callers don't
// care which backend serves them.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	order       []string // registration order, drives default fallback
	defaultName string

	log *zap.SugaredLogger
}

// NewRegistry creates an empty registry. defaultName may be empty; the first
// available provider then serves as the default.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		defaultName: defaultName,
		log:         logger.ComponentLogger("ai.registry"),
	}
}

// NewRegistryFromConfig builds a registry with adapters for every enabled
// provider section.
func NewRegistryFromConfig(cfg *config.Config) *Registry {
	r := NewRegistry(cfg.Generation.DefaultProvider)

	if cfg.Providers.OpenAI.Enabled() && cfg.Providers.OpenAI.APIKey != "" {
		r.Register(NewOpenAI(cfg.Providers.OpenAI))
	}
	if cfg.Providers.DeepSeek.Enabled() && cfg.Providers.DeepSeek.APIKey != "" {
		r.Register(NewDeepSeek(cfg.Providers.DeepSeek))
	}
	if cfg.Providers.Gemini.Enabled() && cfg.Providers.Gemini.APIKey != "" {
		r.Register(NewGemini(cfg.Providers.Gemini))
	}
	if cfg.Providers.Ollama.Enabled() {
		r.Register(NewOllama(cfg.Providers.Ollama))
	}

	return r
}

// Register adds a provider under its name. Re-registering a name replaces
// the previous adapter without changing its position in the fallback order.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
	r.log.Infow("Registered provider", logger.FieldProvider, name)
}

// Get returns the provider registered under name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrProviderNotFound, "no provider registered as %q (have %v)", name, r.order)
	}
	return p, nil
}

// Default resolves the provider to use when a request names none: the
// configured default if it is registered and available, otherwise the first
// available provider in registration order.
func (r *Registry) Default(ctx context.Context) (Provider, error) {
	r.mu.RLock()
	configured := r.providers[r.defaultName]
	order := make([]string, len(r.order))
	copy(order, r.order)
	providers := make(map[string]Provider, len(r.providers))
	for k, v := range r.providers {
		providers[k] = v
	}
	r.mu.RUnlock()

	if configured != nil && configured.Available(ctx) {
		return configured, nil
	}

	for _, name := range order {
		if name == r.defaultName {
			continue
		}
		if p := providers[name]; p.Available(ctx) {
			r.log.Debugw("Default provider unavailable, falling back", logger.FieldProvider, name)
			return p, nil
		}
	}

	return nil, errors.Wrap(errors.ErrNoAvailableProvider, "all registered providers are unreachable")
}

// Resolve returns the named provider, or the default when name is empty
func (r *Registry) Resolve(ctx context.Context, name string) (Provider, error) {
	if name == "" {
		return r.Default(ctx)
	}
	return r.Get(name)
}

// SetDefault changes the preferred provider name. The name does not need to
// be registered yet; Default falls back when it is missing or unavailable.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

// Available returns the registered providers that currently answer their
// availability probe, in registration order.
func (r *Registry) Available(ctx context.Context) []Provider {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		providers = append(providers, r.providers[name])
	}
	r.mu.RUnlock()

	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.Available(ctx) {
			out = append(out, p)
		}
	}
	return out
}

// List returns registered provider names in registration order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// AllModels unions the models of every available provider
func (r *Registry) AllModels(ctx context.Context) []ModelInfo {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		providers = append(providers, r.providers[name])
	}
	r.mu.RUnlock()

	var all []ModelInfo
	for _, p := range providers {
		if !p.Available(ctx) {
			continue
		}
		models, err := p.Models(ctx)
		if err != nil {
			r.log.Warnw("Failed to list models", logger.FieldProvider, p.Name(), logger.FieldError, err.Error())
			continue
		}
		all = append(all, models...)
	}
	return all
}

// UsageReport snapshots usage statistics for every registered provider
func (r *Registry) UsageReport() map[string]Usage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := make(map[string]Usage, len(r.providers))
	for name, p := range r.providers {
		report[name] = p.Usage()
	}
	return report
}
