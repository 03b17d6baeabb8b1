// Package ai provides the multi-provider text generation layer: a common
// Provider interface, adapters for OpenAI, DeepSeek, Gemini and Ollama style
// APIs, and a registry that resolves providers by name or availability.
package ai

import (
	"context"
	"time"
)

// Provider is the contract every AI backend adapter implements.
//
// Adapters are safe for concurrent use. Generate and Stream honor context
// cancellation; Available never returns an error, only a verdict.
type Provider interface {
	// Name returns the registry key for this provider (e.g. "openai")
	Name() string

	// Models lists the models this provider can serve. Adapters fall back to
	// a built-in list when the upstream listing is unreachable.
	Models(ctx context.Context) ([]ModelInfo, error)

	// Generate produces a full completion for the prompt
	Generate(ctx context.Context, prompt string, opts *GenerationOptions) (*GenerationResult, error)

	// Stream produces a completion incrementally. The returned channel is
	// closed after the final chunk; the final content-bearing state is a
	// chunk with Done set, delivered exactly once. Cancelling ctx stops the
	// stream without an error chunk.
	Stream(ctx context.Context, prompt string, opts *GenerationOptions) (<-chan StreamChunk, error)

	// Available reports whether the provider is reachable and usable
	Available(ctx context.Context) bool

	// Usage returns a snapshot of accumulated usage statistics
	Usage() Usage
}

// GenerationOptions tunes a single generation request. Nil pointer fields
// take per-provider defaults.
type GenerationOptions struct {
	Model        string         `json:"model,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty"`
	MaxTokens    *int           `json:"max_tokens,omitempty"`
	TopP         *float64       `json:"top_p,omitempty"`
	TopK         *int           `json:"top_k,omitempty"`
	Stop         []string       `json:"stop,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// GenerationResult is a completed generation
type GenerationResult struct {
	Text      string        `json:"text"`
	Model     string        `json:"model"`
	Provider  string        `json:"provider"`
	Tokens    int           `json:"tokens"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// StreamChunk is one increment of a streamed generation
type StreamChunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Err     error  `json:"-"`
}

// ModelInfo describes one model a provider can serve
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Default tuning applied when options leave fields nil
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096

	// streamIdleTimeout aborts a stream that stops producing deltas
	streamIdleTimeout = 60 * time.Second

	// availabilityTimeout bounds the probe so Available never hangs
	availabilityTimeout = 10 * time.Second
)

// temperature resolves the effective sampling temperature
func (o *GenerationOptions) temperature(fallback *float64) float64 {
	if o != nil && o.Temperature != nil {
		return *o.Temperature
	}
	if fallback != nil {
		return *fallback
	}
	return DefaultTemperature
}

// maxTokens resolves the effective completion budget. Non-positive values
// are treated as unset so a backend never sees them.
func (o *GenerationOptions) maxTokens(fallback *int) int {
	if o != nil && o.MaxTokens != nil && *o.MaxTokens > 0 {
		return *o.MaxTokens
	}
	if fallback != nil && *fallback > 0 {
		return *fallback
	}
	return DefaultMaxTokens
}

// model resolves the effective model name
func (o *GenerationOptions) model(fallback string) string {
	if o != nil && o.Model != "" {
		return o.Model
	}
	return fallback
}
