package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/forgedocs/wikiforge/config"
	"github.com/forgedocs/wikiforge/errors"
	"github.com/forgedocs/wikiforge/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ollamaProvider talks to a local Ollama daemon. No auth; streaming is
// newline-delimited JSON objects with a done flag instead of SSE.
type ollamaProvider struct {
	baseURL      string
	defaultModel string
	temperature  *float64
	maxTokens    *int

	client  *http.Client
	limiter *rate.Limiter
	usage   usageRecorder
	log     *zap.SugaredLogger
}

var _ Provider = (*ollamaProvider)(nil)

// ollamaFallbackModels is returned when the daemon's tag listing fails
var ollamaFallbackModels = []string{
	"llama3.2:3b",
	"llama3.1:8b",
	"mistral:7b",
	"qwen2.5-coder:7b",
	"gemma2:9b",
}

// NewOllama constructs the Ollama adapter from its config section
func NewOllama(cfg config.ProviderConfig) Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.2:3b"
	}
	return &ollamaProvider{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		// Local models can be slow to first token; generous default
		client:  &http.Client{Timeout: timeoutOrDefault(cfg.TimeoutSeconds, 600)},
		limiter: newLimiter(cfg.RPS),
		log:     logger.ComponentLogger("ai.ollama"),
	}
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) buildRequest(prompt string, opts *GenerationOptions, stream bool) *ollamaRequest {
	req := &ollamaRequest{
		Model:  opts.model(p.defaultModel),
		Prompt: prompt,
		Stream: stream,
		Options: ollamaOptions{
			Temperature: opts.temperature(p.temperature),
			NumPredict:  opts.maxTokens(p.maxTokens),
		},
	}
	if opts != nil {
		req.System = opts.SystemPrompt
		req.Options.TopP = opts.TopP
		req.Options.TopK = opts.TopK
		req.Options.Stop = opts.Stop
	}
	return req
}

func (p *ollamaProvider) post(ctx context.Context, payload *ollamaRequest) (*http.Response, error) {
	if err := waitLimiter(ctx, p.limiter); err != nil {
		return nil, errors.Wrap(err, "rate limiter interrupted")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransport("ollama", err)
	}
	return resp, nil
}

func (p *ollamaProvider) Generate(ctx context.Context, prompt string, opts *GenerationOptions) (*GenerationResult, error) {
	start := time.Now()
	genReq := p.buildRequest(prompt, opts, false)

	resp, err := p.post(ctx, genReq)
	if err != nil {
		p.usage.recordError()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.usage.recordError()
		return nil, classifyStatus("ollama", resp.StatusCode, string(body))
	}

	var genResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		p.usage.recordError()
		return nil, errors.Wrapf(errors.ErrBadResponse, "ollama sent undecodable body: %v", err)
	}

	tokens := genResp.PromptEvalCount + genResp.EvalCount
	if tokens == 0 {
		tokens = estimateTokens(genResp.Response)
	}
	duration := time.Since(start)
	p.usage.recordSuccess(duration, tokens, 0)

	return &GenerationResult{
		Text:      genResp.Response,
		Model:     genReq.Model,
		Provider:  "ollama",
		Tokens:    tokens,
		Duration:  duration,
		CreatedAt: time.Now(),
	}, nil
}

func (p *ollamaProvider) Stream(ctx context.Context, prompt string, opts *GenerationOptions) (<-chan StreamChunk, error) {
	genReq := p.buildRequest(prompt, opts, true)

	streamCtx, cancel := context.WithCancel(ctx)
	resp, err := p.post(streamCtx, genReq)
	if err != nil {
		cancel()
		p.usage.recordError()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		p.usage.recordError()
		return nil, classifyStatus("ollama", resp.StatusCode, string(body))
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer cancel()
		defer resp.Body.Close()

		start := time.Now()
		var accumulated strings.Builder
		var tokens int
		var sawDone bool
		var idleFired atomic.Bool
		idle := time.AfterFunc(streamIdleTimeout, func() {
			idleFired.Store(true)
			cancel()
		})
		defer idle.Stop()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var scanErr error
	scan:
		for scanner.Scan() {
			idle.Reset(streamIdleTimeout)

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var chunk ollamaResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				// Skip malformed lines, keep the stream alive
				continue
			}

			if chunk.Response != "" {
				accumulated.WriteString(chunk.Response)
				select {
				case out <- StreamChunk{Content: chunk.Response}:
				case <-ctx.Done():
					break scan
				}
			}
			if chunk.Done {
				sawDone = true
				tokens = chunk.PromptEvalCount + chunk.EvalCount
				break
			}
		}
		if !sawDone {
			scanErr = scanner.Err()
		}
		if tokens == 0 {
			tokens = estimateTokens(accumulated.String())
		}

		switch {
		case ctx.Err() != nil:
			// Consumer stopped early: not an error, keep what was produced
			p.usage.recordSuccess(time.Since(start), tokens, 0)
		case idleFired.Load():
			p.usage.recordError()
			out <- StreamChunk{Done: true, Err: errors.Wrapf(errors.ErrTimeout, "ollama stream produced no deltas for %s", streamIdleTimeout)}
		case scanErr != nil:
			p.usage.recordError()
			out <- StreamChunk{Done: true, Err: classifyTransport("ollama", scanErr)}
		default:
			p.usage.recordSuccess(time.Since(start), tokens, 0)
			out <- StreamChunk{Done: true}
		}
	}()

	return out, nil
}

func (p *ollamaProvider) Models(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return p.fallback(), nil
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debugw("Tag listing unreachable, using fallback", logger.FieldError, err.Error())
		return p.fallback(), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return p.fallback(), nil
	}

	var listing struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil || len(listing.Models) == 0 {
		return p.fallback(), nil
	}

	models := make([]ModelInfo, 0, len(listing.Models))
	for _, m := range listing.Models {
		models = append(models, ModelInfo{ID: m.Name, Name: m.Name, Provider: "ollama"})
	}
	return models, nil
}

func (p *ollamaProvider) fallback() []ModelInfo {
	models := make([]ModelInfo, 0, len(ollamaFallbackModels))
	for _, id := range ollamaFallbackModels {
		models = append(models, ModelInfo{ID: id, Name: id, Provider: "ollama"})
	}
	return models
}

func (p *ollamaProvider) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *ollamaProvider) Usage() Usage {
	return p.usage.snapshot()
}
