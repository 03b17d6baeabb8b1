package ai

import (
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

// chatProvider implements Provider against the OpenAI chat-completions wire
// dialect. OpenAI and DeepSeek both speak it; they differ only in endpoint,
// defaults, pricing and how reasoning models report content.
type chatProvider struct {
	name         string
	apiKey       string
	baseURL      string
	defaultModel string
	temperature  *float64
	maxTokens    *int

	client  *http.Client
	limiter *rate.Limiter
	usage   usageRecorder

	// pricing maps model name prefixes to USD per 1K tokens. Models without
	// an entry accrue zero cost.
	pricing map[string]float64

	// fallbackModels is returned when the upstream listing is unreachable
	fallbackModels []string

	// reasoningContent tolerates reasoning models that put their answer in
	// reasoning_content and leave content empty
	reasoningContent bool

	log *zap.SugaredLogger
}

var _ Provider = (*chatProvider)(nil)

// NewOpenAI constructs the OpenAI adapter from its config section
func NewOpenAI(cfg config.ProviderConfig) Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &chatProvider{
		name:         "openai",
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		client:       &http.Client{Timeout: timeoutOrDefault(cfg.TimeoutSeconds, 120)},
		limiter:      newLimiter(cfg.RPS),
		pricing: map[string]float64{
			"gpt-4o":      0.0075,
			"gpt-4o-mini": 0.000375,
			"gpt-4-turbo": 0.02,
			"gpt-3.5":     0.001,
		},
		fallbackModels:   []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
		reasoningContent: false,
		log:              logger.ComponentLogger("ai.openai"),
	}
}

// NewDeepSeek constructs the DeepSeek adapter. Same wire dialect as OpenAI
// with the DeepSeek endpoint and reasoning-model content fallback.
func NewDeepSeek(cfg config.ProviderConfig) Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.deepseek.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "deepseek-chat"
	}
	return &chatProvider{
		name:         "deepseek",
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		client:       &http.Client{Timeout: timeoutOrDefault(cfg.TimeoutSeconds, 120)},
		limiter:      newLimiter(cfg.RPS),
		pricing: map[string]float64{
			"deepseek-chat":     0.00042,
			"deepseek-reasoner": 0.00219,
		},
		fallbackModels:   []string{"deepseek-chat", "deepseek-reasoner"},
		reasoningContent: true,
		log:              logger.ComponentLogger("ai.deepseek"),
	}
}

func timeoutOrDefault(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

// Wire types for the chat-completions dialect

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *chatProvider) Name() string { return p.name }

func (p *chatProvider) buildRequest(prompt string, opts *GenerationOptions, stream bool) *chatRequest {
	messages := make([]chatMessage, 0, 2)
	if opts != nil && opts.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	req := &chatRequest{
		Model:       opts.model(p.defaultModel),
		Messages:    messages,
		Temperature: opts.temperature(p.temperature),
		MaxTokens:   opts.maxTokens(p.maxTokens),
		Stream:      stream,
	}
	if opts != nil {
		req.TopP = opts.TopP
		req.Stop = opts.Stop
	}
	return req
}

func (p *chatProvider) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	if err := waitLimiter(ctx, p.limiter); err != nil {
		return nil, errors.Wrap(err, "rate limiter interrupted")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransport(p.name, err)
	}
	return resp, nil
}

func (p *chatProvider) Generate(ctx context.Context, prompt string, opts *GenerationOptions) (*GenerationResult, error) {
	start := time.Now()
	chatReq := p.buildRequest(prompt, opts, false)

	resp, err := p.post(ctx, "/chat/completions", chatReq)
	if err != nil {
		p.usage.recordError()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.usage.recordError()
		return nil, classifyStatus(p.name, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		p.usage.recordError()
		return nil, errors.Wrapf(errors.ErrBadResponse, "%s sent undecodable body: %v", p.name, err)
	}
	// Zero choices is a degenerate but valid response, not an error
	var text string
	if len(chatResp.Choices) > 0 {
		text = chatResp.Choices[0].Message.Content
		if text == "" && p.reasoningContent {
			// Reasoner models can finish with the answer in reasoning_content
			text = chatResp.Choices[0].Message.ReasoningContent
		}
	} else {
		p.log.Warnw("Response carried no choices, returning empty text")
	}

	tokens := chatResp.Usage.TotalTokens
	if tokens == 0 {
		tokens = estimateTokens(text)
	}
	duration := time.Since(start)
	p.usage.recordSuccess(duration, tokens, p.cost(chatReq.Model, tokens))

	return &GenerationResult{
		Text:      text,
		Model:     chatReq.Model,
		Provider:  p.name,
		Tokens:    tokens,
		Duration:  duration,
		CreatedAt: time.Now(),
	}, nil
}

func (p *chatProvider) Stream(ctx context.Context, prompt string, opts *GenerationOptions) (<-chan StreamChunk, error) {
	chatReq := p.buildRequest(prompt, opts, true)

	streamCtx, cancel := context.WithCancel(ctx)
	resp, err := p.post(streamCtx, "/chat/completions", chatReq)
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
		return nil, classifyStatus(p.name, resp.StatusCode, string(body))
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer cancel()
		defer resp.Body.Close()

		start := time.Now()
		var accumulated strings.Builder
		var idleFired atomic.Bool
		idle := time.AfterFunc(streamIdleTimeout, func() {
			idleFired.Store(true)
			cancel()
		})
		defer idle.Stop()

		scanErr := scanSSE(resp.Body, func(data string) bool {
			idle.Reset(streamIdleTimeout)

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// Skip malformed events, keep the stream alive
				return true
			}
			if len(chunk.Choices) == 0 {
				return true
			}

			delta := chunk.Choices[0].Delta.Content
			if delta == "" && p.reasoningContent {
				delta = chunk.Choices[0].Delta.ReasoningContent
			}
			if delta == "" {
				return true
			}

			accumulated.WriteString(delta)
			select {
			case out <- StreamChunk{Content: delta}:
				return true
			case <-ctx.Done():
				return false
			}
		})

		tokens := estimateTokens(accumulated.String())
		switch {
		case ctx.Err() != nil:
			// Consumer stopped early: not an error, keep what was produced
			p.usage.recordSuccess(time.Since(start), tokens, p.cost(chatReq.Model, tokens))
		case idleFired.Load():
			p.usage.recordError()
			out <- StreamChunk{Done: true, Err: errors.Wrapf(errors.ErrTimeout, "%s stream produced no deltas for %s", p.name, streamIdleTimeout)}
		case scanErr != nil:
			p.usage.recordError()
			out <- StreamChunk{Done: true, Err: classifyTransport(p.name, scanErr)}
		default:
			p.usage.recordSuccess(time.Since(start), tokens, p.cost(chatReq.Model, tokens))
			out <- StreamChunk{Done: true}
		}
	}()

	return out, nil
}

func (p *chatProvider) Models(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return p.fallback(), nil
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debugw("Model listing unreachable, using fallback", logger.FieldError, err.Error())
		return p.fallback(), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.log.Debugw("Model listing rejected, using fallback", logger.FieldStatus, resp.StatusCode)
		return p.fallback(), nil
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil || len(listing.Data) == 0 {
		return p.fallback(), nil
	}

	models := make([]ModelInfo, 0, len(listing.Data))
	for _, m := range listing.Data {
		models = append(models, ModelInfo{ID: m.ID, Name: m.ID, Provider: p.name})
	}
	return models, nil
}

func (p *chatProvider) fallback() []ModelInfo {
	models := make([]ModelInfo, 0, len(p.fallbackModels))
	for _, id := range p.fallbackModels {
		models = append(models, ModelInfo{ID: id, Name: id, Provider: p.name})
	}
	return models
}

func (p *chatProvider) Available(ctx context.Context) bool {
	if p.apiKey == "" {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *chatProvider) Usage() Usage {
	return p.usage.snapshot()
}

// cost computes USD for a request by model prefix, zero when unpriced.
// The longest matching prefix wins so gpt-4o-mini doesn't price as gpt-4o.
func (p *chatProvider) cost(model string, tokens int) float64 {
	bestLen := -1
	var perThousand float64
	for prefix, price := range p.pricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			perThousand = price
		}
	}
	if bestLen < 0 {
		return 0
	}
	return float64(tokens) / 1000 * perThousand
}
