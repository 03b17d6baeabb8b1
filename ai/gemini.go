package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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

// geminiProvider talks to the Generative Language REST API. The key travels
// as a query parameter, prompts as contents/parts, and streaming reuses SSE
// with full response objects per event and no [DONE] sentinel.
type geminiProvider struct {
	apiKey       string
	baseURL      string
	defaultModel string
	temperature  *float64
	maxTokens    *int

	client  *http.Client
	limiter *rate.Limiter
	usage   usageRecorder
	log     *zap.SugaredLogger
}

var _ Provider = (*geminiProvider)(nil)

var geminiFallbackModels = []string{
	"gemini-1.5-pro",
	"gemini-1.5-flash",
	"gemini-1.5-flash-8b",
}

// NewGemini constructs the Gemini adapter from its config section
func NewGemini(cfg config.ProviderConfig) Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &geminiProvider{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		client:       &http.Client{Timeout: timeoutOrDefault(cfg.TimeoutSeconds, 120)},
		limiter:      newLimiter(cfg.RPS),
		log:          logger.ComponentLogger("ai.gemini"),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64  `json:"temperature"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// text flattens the first candidate's parts
func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func (p *geminiProvider) Name() string { return "gemini" }

func (p *geminiProvider) buildRequest(prompt string, opts *GenerationOptions) (*geminiRequest, string) {
	req := &geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     opts.temperature(p.temperature),
			MaxOutputTokens: opts.maxTokens(p.maxTokens),
		},
	}
	if opts != nil {
		if opts.SystemPrompt != "" {
			req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: opts.SystemPrompt}}}
		}
		req.GenerationConfig.TopP = opts.TopP
		req.GenerationConfig.TopK = opts.TopK
		req.GenerationConfig.StopSequences = opts.Stop
	}
	return req, opts.model(p.defaultModel)
}

func (p *geminiProvider) post(ctx context.Context, url string, payload *geminiRequest) (*http.Response, error) {
	if err := waitLimiter(ctx, p.limiter); err != nil {
		return nil, errors.Wrap(err, "rate limiter interrupted")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransport("gemini", err)
	}
	return resp, nil
}

func (p *geminiProvider) Generate(ctx context.Context, prompt string, opts *GenerationOptions) (*GenerationResult, error) {
	start := time.Now()
	genReq, model := p.buildRequest(prompt, opts)
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)

	resp, err := p.post(ctx, url, genReq)
	if err != nil {
		p.usage.recordError()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.usage.recordError()
		return nil, classifyStatus("gemini", resp.StatusCode, string(body))
	}

	var genResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		p.usage.recordError()
		return nil, errors.Wrapf(errors.ErrBadResponse, "gemini sent undecodable body: %v", err)
	}
	// Zero candidates is a degenerate but valid response, not an error
	if len(genResp.Candidates) == 0 {
		p.log.Warnw("Response carried no candidates, returning empty text")
	}
	text := genResp.text()
	tokens := genResp.UsageMetadata.TotalTokenCount
	if tokens == 0 {
		tokens = estimateTokens(text)
	}
	duration := time.Since(start)
	p.usage.recordSuccess(duration, tokens, 0)

	return &GenerationResult{
		Text:      text,
		Model:     model,
		Provider:  "gemini",
		Tokens:    tokens,
		Duration:  duration,
		CreatedAt: time.Now(),
	}, nil
}

func (p *geminiProvider) Stream(ctx context.Context, prompt string, opts *GenerationOptions) (<-chan StreamChunk, error) {
	genReq, model := p.buildRequest(prompt, opts)
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", p.baseURL, model, p.apiKey)

	streamCtx, cancel := context.WithCancel(ctx)
	resp, err := p.post(streamCtx, url, genReq)
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
		return nil, classifyStatus("gemini", resp.StatusCode, string(body))
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

		// Each SSE event is a complete response object; the stream just ends
		// when generation finishes, there is no sentinel
		scanErr := scanSSE(resp.Body, func(data string) bool {
			idle.Reset(streamIdleTimeout)

			var chunk geminiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return true
			}
			delta := chunk.text()
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
			p.usage.recordSuccess(time.Since(start), tokens, 0)
		case idleFired.Load():
			p.usage.recordError()
			out <- StreamChunk{Done: true, Err: errors.Wrapf(errors.ErrTimeout, "gemini stream produced no deltas for %s", streamIdleTimeout)}
		case scanErr != nil:
			p.usage.recordError()
			out <- StreamChunk{Done: true, Err: classifyTransport("gemini", scanErr)}
		default:
			p.usage.recordSuccess(time.Since(start), tokens, 0)
			out <- StreamChunk{Done: true}
		}
	}()

	return out, nil
}

func (p *geminiProvider) Models(ctx context.Context) ([]ModelInfo, error) {
	url := fmt.Sprintf("%s/models?key=%s", p.baseURL, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return p.fallback(), nil
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debugw("Model listing unreachable, using fallback", logger.FieldError, err.Error())
		return p.fallback(), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return p.fallback(), nil
	}

	var listing struct {
		Models []struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil || len(listing.Models) == 0 {
		return p.fallback(), nil
	}

	models := make([]ModelInfo, 0, len(listing.Models))
	for _, m := range listing.Models {
		id := strings.TrimPrefix(m.Name, "models/")
		name := m.DisplayName
		if name == "" {
			name = id
		}
		models = append(models, ModelInfo{ID: id, Name: name, Provider: "gemini"})
	}
	return models, nil
}

func (p *geminiProvider) fallback() []ModelInfo {
	models := make([]ModelInfo, 0, len(geminiFallbackModels))
	for _, id := range geminiFallbackModels {
		models = append(models, ModelInfo{ID: id, Name: id, Provider: "gemini"})
	}
	return models
}

func (p *geminiProvider) Available(ctx context.Context) bool {
	if p.apiKey == "" {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/models?key=%s", p.baseURL, p.apiKey)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
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

func (p *geminiProvider) Usage() Usage {
	return p.usage.snapshot()
}
