package config

import "github.com/forgedocs/wikiforge/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.New("server.port cannot be 0 (omit for default port 8912)")
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}

	// Page workers: 0 = use default, negative = invalid
	if c.Generation.PageWorkers < 0 {
		return errors.Newf("generation.page_workers must be >= 0, got %d", c.Generation.PageWorkers)
	}
	if c.Generation.ProgressBuffer < 0 {
		return errors.Newf("generation.progress_buffer must be >= 0, got %d", c.Generation.ProgressBuffer)
	}
	if c.Generation.MaxJobLogLines < 0 {
		return errors.Newf("generation.max_job_log_lines must be >= 0, got %d", c.Generation.MaxJobLogLines)
	}
	if c.Generation.MaxTrackedJobs < 0 {
		return errors.Newf("generation.max_tracked_jobs must be >= 0, got %d", c.Generation.MaxTrackedJobs)
	}

	for name, p := range map[string]ProviderConfig{
		"openai":   c.Providers.OpenAI,
		"deepseek": c.Providers.DeepSeek,
		"gemini":   c.Providers.Gemini,
		"ollama":   c.Providers.Ollama,
	} {
		if p.TimeoutSeconds < 0 {
			return errors.Newf("providers.%s.timeout_seconds must be >= 0, got %d", name, p.TimeoutSeconds)
		}
		if p.RPS < 0 {
			return errors.Newf("providers.%s.rps must be >= 0, got %f", name, p.RPS)
		}
		if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
			return errors.Newf("providers.%s.temperature must be in [0, 2], got %f", name, *p.Temperature)
		}
		if p.MaxTokens != nil && *p.MaxTokens <= 0 {
			return errors.Newf("providers.%s.max_tokens must be > 0, got %d (omit for default)", name, *p.MaxTokens)
		}
	}

	return nil
}
