package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	// Generation defaults
	v.SetDefault("generation.default_provider", "ollama")
	v.SetDefault("generation.default_languages", []string{"en"})
	v.SetDefault("generation.page_workers", 2)
	v.SetDefault("generation.progress_buffer", 100)
	v.SetDefault("generation.max_job_log_lines", 100)
	v.SetDefault("generation.max_tracked_jobs", 256)

	// Storage defaults
	v.SetDefault("storage.dir", "wikis")
	v.SetDefault("storage.usage_db", "wikiforge.db")
	v.SetDefault("storage.track_cost", true)

	// Provider defaults. API keys come from the environment, never from here.
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.openai.timeout_seconds", 120)

	v.SetDefault("providers.deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("providers.deepseek.model", "deepseek-chat")
	v.SetDefault("providers.deepseek.timeout_seconds", 120)

	v.SetDefault("providers.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("providers.gemini.model", "gemini-1.5-flash")
	v.SetDefault("providers.gemini.timeout_seconds", 120)

	v.SetDefault("providers.ollama.base_url", "http://localhost:11434")
	v.SetDefault("providers.ollama.model", "llama3.2:3b")
	v.SetDefault("providers.ollama.timeout_seconds", 600)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("providers.openai.api_key", "WIKIFORGE_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("providers.deepseek.api_key", "WIKIFORGE_DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY")
	v.BindEnv("providers.gemini.api_key", "WIKIFORGE_GEMINI_API_KEY", "GEMINI_API_KEY")
}
