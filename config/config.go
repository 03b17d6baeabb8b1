package config

// Config represents the core WikiForge configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Generation GenerationConfig `mapstructure:"generation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
}

// ServerConfig configures the WikiForge web server
type ServerConfig struct {
	Port           *int     `mapstructure:"port"` // Server port: nil = default 8912, 0 is invalid (omit for default)
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Server port constants
const (
	DefaultServerPort = 8912
)

// GenerationConfig configures the wiki generation orchestrator
type GenerationConfig struct {
	DefaultProvider  string   `mapstructure:"default_provider"`  // Provider used when a request names none
	DefaultLanguages []string `mapstructure:"default_languages"` // Languages generated when a request names none
	PageWorkers      int      `mapstructure:"page_workers"`      // Concurrent page generations per language (default: 2)
	ProgressBuffer   int      `mapstructure:"progress_buffer"`   // Progress channel capacity (default: 100)
	MaxJobLogLines   int      `mapstructure:"max_job_log_lines"` // Per-job log ring size (default: 100)
	MaxTrackedJobs   int      `mapstructure:"max_tracked_jobs"`  // Finished jobs whose logs stay in memory (default: 256)
}

// StorageConfig configures wiki persistence
type StorageConfig struct {
	Dir       string `mapstructure:"dir"`        // Root directory for generated wikis
	UsageDB   string `mapstructure:"usage_db"`   // SQLite path for provider usage tracking
	TrackCost bool   `mapstructure:"track_cost"` // Record per-request usage rows
}

// ProvidersConfig holds one section per supported provider
type ProvidersConfig struct {
	OpenAI   ProviderConfig `mapstructure:"openai"`
	DeepSeek ProviderConfig `mapstructure:"deepseek"`
	Gemini   ProviderConfig `mapstructure:"gemini"`
	Ollama   ProviderConfig `mapstructure:"ollama"`
}

// ProviderConfig configures a single AI provider adapter
type ProviderConfig struct {
	APIKey         string   `mapstructure:"api_key"`         // Provider API key (empty for local providers)
	BaseURL        string   `mapstructure:"base_url"`        // Override the provider endpoint
	Model          string   `mapstructure:"model"`           // Default model for this provider
	Temperature    *float64 `mapstructure:"temperature"`     // Sampling temperature (nil = provider default)
	MaxTokens      *int     `mapstructure:"max_tokens"`      // Maximum tokens per request (nil = provider default)
	TimeoutSeconds int      `mapstructure:"timeout_seconds"` // Request timeout in seconds
	RPS            float64  `mapstructure:"rps"`             // Client-side requests per second (0 = unlimited)
}

// Enabled reports whether the provider section carries enough configuration
// to construct an adapter. Local providers need only a base URL.
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != "" || p.BaseURL != ""
}
