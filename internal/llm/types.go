// Package llm provides completion-service clients for the review
// pipeline.
package llm

// Provider identifies an LLM provider.
type Provider string

// LLM provider constants.
const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
)

// Model identifies an LLM model.
type Model string

// Anthropic model constants.
const (
	ModelClaudeSonnet Model = "claude-sonnet-4-20250514"
	ModelClaudeOpus   Model = "claude-opus-4-20250514"
	ModelClaudeHaiku  Model = "claude-3-5-haiku-20241022"
)

// OpenAI model constants.
const (
	ModelGPT4o Model = "gpt-4o"
)

// Google model constants.
const (
	ModelGeminiFlash Model = "gemini-2.0-flash"
)

// Usage tracks token usage across requests.
type Usage struct {
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CacheReadTokens  int     `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int     `json:"cache_write_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// Default configuration constants.
const (
	defaultTimeoutSeconds  = 120
	defaultMaxOutputTokens = 4096
)

// ClientConfig contains completion client configuration.
type ClientConfig struct {
	// Provider settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string

	// Defaults
	DefaultProvider Provider
	DefaultModel    Model

	// Timeouts
	TimeoutSeconds int

	// Token limits
	MaxOutputTokens int
	Temperature     float64
}

// DefaultClientConfig returns default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DefaultProvider: ProviderAnthropic,
		DefaultModel:    ModelClaudeSonnet,
		TimeoutSeconds:  defaultTimeoutSeconds,
		MaxOutputTokens: defaultMaxOutputTokens,
		Temperature:     0.0,
	}
}
