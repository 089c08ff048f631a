package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pitabwire/util"
)

// Common errors.
var (
	ErrNoAPIKey           = errors.New("no API key configured")
	ErrRateLimited        = errors.New("rate limited")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrContextTooLong     = errors.New("context too long")
	ErrAuth               = errors.New("authentication failed")
	ErrServer             = errors.New("completion server error")
	ErrInvalidResponse    = errors.New("invalid response from LLM")
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// Message is one turn of a completion conversation.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionRequest is a request to the completion service.
type CompletionRequest struct {
	Model        Model
	SystemPrompt string

	// Messages is the conversation so far. The corrective-retry round
	// replays the model's bad reply plus a follow-up instruction.
	Messages []Message

	MaxTokens   int
	Temperature float64
}

// CompletionResponse is a response from the completion service.
type CompletionResponse struct {
	Content    string
	Usage      Usage
	StopReason string
	RequestID  string
	LatencyMS  int64
	CacheHit   bool
}

// ProviderClient is the interface for a single LLM provider.
type ProviderClient interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Provider returns the provider identifier.
	Provider() Provider

	// IsAvailable returns true if the provider is configured.
	IsAvailable() bool
}

// Client is what the review pipeline consumes: a single Complete
// operation, fallback and retry concerns hidden behind it.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// MultiProviderClient implements Client with provider fallback.
// Transient-failure retry is NOT handled here; the orchestrator wraps
// Complete in its own retry/rate-limit discipline so every external
// call shares one policy.
type MultiProviderClient struct {
	providers []ProviderClient
	config    ClientConfig

	// One client is shared by every concurrent run.
	mu         sync.Mutex
	totalUsage Usage
}

// NewMultiProviderClient creates a new multi-provider client.
func NewMultiProviderClient(cfg ClientConfig) (*MultiProviderClient, error) {
	const numProviders = 3
	providers := make([]ProviderClient, 0, numProviders)

	// Add Anthropic if configured
	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, NewAnthropicClient(cfg.AnthropicAPIKey, cfg))
	}

	// Add OpenAI if configured
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, NewOpenAIClient(cfg.OpenAIAPIKey, cfg))
	}

	// Add Google if configured
	if cfg.GoogleAPIKey != "" {
		providers = append(providers, NewGoogleClient(cfg.GoogleAPIKey, cfg))
	}

	if len(providers) == 0 {
		return nil, ErrNoAPIKey
	}

	return &MultiProviderClient{
		providers: providers,
		config:    cfg,
	}, nil
}

// Complete tries each configured provider in order until one succeeds.
func (c *MultiProviderClient) Complete(
	ctx context.Context,
	req *CompletionRequest,
) (*CompletionResponse, error) {
	log := util.Log(ctx)
	var lastErr error

	for _, provider := range c.providers {
		if !provider.IsAvailable() {
			continue
		}

		resp, err := provider.Complete(ctx, req)
		if err == nil {
			c.mu.Lock()
			c.totalUsage.InputTokens += resp.Usage.InputTokens
			c.totalUsage.OutputTokens += resp.Usage.OutputTokens
			c.totalUsage.TotalTokens += resp.Usage.TotalTokens
			c.totalUsage.CostUSD += resp.Usage.CostUSD
			c.mu.Unlock()
			return resp, nil
		}

		log.WithError(err).Warn("provider failed, trying next",
			"provider", provider.Provider(),
		)
		lastErr = err

		// A prompt that is too long fails everywhere; don't cascade.
		if errors.Is(err, ErrContextTooLong) {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
	}
	return nil, ErrAllProvidersFailed
}

// GetUsage returns cumulative usage statistics.
func (c *MultiProviderClient) GetUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalUsage
}

// estimateCost estimates the cost of a request in USD.
func estimateCost(provider Provider, model Model, usage Usage) float64 {
	// Pricing per 1M tokens (as of early 2025)
	var inputPrice, outputPrice float64

	switch provider {
	case ProviderAnthropic:
		switch model {
		case ModelClaudeOpus:
			inputPrice, outputPrice = 15.0, 75.0
		case ModelClaudeHaiku:
			inputPrice, outputPrice = 0.25, 1.25
		default:
			inputPrice, outputPrice = 3.0, 15.0
		}
	case ProviderOpenAI:
		inputPrice, outputPrice = 2.5, 10.0
	case ProviderGoogle:
		inputPrice, outputPrice = 0.075, 0.30
	}

	const tokensPerMillion = 1_000_000.0
	inputCost := float64(usage.InputTokens) / tokensPerMillion * inputPrice
	outputCost := float64(usage.OutputTokens) / tokensPerMillion * outputPrice

	return inputCost + outputCost
}
