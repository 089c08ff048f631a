package config

import (
	"strings"

	"github.com/pitabwire/frame/config"
)

// ReviewerConfig defines configuration for the reviewer service.
// The reviewer consumes review requests from the queue, runs the
// review pipeline and posts the result back to the hosting platform.
type ReviewerConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// Queue Configuration
	// ==========================================================================

	// Review request queue (incoming from the webhook)
	QueueReviewRequestName string `envDefault:"review.requests" env:"QUEUE_REVIEW_REQUEST_NAME"`
	QueueReviewRequestURI  string `envDefault:"mem://review.requests" env:"QUEUE_REVIEW_REQUEST_URI"`

	// ==========================================================================
	// GitHub Configuration
	// ==========================================================================

	// GitHubToken is a static access token. Used when no GitHub App is
	// configured; App credentials take precedence.
	GitHubToken string `env:"GITHUB_TOKEN"`

	// GitHubAppID is the GitHub App ID for authentication.
	GitHubAppID int64 `envDefault:"0" env:"GITHUB_APP_ID"`

	// GitHubAppPrivateKey is the PEM-encoded GitHub App private key.
	GitHubAppPrivateKey string `env:"GITHUB_APP_PRIVATE_KEY"`

	// GitHubAppInstallationID is the installation ID for the GitHub App.
	GitHubAppInstallationID int64 `envDefault:"0" env:"GITHUB_APP_INSTALLATION_ID"`

	// GitHubBaseURL overrides the API base URL for GitHub Enterprise.
	GitHubBaseURL string `env:"GITHUB_BASE_URL"`

	// ==========================================================================
	// LLM Configuration
	// ==========================================================================

	// AnthropicAPIKey is the API key for Anthropic Claude.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// OpenAIAPIKey is the API key for OpenAI.
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	// GoogleAPIKey is the API key for Google Gemini.
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`

	// ReviewModel is the model used for review completions.
	ReviewModel string `envDefault:"claude-sonnet-4-20250514" env:"REVIEW_MODEL"`

	// ReviewMaxTokens caps the completion output size.
	ReviewMaxTokens int `envDefault:"4096" env:"REVIEW_MAX_TOKENS"`

	// ReviewTemperature is the sampling temperature for completions.
	ReviewTemperature float64 `envDefault:"0.0" env:"REVIEW_TEMPERATURE"`

	// ReviewMaxPromptChars caps the assembled prompt size.
	ReviewMaxPromptChars int `envDefault:"0" env:"REVIEW_MAX_PROMPT_CHARS"`

	// ==========================================================================
	// Diff Limits
	// ==========================================================================

	// MaxFilesPerRun caps the number of files sent for review.
	MaxFilesPerRun int `envDefault:"50" env:"MAX_FILES_PER_RUN"`

	// MaxLinesPerFile truncates a single file's diff beyond this many lines.
	MaxLinesPerFile int `envDefault:"0" env:"MAX_LINES_PER_FILE"`

	// MaxTotalLines skips runs whose combined diff exceeds this many lines.
	MaxTotalLines int `envDefault:"8000" env:"MAX_TOTAL_LINES"`

	// BestEffortPartial reviews a prefix of an oversized diff instead of skipping.
	BestEffortPartial bool `envDefault:"false" env:"BEST_EFFORT_PARTIAL"`

	// SkipPathGlobs are path patterns excluded from review (comma-separated).
	SkipPathGlobs string `env:"SKIP_PATH_GLOBS"`

	// SkipExtensions are file extensions excluded from review (comma-separated).
	SkipExtensions string `envDefault:".pb.go,.min.js,.lock" env:"SKIP_EXTENSIONS"`

	// ==========================================================================
	// Comment Placement
	// ==========================================================================

	// CommentableRadius allows comments on context lines within this
	// distance of a change.
	CommentableRadius int `envDefault:"0" env:"COMMENTABLE_RADIUS"`

	// FallbackWindow is the search distance for relocating comments
	// whose claimed line is not commentable.
	FallbackWindow int `envDefault:"3" env:"FALLBACK_WINDOW"`

	// FallbackCrossHunk allows relocated comments to land in a different hunk.
	FallbackCrossHunk bool `envDefault:"false" env:"FALLBACK_CROSS_HUNK"`

	// ==========================================================================
	// Throughput and Resilience
	// ==========================================================================

	// RetryMaxAttempts is the attempt budget for retryable calls.
	RetryMaxAttempts int `envDefault:"3" env:"RETRY_MAX_ATTEMPTS"`

	// RetryBaseDelaySeconds is the initial backoff delay.
	RetryBaseDelaySeconds int `envDefault:"1" env:"RETRY_BASE_DELAY_SECONDS"`

	// RetryMaxDelaySeconds caps the backoff delay.
	RetryMaxDelaySeconds int `envDefault:"30" env:"RETRY_MAX_DELAY_SECONDS"`

	// HostAPIRequestsPerHour limits calls to the hosting platform (0 = unlimited).
	HostAPIRequestsPerHour int `envDefault:"0" env:"HOST_API_REQUESTS_PER_HOUR"`

	// CompletionRequestsPerMinute limits model calls (0 = unlimited).
	CompletionRequestsPerMinute int `envDefault:"0" env:"COMPLETION_REQUESTS_PER_MINUTE"`

	// RunDeadlineSeconds bounds a single review run end to end.
	RunDeadlineSeconds int `envDefault:"600" env:"RUN_DEADLINE_SECONDS"`

	// MaxConcurrentRuns bounds runs in flight at once.
	MaxConcurrentRuns int64 `envDefault:"8" env:"MAX_CONCURRENT_RUNS"`

	// CancelSupersededRuns cancels an in-flight run when a newer
	// revision of the same pull request arrives.
	CancelSupersededRuns bool `envDefault:"false" env:"CANCEL_SUPERSEDED_RUNS"`

	// ==========================================================================
	// Deduplication
	// ==========================================================================

	// DedupRedisURI enables the Redis-backed dedup store so replicas
	// share in-flight state. Empty means in-memory.
	DedupRedisURI string `env:"DEDUP_REDIS_URI"`

	// DedupTTLSeconds bounds how long an abandoned in-flight claim is held.
	DedupTTLSeconds int `envDefault:"7200" env:"DEDUP_TTL_SECONDS"`
}

// SplitList splits a comma-separated config value into trimmed entries.
func SplitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
