package config

import (
	"github.com/pitabwire/frame/config"
)

// WebhookConfig defines configuration for the webhook service.
// The webhook service receives GitHub pull request events and
// publishes review requests to the message queue for the reviewer.
type WebhookConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// GitHub Configuration
	// ==========================================================================

	// GitHubWebhookSecret is the secret used to verify GitHub webhook payloads.
	GitHubWebhookSecret string `env:"GITHUB_WEBHOOK_SECRET"`

	// ==========================================================================
	// Review Request Queue (outgoing to the reviewer)
	// ==========================================================================

	// QueueReviewRequestName is the name of the review request queue.
	QueueReviewRequestName string `envDefault:"review.requests" env:"QUEUE_REVIEW_REQUEST_NAME"`

	// QueueReviewRequestURI is the URI of the review request queue.
	QueueReviewRequestURI string `envDefault:"mem://review.requests" env:"QUEUE_REVIEW_REQUEST_URI"`

	// ==========================================================================
	// Webhook Processing
	// ==========================================================================

	// AllowedRepositories is a comma-separated list of allowed repositories (owner/repo format).
	// If empty, all repositories are allowed.
	AllowedRepositories string `env:"ALLOWED_REPOSITORIES"`

	// SkipDraftPullRequests skips review of draft pull requests.
	SkipDraftPullRequests bool `envDefault:"true" env:"SKIP_DRAFT_PULL_REQUESTS"`

	// SkipBotPullRequests skips review of pull requests opened by bot accounts.
	SkipBotPullRequests bool `envDefault:"true" env:"SKIP_BOT_PULL_REQUESTS"`
}
