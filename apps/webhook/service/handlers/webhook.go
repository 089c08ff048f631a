package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitabwire/util"

	appconfig "github.com/antinvestor/reviewer/apps/webhook/config"
	"github.com/antinvestor/reviewer/internal/events"
)

// QueueManager manages queue publishing.
type QueueManager interface {
	Publish(ctx context.Context, queueName string, payload any, headers ...map[string]string) error
}

// reviewableActions are the pull request actions that produce a review
// of the current head revision.
var reviewableActions = map[string]bool{
	"opened":           true,
	"synchronize":      true,
	"reopened":         true,
	"ready_for_review": true,
}

// WebhookHandler handles incoming GitHub webhooks.
type WebhookHandler struct {
	cfg   *appconfig.WebhookConfig
	queue QueueManager
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(cfg *appconfig.WebhookConfig, qMan QueueManager) *WebhookHandler {
	return &WebhookHandler{
		cfg:   cfg,
		queue: qMan,
	}
}

// HandleGitHubWebhook processes incoming GitHub webhook events.
func (h *WebhookHandler) HandleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.WithError(err).Error("failed to read request body")
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer util.CloseAndLogOnError(ctx, r.Body, "failed to close request body")

	// Verify signature if secret is configured
	if h.cfg.GitHubWebhookSecret != "" {
		signature := r.Header.Get("X-Hub-Signature-256")
		if !h.verifySignature(body, signature) {
			log.Warn("invalid webhook signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
	}

	eventType := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")

	log.Info("received GitHub webhook",
		"event_type", eventType,
		"delivery_id", deliveryID,
	)

	switch eventType {
	case "pull_request":
		h.handlePullRequestEvent(w, r, body, deliveryID)
	case "ping":
		h.handlePingEvent(w, r, body)
	default:
		log.Debug("ignoring unhandled event type", "event_type", eventType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ignored","reason":"unhandled event type"}`))
	}
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(h.cfg.GitHubWebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// PullRequestEvent represents a GitHub pull request event.
type PullRequestEvent struct {
	Action string `json:"action"`
	Number int    `json:"number"`
	PR     struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		State  string `json:"state"`
		Draft  bool   `json:"draft"`
		Head   struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"base"`
		User struct {
			Login string `json:"login"`
			Type  string `json:"type"`
		} `json:"user"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
		Private  bool   `json:"private"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

func (h *WebhookHandler) handlePullRequestEvent(w http.ResponseWriter, r *http.Request, body []byte, deliveryID string) {
	ctx := r.Context()
	log := util.Log(ctx)

	var event PullRequestEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.WithError(err).Error("failed to parse pull request event")
		http.Error(w, "Failed to parse event", http.StatusBadRequest)
		return
	}

	log.Info("processing pull request event",
		"action", event.Action,
		"repo", event.Repository.FullName,
		"pr", event.Number,
		"head", event.PR.Head.SHA,
	)

	if !reviewableActions[event.Action] {
		log.Debug("ignoring pull request action", "action", event.Action)
		writeIgnored(w, "action does not trigger review")
		return
	}

	if !h.isRepositoryAllowed(event.Repository.FullName) {
		log.Debug("repository not in allowed list", "repo", event.Repository.FullName)
		writeIgnored(w, "repository not allowed")
		return
	}

	if h.cfg.SkipDraftPullRequests && event.PR.Draft {
		log.Debug("skipping draft pull request", "pr", event.Number)
		writeIgnored(w, "draft pull request")
		return
	}

	if h.cfg.SkipBotPullRequests && isBotAuthor(event.PR.User.Login, event.PR.User.Type) {
		log.Debug("skipping bot pull request", "author", event.PR.User.Login)
		writeIgnored(w, "bot author")
		return
	}

	if event.PR.Head.SHA == "" {
		log.Warn("pull request event without head sha", "pr", event.Number)
		http.Error(w, "Missing head sha", http.StatusBadRequest)
		return
	}

	if err := h.publishReviewRequest(ctx, &event, deliveryID); err != nil {
		log.WithError(err).Error("failed to publish review request")
		http.Error(w, "Failed to queue review request", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"accepted","message":"Review request queued"}`))
}

// PingEvent represents a GitHub ping event.
type PingEvent struct {
	Zen        string `json:"zen"`
	HookID     int64  `json:"hook_id"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (h *WebhookHandler) handlePingEvent(w http.ResponseWriter, r *http.Request, body []byte) {
	ctx := r.Context()
	log := util.Log(ctx)

	var event PingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.WithError(err).Error("failed to parse ping event")
		http.Error(w, "Failed to parse event", http.StatusBadRequest)
		return
	}

	log.Info("received ping event",
		"zen", event.Zen,
		"hook_id", event.HookID,
		"repo", event.Repository.FullName,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"pong","message":"Webhook configured successfully"}`))
}

func (h *WebhookHandler) isRepositoryAllowed(repo string) bool {
	if h.cfg.AllowedRepositories == "" {
		return true // All repositories allowed
	}

	allowed := strings.Split(h.cfg.AllowedRepositories, ",")
	for _, r := range allowed {
		if strings.TrimSpace(r) == repo {
			return true
		}
	}
	return false
}

func isBotAuthor(login, userType string) bool {
	return userType == "Bot" || strings.HasSuffix(login, "[bot]")
}

func (h *WebhookHandler) publishReviewRequest(ctx context.Context, event *PullRequestEvent, deliveryID string) error {
	log := util.Log(ctx)

	payload := events.ReviewRequestedPayload{
		Repository:  event.Repository.FullName,
		Number:      event.PR.Number,
		HeadSHA:     event.PR.Head.SHA,
		BaseSHA:     event.PR.Base.SHA,
		Title:       event.PR.Title,
		Description: event.PR.Body,
		Author:      event.PR.User.Login,
		Action:      event.Action,
		DeliveryID:  deliveryID,
		ReceivedAt:  time.Now().UTC(),
	}

	envelope, err := events.NewEnvelope(events.ReviewRequested, payload)
	if err != nil {
		return err
	}

	if publishErr := h.queue.Publish(ctx, h.cfg.QueueReviewRequestName, envelope); publishErr != nil {
		return fmt.Errorf("publish review request: %w", publishErr)
	}

	log.Info("published review request",
		"event_id", envelope.EventID,
		"repo", payload.Repository,
		"pr", payload.Number,
		"head", payload.HeadSHA,
	)

	return nil
}

func writeIgnored(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf(`{"status":"ignored","reason":"%s"}`, reason)))
}
