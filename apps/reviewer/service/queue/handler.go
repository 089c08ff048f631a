// Package queue subscribes to the review request queue and feeds the
// orchestrator.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pitabwire/util"

	"github.com/antinvestor/reviewer/internal/events"
	"github.com/antinvestor/reviewer/internal/githost"
	"github.com/antinvestor/reviewer/internal/run"
)

// Submitter accepts review requests for asynchronous execution.
type Submitter interface {
	Submit(ctx context.Context, req run.Request)
}

// ReviewRequestHandler handles incoming review request messages.
type ReviewRequestHandler struct {
	submitter Submitter
}

// NewReviewRequestHandler creates a new review request handler.
func NewReviewRequestHandler(submitter Submitter) *ReviewRequestHandler {
	return &ReviewRequestHandler{submitter: submitter}
}

// Handle processes one queued message. Malformed messages are dropped
// with a warning: redelivery cannot repair them.
func (h *ReviewRequestHandler) Handle(ctx context.Context, _ map[string]string, payload []byte) error {
	log := util.Log(ctx)

	var envelope events.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("unmarshal review request envelope: %w", err)
	}

	if envelope.EventType != events.ReviewRequested {
		log.Debug("ignoring unexpected event type", "event_type", envelope.EventType)
		return nil
	}

	var request events.ReviewRequestedPayload
	if err := envelope.Decode(&request); err != nil {
		log.WithError(err).Warn("dropping undecodable review request", "event_id", envelope.EventID)
		return nil
	}

	owner, repo, ok := splitRepository(request.Repository)
	if !ok || request.Number <= 0 || request.HeadSHA == "" {
		log.Warn("dropping incomplete review request",
			"event_id", envelope.EventID,
			"repo", request.Repository,
			"pr", request.Number,
		)
		return nil
	}

	log.Info("accepted review request",
		"event_id", envelope.EventID,
		"repo", request.Repository,
		"pr", request.Number,
		"head", request.HeadSHA,
	)

	h.submitter.Submit(ctx, run.Request{
		Unit: githost.Unit{
			Owner:  owner,
			Repo:   repo,
			Number: request.Number,
		},
		Revision:    githost.Revision(request.HeadSHA),
		Title:       request.Title,
		Description: request.Description,
	})

	return nil
}

func splitRepository(fullName string) (owner, repo string, ok bool) {
	owner, repo, found := strings.Cut(fullName, "/")
	if !found || owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, true
}
