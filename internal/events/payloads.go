package events

import "time"

// ReviewRequestedPayload is the payload for ReviewRequested.
type ReviewRequestedPayload struct {
	// Repository is the full repository name (owner/repo).
	Repository string `json:"repository"`

	// Number is the pull request number.
	Number int `json:"number"`

	// HeadSHA is the revision to review.
	HeadSHA string `json:"head_sha"`

	// BaseSHA is the merge base, informational only.
	BaseSHA string `json:"base_sha,omitempty"`

	// Title is the pull request title.
	Title string `json:"title"`

	// Description is the pull request body.
	Description string `json:"description,omitempty"`

	// Author is the login of the pull request author.
	Author string `json:"author,omitempty"`

	// Action is the webhook action that triggered the request.
	Action string `json:"action"`

	// DeliveryID is the webhook delivery that produced this request.
	DeliveryID string `json:"delivery_id,omitempty"`

	// ReceivedAt is when the webhook accepted the event.
	ReceivedAt time.Time `json:"received_at"`
}
