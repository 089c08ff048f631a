package queue_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/reviewer/apps/reviewer/service/queue"
	"github.com/antinvestor/reviewer/internal/events"
	"github.com/antinvestor/reviewer/internal/run"
)

type mockSubmitter struct {
	requests []run.Request
}

func (m *mockSubmitter) Submit(_ context.Context, req run.Request) {
	m.requests = append(m.requests, req)
}

func encodeRequest(t *testing.T, payload events.ReviewRequestedPayload) []byte {
	t.Helper()
	envelope, err := events.NewEnvelope(events.ReviewRequested, payload)
	require.NoError(t, err)
	data, err := json.Marshal(envelope)
	require.NoError(t, err)
	return data
}

func TestHandleSubmitsReviewRequest(t *testing.T) {
	submitter := &mockSubmitter{}
	handler := queue.NewReviewRequestHandler(submitter)

	payload := encodeRequest(t, events.ReviewRequestedPayload{
		Repository:  "octo/widgets",
		Number:      7,
		HeadSHA:     "abc123",
		Title:       "Add exec helper",
		Description: "Runs a user supplied command.",
		Action:      "opened",
	})

	require.NoError(t, handler.Handle(context.Background(), nil, payload))
	require.Len(t, submitter.requests, 1)

	req := submitter.requests[0]
	assert.Equal(t, "octo", req.Unit.Owner)
	assert.Equal(t, "widgets", req.Unit.Repo)
	assert.Equal(t, 7, req.Unit.Number)
	assert.Equal(t, "abc123", string(req.Revision))
	assert.Equal(t, "Add exec helper", req.Title)
}

func TestHandleRejectsUnparseablePayload(t *testing.T) {
	handler := queue.NewReviewRequestHandler(&mockSubmitter{})

	err := handler.Handle(context.Background(), nil, []byte("not json"))
	require.Error(t, err)
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	submitter := &mockSubmitter{}
	handler := queue.NewReviewRequestHandler(submitter)

	envelope, err := events.NewEnvelope(events.EventType("review.run.completed"), map[string]string{})
	require.NoError(t, err)
	data, err := json.Marshal(envelope)
	require.NoError(t, err)

	require.NoError(t, handler.Handle(context.Background(), nil, data))
	assert.Empty(t, submitter.requests)
}

func TestHandleDropsIncompleteRequests(t *testing.T) {
	testCases := []struct {
		name    string
		payload events.ReviewRequestedPayload
	}{
		{"missing repository", events.ReviewRequestedPayload{Number: 7, HeadSHA: "abc"}},
		{"repository without owner", events.ReviewRequestedPayload{Repository: "/widgets", Number: 7, HeadSHA: "abc"}},
		{"missing number", events.ReviewRequestedPayload{Repository: "octo/widgets", HeadSHA: "abc"}},
		{"missing head sha", events.ReviewRequestedPayload{Repository: "octo/widgets", Number: 7}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			submitter := &mockSubmitter{}
			handler := queue.NewReviewRequestHandler(submitter)

			require.NoError(t, handler.Handle(context.Background(), nil, encodeRequest(t, tc.payload)))
			assert.Empty(t, submitter.requests)
		})
	}
}

func TestHandleDropsTamperedPayload(t *testing.T) {
	submitter := &mockSubmitter{}
	handler := queue.NewReviewRequestHandler(submitter)

	envelope, err := events.NewEnvelope(events.ReviewRequested, events.ReviewRequestedPayload{
		Repository: "octo/widgets",
		Number:     7,
		HeadSHA:    "abc123",
	})
	require.NoError(t, err)
	envelope.Payload = json.RawMessage(`{"repository":"evil/repo","number":7,"head_sha":"abc123"}`)

	data, err := json.Marshal(envelope)
	require.NoError(t, err)

	require.NoError(t, handler.Handle(context.Background(), nil, data))
	assert.Empty(t, submitter.requests)
}
