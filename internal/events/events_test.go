package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := ReviewRequestedPayload{
		Repository: "octo/widgets",
		Number:     7,
		HeadSHA:    "abc123",
		Title:      "Add exec helper",
		Action:     "opened",
		ReceivedAt: time.Now().UTC(),
	}

	env, err := NewEnvelope(ReviewRequested, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, ReviewRequested, env.EventType)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.NotEmpty(t, env.PayloadChecksum)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var received Envelope
	require.NoError(t, json.Unmarshal(data, &received))

	var decoded ReviewRequestedPayload
	require.NoError(t, received.Decode(&decoded))
	assert.Equal(t, payload.Repository, decoded.Repository)
	assert.Equal(t, payload.Number, decoded.Number)
	assert.Equal(t, payload.HeadSHA, decoded.HeadSHA)
}

func TestEnvelopeDecodeRejectsTamperedPayload(t *testing.T) {
	env, err := NewEnvelope(ReviewRequested, ReviewRequestedPayload{Repository: "octo/widgets", Number: 7})
	require.NoError(t, err)

	env.Payload = json.RawMessage(`{"repository":"evil/repo","number":7}`)

	var decoded ReviewRequestedPayload
	err = env.Decode(&decoded)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestEnvelopeDecodeWithoutChecksum(t *testing.T) {
	// Producers outside this module may omit the checksum.
	env := &Envelope{
		EventType: ReviewRequested,
		Payload:   json.RawMessage(`{"repository":"octo/widgets","number":7,"head_sha":"abc"}`),
	}

	var decoded ReviewRequestedPayload
	require.NoError(t, env.Decode(&decoded))
	assert.Equal(t, "octo/widgets", decoded.Repository)
}

func TestEventIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		env, err := NewEnvelope(ReviewRequested, ReviewRequestedPayload{})
		require.NoError(t, err)
		assert.False(t, seen[env.EventID])
		seen[env.EventID] = true
	}
}
