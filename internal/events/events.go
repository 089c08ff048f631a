// Package events defines the message envelope and payloads exchanged
// between the webhook ingest service and the reviewer worker.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// EventType identifies the type of event.
// Format: {domain}.{aggregate}.{action}
type EventType string

const (
	// ReviewRequested asks the reviewer worker to review one revision
	// of one pull request.
	ReviewRequested EventType = "review.run.requested"
)

// SchemaVersion is the current envelope schema version.
const SchemaVersion = "1.0.0"

// ErrChecksumMismatch indicates the payload was altered in transit.
var ErrChecksumMismatch = errors.New("payload checksum mismatch")

// Envelope is the canonical wrapper for all queued messages.
type Envelope struct {
	// EventID is a globally unique event identifier (XID - time-ordered).
	EventID string `json:"event_id"`

	// EventType determines how Payload is decoded.
	EventType EventType `json:"event_type"`

	// SchemaVersion is the semantic version of the payload schema.
	SchemaVersion string `json:"schema_version"`

	// CreatedAt is the wall clock timestamp when the event was created.
	CreatedAt time.Time `json:"created_at"`

	// Payload is the JSON-encoded event payload.
	Payload json.RawMessage `json:"payload"`

	// PayloadChecksum is the SHA-256 checksum of the serialized payload.
	PayloadChecksum string `json:"payload_checksum"`
}

// NewEnvelope wraps a payload in a fresh envelope.
func NewEnvelope(eventType EventType, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return &Envelope{
		EventID:         xid.New().String(),
		EventType:       eventType,
		SchemaVersion:   SchemaVersion,
		CreatedAt:       time.Now().UTC(),
		Payload:         data,
		PayloadChecksum: checksum(data),
	}, nil
}

// Decode verifies the payload checksum and unmarshals it into v.
func (e *Envelope) Decode(v any) error {
	if e.PayloadChecksum != "" && e.PayloadChecksum != checksum(e.Payload) {
		return fmt.Errorf("%w: event %s", ErrChecksumMismatch, e.EventID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.EventType, err)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
