// Package run is the orchestration layer: it owns the per-revision
// review pipeline, bounded concurrency, admission rate limiting,
// deduplication and the retry/backoff policy around external calls.
package run

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// RunID identifies one review run. xid keeps IDs sortable by creation
// time without coordination and shorter than a UUID.
type RunID struct {
	id xid.ID
}

// NewRunID generates a new run ID.
func NewRunID() RunID {
	return RunID{id: xid.New()}
}

// ParseRunID parses a run ID from string.
func ParseRunID(s string) (RunID, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return RunID{}, fmt.Errorf("invalid run ID %q: %w", s, err)
	}
	return RunID{id: id}, nil
}

// String returns the string representation.
func (r RunID) String() string {
	return r.id.String()
}

// Short returns the first 8 characters for human-readable contexts.
func (r RunID) Short() string {
	s := r.id.String()
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// Time returns the timestamp embedded in the ID.
func (r RunID) Time() time.Time {
	return r.id.Time()
}

// IsZero returns true if this is the zero value.
func (r RunID) IsZero() bool {
	return r.id.IsNil()
}

// MarshalJSON implements json.Marshaler.
func (r RunID) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RunID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := xid.FromString(s)
	if err != nil {
		return err
	}
	r.id = id
	return nil
}
