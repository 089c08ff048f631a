// Package engine builds the structured review request sent to the
// completion service and validates the model's structured reply into
// typed findings.
package engine

import (
	"encoding/json"
)

// Severity classifies how serious a finding is. Closed enum; anything
// else in a model reply is coerced to SeverityLow.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether the severity is in the closed enum.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Category classifies what kind of issue a finding is. Closed enum;
// anything else in a model reply is coerced to CategoryOther.
type Category string

const (
	CategoryBug         Category = "bug"
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
	CategoryStyle       Category = "style"
	CategoryOther       Category = "other"
)

// Valid reports whether the category is in the closed enum.
func (c Category) Valid() bool {
	switch c {
	case CategoryBug, CategorySecurity, CategoryPerformance, CategoryStyle, CategoryOther:
		return true
	}
	return false
}

// Disposition is the aggregate review recommendation.
type Disposition string

const (
	DispositionApprove        Disposition = "approve"
	DispositionComment        Disposition = "comment"
	DispositionRequestChanges Disposition = "request-changes"
)

// Finding is one issue reported by the model, after validation.
// Line refers to new-file numbering; the diff position is derived
// later by the reconciler, never requested from the model.
type Finding struct {
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Severity   Severity `json:"severity"`
	Category   Category `json:"category"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Result is the validated outcome of one completion round.
type Result struct {
	Findings    []Finding   `json:"findings"`
	Summary     string      `json:"summary"`
	Disposition Disposition `json:"disposition"`

	// Anomalies counts per-finding repairs and drops, for logs.
	Anomalies ValidationAnomalies `json:"anomalies"`

	// Degraded marks a result produced without any parseable model
	// reply. CorrectiveRetry marks that the follow-up round ran.
	Degraded        bool `json:"degraded,omitempty"`
	CorrectiveRetry bool `json:"corrective_retry,omitempty"`
}

// ValidationAnomalies tallies what validation had to repair or drop.
type ValidationAnomalies struct {
	CoercedSeverity int `json:"coerced_severity,omitempty"`
	CoercedCategory int `json:"coerced_category,omitempty"`
	DroppedNoText   int `json:"dropped_no_text,omitempty"`
	DroppedBadFile  int `json:"dropped_bad_file,omitempty"`
	DroppedBadLine  int `json:"dropped_bad_line,omitempty"`
}

// Total is the number of findings affected by any anomaly.
func (a ValidationAnomalies) Total() int {
	return a.CoercedSeverity + a.CoercedCategory + a.DroppedNoText + a.DroppedBadFile + a.DroppedBadLine
}

// rawReply mirrors the JSON contract the model is instructed to emit.
type rawReply struct {
	Findings []rawFinding `json:"findings"`
	Summary  string       `json:"summary"`
}

type rawFinding struct {
	File       string          `json:"file"`
	Line       json.RawMessage `json:"line"`
	Severity   string          `json:"severity"`
	Category   string          `json:"category"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	Suggestion string          `json:"suggestion,omitempty"`
}
