package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pitabwire/util"
)

// ErrSchema reports a reply that is not the declared schema at the top
// level. Recoverable: the caller retries once with CorrectivePrompt
// before degrading to a summary-only review.
var ErrSchema = errors.New("reply does not match review schema")

// Validator normalizes model replies into typed findings.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate parses the raw reply and applies per-finding repair rules:
// out-of-enum severity/category are coerced with a logged anomaly,
// findings without title or body are dropped, findings naming a file
// outside sentFiles are dropped (hallucinated targets). The aggregate
// disposition is derived from the surviving findings, never taken from
// the model.
func (v *Validator) Validate(ctx context.Context, reply string, sentFiles map[string]bool) (*Result, error) {
	log := util.Log(ctx)

	var raw rawReply
	dec := json.NewDecoder(strings.NewReader(stripFences(reply)))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}

	res := &Result{Summary: strings.TrimSpace(raw.Summary)}

	for _, rf := range raw.Findings {
		f, anomaly, ok := v.validateFinding(rf, sentFiles)
		switch anomaly {
		case anomalyNone:
		case anomalyCoercedSeverity:
			res.Anomalies.CoercedSeverity++
			log.Warn("coerced out-of-enum severity", "file", rf.File, "severity", rf.Severity)
		case anomalyCoercedCategory:
			res.Anomalies.CoercedCategory++
			log.Warn("coerced out-of-enum category", "file", rf.File, "category", rf.Category)
		case anomalyDroppedNoText:
			res.Anomalies.DroppedNoText++
			log.Warn("dropped finding without title or body", "file", rf.File)
		case anomalyDroppedBadFile:
			res.Anomalies.DroppedBadFile++
			log.Warn("dropped finding for file not sent to model", "file", rf.File)
		case anomalyDroppedBadLine:
			res.Anomalies.DroppedBadLine++
			log.Warn("dropped finding with unusable line number", "file", rf.File)
		}
		if ok {
			res.Findings = append(res.Findings, f)
		}
	}

	if res.Summary == "" {
		res.Summary = "Automated review completed; see inline comments."
	}
	res.Disposition = DeriveDisposition(res.Findings)
	return res, nil
}

type findingAnomaly int

const (
	anomalyNone findingAnomaly = iota
	anomalyCoercedSeverity
	anomalyCoercedCategory
	anomalyDroppedNoText
	anomalyDroppedBadFile
	anomalyDroppedBadLine
)

// validateFinding applies the repair-or-drop rules to one raw finding.
// A finding can carry at most one reported anomaly; coercions are
// reported in severity-then-category order.
func (v *Validator) validateFinding(rf rawFinding, sentFiles map[string]bool) (Finding, findingAnomaly, bool) {
	title := strings.TrimSpace(rf.Title)
	body := strings.TrimSpace(rf.Body)
	if title == "" || body == "" {
		return Finding{}, anomalyDroppedNoText, false
	}
	if !sentFiles[rf.File] {
		return Finding{}, anomalyDroppedBadFile, false
	}

	line, ok := parseLine(rf.Line)
	if !ok || line < 1 {
		return Finding{}, anomalyDroppedBadLine, false
	}

	anomaly := anomalyNone
	severity := Severity(strings.ToLower(strings.TrimSpace(rf.Severity)))
	if !severity.Valid() {
		severity = SeverityLow
		anomaly = anomalyCoercedSeverity
	}
	category := Category(strings.ToLower(strings.TrimSpace(rf.Category)))
	if !category.Valid() {
		category = CategoryOther
		if anomaly == anomalyNone {
			anomaly = anomalyCoercedCategory
		}
	}

	return Finding{
		File:       rf.File,
		Line:       line,
		Severity:   severity,
		Category:   category,
		Title:      title,
		Body:       body,
		Suggestion: strings.TrimSpace(rf.Suggestion),
	}, anomaly, true
}

// DeriveDisposition maps findings to the review recommendation: any
// high severity requests changes, any finding at all comments,
// otherwise approve.
func DeriveDisposition(findings []Finding) Disposition {
	for _, f := range findings {
		if f.Severity == SeverityHigh {
			return DispositionRequestChanges
		}
	}
	if len(findings) > 0 {
		return DispositionComment
	}
	return DispositionApprove
}

// parseLine accepts both numeric and quoted line values; models get
// this wrong often enough that rejecting "42" outright loses findings.
func parseLine(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, convErr := strconv.Atoi(strings.TrimSpace(s)); convErr == nil {
			return n, true
		}
	}
	return 0, false
}

// stripFences tolerates replies wrapped in markdown code fences.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
