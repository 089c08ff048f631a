package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sent(paths ...string) map[string]bool {
	m := make(map[string]bool, len(paths))
	for _, p := range paths {
		m[p] = true
	}
	return m
}

func TestValidateWellFormedReply(t *testing.T) {
	reply := `{
		"findings": [
			{
				"file": "internal/auth/token.go",
				"line": 42,
				"severity": "high",
				"category": "security",
				"title": "Token compared with ==",
				"body": "Use a constant-time comparison to avoid timing leaks."
			}
		],
		"summary": "One security issue found."
	}`

	res, err := NewValidator().Validate(context.Background(), reply, sent("internal/auth/token.go"))
	require.NoError(t, err)

	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, "internal/auth/token.go", f.File)
	assert.Equal(t, 42, f.Line)
	assert.Equal(t, SeverityHigh, f.Severity)
	assert.Equal(t, CategorySecurity, f.Category)
	assert.Equal(t, DispositionRequestChanges, res.Disposition)
	assert.Equal(t, "One security issue found.", res.Summary)
	assert.Zero(t, res.Anomalies.Total())
}

func TestValidateFencedReply(t *testing.T) {
	reply := "```json\n{\"findings\": [], \"summary\": \"Looks good.\"}\n```"

	res, err := NewValidator().Validate(context.Background(), reply, sent())
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	assert.Equal(t, DispositionApprove, res.Disposition)
}

func TestValidateNotJSON(t *testing.T) {
	_, err := NewValidator().Validate(context.Background(), "I found no issues, great PR!", sent())
	require.ErrorIs(t, err, ErrSchema)
}

func TestValidateCoercesEnums(t *testing.T) {
	reply := `{
		"findings": [
			{
				"file": "main.go",
				"line": 3,
				"severity": "critical",
				"category": "correctness",
				"title": "t",
				"body": "b"
			}
		],
		"summary": "s"
	}`

	res, err := NewValidator().Validate(context.Background(), reply, sent("main.go"))
	require.NoError(t, err)

	require.Len(t, res.Findings, 1)
	assert.Equal(t, SeverityLow, res.Findings[0].Severity)
	assert.Equal(t, CategoryOther, res.Findings[0].Category)
	assert.Equal(t, 1, res.Anomalies.CoercedSeverity)
	// one anomaly reported per finding, severity wins
	assert.Equal(t, 0, res.Anomalies.CoercedCategory)
}

func TestValidateDropRules(t *testing.T) {
	reply := `{
		"findings": [
			{"file": "main.go", "line": 1, "severity": "low", "category": "style", "title": "", "body": "no title"},
			{"file": "ghost.go", "line": 1, "severity": "low", "category": "style", "title": "t", "body": "b"},
			{"file": "main.go", "line": 0, "severity": "low", "category": "style", "title": "t", "body": "b"},
			{"file": "main.go", "line": "not a number", "severity": "low", "category": "style", "title": "t", "body": "b"},
			{"file": "main.go", "line": "7", "severity": "low", "category": "style", "title": "kept", "body": "quoted line is fine"}
		],
		"summary": "s"
	}`

	res, err := NewValidator().Validate(context.Background(), reply, sent("main.go"))
	require.NoError(t, err)

	require.Len(t, res.Findings, 1)
	assert.Equal(t, "kept", res.Findings[0].Title)
	assert.Equal(t, 7, res.Findings[0].Line)
	assert.Equal(t, 1, res.Anomalies.DroppedNoText)
	assert.Equal(t, 1, res.Anomalies.DroppedBadFile)
	assert.Equal(t, 2, res.Anomalies.DroppedBadLine)
}

func TestValidateDefaultSummary(t *testing.T) {
	res, err := NewValidator().Validate(context.Background(), `{"findings": [], "summary": ""}`, sent())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Summary)
}

func TestDeriveDisposition(t *testing.T) {
	tests := []struct {
		name     string
		findings []Finding
		want     Disposition
	}{
		{"none", nil, DispositionApprove},
		{"low only", []Finding{{Severity: SeverityLow}}, DispositionComment},
		{"medium only", []Finding{{Severity: SeverityMedium}}, DispositionComment},
		{"any high", []Finding{{Severity: SeverityLow}, {Severity: SeverityHigh}}, DispositionRequestChanges},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveDisposition(tt.findings))
		})
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}
