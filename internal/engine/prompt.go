package engine

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/antinvestor/reviewer/internal/diff"
)

// SystemPrompt is the fixed reviewer persona and output contract sent
// with every request. The closed enums here must match the validator.
const SystemPrompt = `You are an expert code reviewer. Review the supplied diffs and report
specific, actionable findings.

Rules:
- Comment only on added lines (lines starting with +).
- Line numbers are NEW-file line numbers (the right side of the diff).
- Skip trivial changes; do not force findings into clean code.
- severity is one of: low, medium, high.
- category is one of: bug, security, performance, style, other.

Respond with JSON matching exactly:
{
  "findings": [
    {
      "file": "path/to/file",
      "line": 42,
      "severity": "low|medium|high",
      "category": "bug|security|performance|style|other",
      "title": "one-line issue title",
      "body": "explanation and how to fix it",
      "suggestion": "optional replacement code"
    }
  ],
  "summary": "overall assessment of the change"
}

If there are no findings, return an empty findings array and a positive summary.`

// CorrectivePrompt is the follow-up sent after a reply that failed
// schema validation; the run gets exactly one such retry.
const CorrectivePrompt = `Your previous reply was not valid JSON matching the required schema.
Reply again with ONLY the JSON object described in the instructions, no
prose, no code fences.`

const userPromptTemplate = `# Code Review Request
{{- if .Title}}

## Title
{{.Title}}
{{- end}}
{{- if .Description}}

## Description
{{.Description}}
{{- end}}

## Changed Files
{{- range .Files}}

### {{.Path}} ({{.Change}}, +{{.Additions}} -{{.Deletions}}{{if .Truncated}}, truncated{{end}})
` + "```diff" + `
{{.Patch}}
` + "```" + `
{{- end}}

Review the changes above and reply in the required JSON format.`

// PromptInput is everything the builder needs for one request.
type PromptInput struct {
	Title       string
	Description string
	Files       []*diff.FileDiff

	// MaxChars bounds the rendered prompt. Zero means unbounded.
	MaxChars int
}

// PromptBuilder renders review prompts from parsed file diffs.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses the prompt template once.
func NewPromptBuilder() (*PromptBuilder, error) {
	t, err := template.New("review").Parse(userPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse review template: %w", err)
	}
	return &PromptBuilder{tmpl: t}, nil
}

type promptFile struct {
	Path      string
	Change    diff.ChangeKind
	Additions int
	Deletions int
	Truncated bool
	Patch     string
}

type promptData struct {
	Title       string
	Description string
	Files       []promptFile
}

// Build renders the user prompt. Files are rendered in the order
// given; when MaxChars is set, later files give way and the cut is
// noted so the model never sees a silently half-rendered file.
func (pb *PromptBuilder) Build(in PromptInput) (string, error) {
	const descriptionCap = 1000

	data := promptData{
		Title:       in.Title,
		Description: clamp(in.Description, descriptionCap),
	}

	used := 0
	for i, fd := range in.Files {
		rendered := hunkText(fd)
		if in.MaxChars > 0 && used+len(rendered) > in.MaxChars {
			data.Files = append(data.Files, promptFile{
				Path:   fd.Path,
				Change: fd.Change,
				Patch:  fmt.Sprintf("... %d further file(s) omitted for size ...", len(in.Files)-i),
			})
			break
		}
		data.Files = append(data.Files, promptFile{
			Path:      fd.Path,
			Change:    fd.Change,
			Additions: fd.Additions,
			Deletions: fd.Deletions,
			Truncated: fd.Truncated,
			Patch:     rendered,
		})
		used += len(rendered)
	}

	var buf bytes.Buffer
	if err := pb.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute review template: %w", err)
	}
	return buf.String(), nil
}

// hunkText reassembles only the parsed hunks, so truncated files show
// the model exactly what positions exist.
func hunkText(fd *diff.FileDiff) string {
	var b strings.Builder
	for i, h := range fd.Hunks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(h.Header)
		for _, l := range h.Lines {
			b.WriteString("\n")
			switch l.Kind {
			case diff.LineAddition:
				b.WriteString("+")
			case diff.LineDeletion:
				b.WriteString("-")
			default:
				b.WriteString(" ")
			}
			b.WriteString(l.Content)
		}
	}
	return b.String()
}

func clamp(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
