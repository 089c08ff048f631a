package diff

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformed reports a patch that cannot be parsed: a bad hunk header
// or line-count bookkeeping that disagrees with the declared ranges.
var ErrMalformed = errors.New("malformed diff")

// hunkHeaderPattern matches "@@ -oldStart[,oldCount] +newStart[,newCount] @@".
// Counts default to 1 when omitted.
var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// ParserConfig bounds what the parser will accept.
type ParserConfig struct {
	// MaxLinesPerFile caps the number of patch lines parsed for a
	// single file. Hunks beyond the cap are dropped and the result is
	// marked truncated. Zero means no cap.
	MaxLinesPerFile int
}

// Parser turns raw unified-diff text for one file into parsed hunks.
type Parser struct {
	cfg ParserConfig
}

// NewParser creates a parser with the given bounds.
func NewParser(cfg ParserConfig) *Parser {
	return &Parser{cfg: cfg}
}

// Parse parses the patch for a single file. An empty patch (binary
// file, pure rename) yields a FileDiff with no hunks.
//
// The pass is linear: each hunk header resets the old/new line
// counters; every content line advances them according to its marker;
// the diff-position counter advances for every line below the first
// hunk header, hunk headers of later hunks included.
func (p *Parser) Parse(path string, change ChangeKind, patch string) (*FileDiff, error) {
	fd := &FileDiff{
		Path:   path,
		Change: change,
		Patch:  patch,
	}
	if patch == "" {
		return fd, nil
	}

	var (
		current  *hunkState
		position int
		seenHunk bool
	)

	lines := strings.Split(patch, "\n")
	for i, raw := range lines {
		if m := hunkHeaderPattern.FindStringSubmatch(raw); m != nil {
			if current != nil {
				if err := current.finish(fd); err != nil {
					return nil, err
				}
			}
			if seenHunk {
				// Subsequent hunk headers occupy a diff position.
				position++
			}
			seenHunk = true
			current = newHunkState(raw, m)
			if p.truncated(fd, i) {
				fd.Truncated = true
				return fd, nil
			}
			continue
		}

		if strings.HasPrefix(raw, "@@") {
			return nil, fmt.Errorf("%w: %s: bad hunk header %q", ErrMalformed, path, raw)
		}
		if current == nil {
			// Preamble before the first hunk (---/+++ headers etc).
			continue
		}
		// Trailing empty element from a final newline split.
		if raw == "" && i == len(lines)-1 {
			break
		}
		if strings.HasPrefix(raw, `\`) {
			// "\ No newline at end of file" carries no position.
			continue
		}

		position++
		if err := current.consume(raw, position); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
		}
	}

	if current != nil {
		if err := current.finish(fd); err != nil {
			return nil, err
		}
	}
	return fd, nil
}

// truncated reports whether the per-file cap has been reached at patch
// line index i. Truncation happens at hunk boundaries: completed hunks
// are kept, the hunk starting past the cap and everything after it is
// dropped.
func (p *Parser) truncated(fd *FileDiff, i int) bool {
	return p.cfg.MaxLinesPerFile > 0 && i+1 > p.cfg.MaxLinesPerFile
}

// hunkState accumulates one hunk during the linear pass.
type hunkState struct {
	hunk    Hunk
	oldNext int
	newNext int
	oldSeen int
	newSeen int
}

func newHunkState(header string, m []string) *hunkState {
	oldStart, _ := strconv.Atoi(m[1])
	oldCount := 1
	if m[2] != "" {
		oldCount, _ = strconv.Atoi(m[2])
	}
	newStart, _ := strconv.Atoi(m[3])
	newCount := 1
	if m[4] != "" {
		newCount, _ = strconv.Atoi(m[4])
	}
	return &hunkState{
		hunk: Hunk{
			OldStart: oldStart,
			OldCount: oldCount,
			NewStart: newStart,
			NewCount: newCount,
			Header:   header,
		},
		oldNext: oldStart,
		newNext: newStart,
	}
}

func (h *hunkState) consume(raw string, position int) error {
	switch {
	case strings.HasPrefix(raw, "+"):
		h.hunk.Lines = append(h.hunk.Lines, Line{
			Kind:     LineAddition,
			Content:  raw[1:],
			Position: position,
			NewLine:  h.newNext,
		})
		h.newNext++
		h.newSeen++
	case strings.HasPrefix(raw, "-"):
		h.hunk.Lines = append(h.hunk.Lines, Line{
			Kind:     LineDeletion,
			Content:  raw[1:],
			Position: position,
			OldLine:  h.oldNext,
		})
		h.oldNext++
		h.oldSeen++
	case strings.HasPrefix(raw, " "), raw == "":
		content := raw
		if content != "" {
			content = content[1:]
		}
		h.hunk.Lines = append(h.hunk.Lines, Line{
			Kind:     LineContext,
			Content:  content,
			Position: position,
			OldLine:  h.oldNext,
			NewLine:  h.newNext,
		})
		h.oldNext++
		h.newNext++
		h.oldSeen++
		h.newSeen++
	default:
		return fmt.Errorf("unexpected line marker %q", raw[:1])
	}
	return nil
}

// finish validates the hunk's bookkeeping against its declared ranges
// and appends it to the file diff.
func (h *hunkState) finish(fd *FileDiff) error {
	if h.oldSeen != h.hunk.OldCount || h.newSeen != h.hunk.NewCount {
		return fmt.Errorf("%w: %s: hunk %q counted %d/%d lines, declared %d/%d",
			ErrMalformed, fd.Path, h.hunk.Header, h.oldSeen, h.newSeen, h.hunk.OldCount, h.hunk.NewCount)
	}
	for _, l := range h.hunk.Lines {
		switch l.Kind {
		case LineAddition:
			fd.Additions++
		case LineDeletion:
			fd.Deletions++
		}
	}
	fd.Hunks = append(fd.Hunks, h.hunk)
	if n := h.lastNewLine(); n > fd.LastParsedNewLine {
		fd.LastParsedNewLine = n
	}
	return nil
}

func (h *hunkState) lastNewLine() int {
	return h.newNext - 1
}
