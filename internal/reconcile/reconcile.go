// Package reconcile binds validated review findings to concrete diff
// positions. It is pure logic over PositionIndex: no model call, no
// hosting API, same output for the same input every time.
package reconcile

import (
	"fmt"

	"github.com/antinvestor/reviewer/internal/diff"
	"github.com/antinvestor/reviewer/internal/engine"
)

// DropReason explains why a finding produced no inline comment.
type DropReason string

const (
	// DropLineNotInDiff means no commentable line exists at or near
	// the claimed line.
	DropLineNotInDiff DropReason = "line-not-in-diff"

	// DropBeyondTruncation means the claimed line falls past the point
	// where a truncated parse stopped. Relocating such a comment would
	// anchor it to the wrong code, so it is suppressed instead.
	DropBeyondTruncation DropReason = "beyond-truncation"
)

// Comment is a finding bound to a diff position, ready for emission.
type Comment struct {
	Finding engine.Finding

	Path     string
	Line     int // new-file line the comment is anchored at
	Position int // diff position for that line

	// Adjusted is set when the anchor differs from the claimed line;
	// Body then carries a relocation note.
	Adjusted bool
	Body     string
}

// Dropped is a finding that could not be bound, with the reason.
type Dropped struct {
	Finding engine.Finding
	Reason  DropReason
}

// Config tunes the nearest-line fallback.
type Config struct {
	// FallbackWindow is how far from the claimed line to search for a
	// commentable anchor. Zero means the default of 3.
	FallbackWindow int

	// CrossHunk allows the fallback to bind in a different hunk than
	// the claimed line. Off by default: a comment that drifts into an
	// unrelated hunk reads as noise.
	CrossHunk bool
}

const defaultFallbackWindow = 3

// Reconciler maps findings onto diff positions.
type Reconciler struct {
	cfg Config
}

// New creates a reconciler.
func New(cfg Config) *Reconciler {
	if cfg.FallbackWindow <= 0 {
		cfg.FallbackWindow = defaultFallbackWindow
	}
	return &Reconciler{cfg: cfg}
}

// Reconcile binds each finding to a position using the per-path
// indexes. Findings for paths with no index, or no commentable anchor
// within the window, are returned as dropped. Order of the input is
// preserved in both outputs.
func (r *Reconciler) Reconcile(
	findings []engine.Finding,
	indexes map[string]*diff.PositionIndex,
) ([]Comment, []Dropped) {
	var comments []Comment
	var dropped []Dropped

	for _, f := range findings {
		idx, ok := indexes[f.File]
		if !ok {
			dropped = append(dropped, Dropped{Finding: f, Reason: DropLineNotInDiff})
			continue
		}

		if idx.BeyondParsedBoundary(f.Line) {
			dropped = append(dropped, Dropped{Finding: f, Reason: DropBeyondTruncation})
			continue
		}

		c, ok := r.bind(f, idx)
		if !ok {
			dropped = append(dropped, Dropped{Finding: f, Reason: DropLineNotInDiff})
			continue
		}
		comments = append(comments, c)
	}

	return comments, dropped
}

// bind anchors a finding at its claimed line, or at the nearest
// commentable line within the window, searching downward first.
func (r *Reconciler) bind(f engine.Finding, idx *diff.PositionIndex) (Comment, bool) {
	if idx.IsCommentable(f.Line) {
		pos, _ := idx.PositionFor(f.Line)
		return Comment{
			Finding:  f,
			Path:     f.File,
			Line:     f.Line,
			Position: pos,
			Body:     f.Body,
		}, true
	}

	claimedHunk, claimedInDiff := idx.HunkFor(f.Line)

	for d := 1; d <= r.cfg.FallbackWindow; d++ {
		for _, line := range []int{f.Line + d, f.Line - d} {
			if line < 1 || !idx.IsCommentable(line) {
				continue
			}
			if !r.cfg.CrossHunk && claimedInDiff {
				if h, _ := idx.HunkFor(line); h != claimedHunk {
					continue
				}
			}
			pos, _ := idx.PositionFor(line)
			return Comment{
				Finding:  f,
				Path:     f.File,
				Line:     line,
				Position: pos,
				Adjusted: true,
				Body: fmt.Sprintf(
					"%s\n\n_Note: this comment refers to line %d, which is not part of the visible diff._",
					f.Body, f.Line,
				),
			}, true
		}
	}

	return Comment{}, false
}
