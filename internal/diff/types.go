// Package diff parses unified-diff patches into a structure that carries
// both file-relative line numbers and diff-relative positions, so that
// review comments can be anchored the way the hosting platform expects.
package diff

// ChangeKind describes how a file was changed.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
	ChangeRenamed  ChangeKind = "renamed"
)

// LineKind describes a single diff line.
type LineKind string

const (
	LineContext  LineKind = "context"
	LineAddition LineKind = "addition"
	LineDeletion LineKind = "deletion"
)

// Line is one line of a hunk.
//
// Position is the 1-based diff-relative position: the number of lines
// below the first hunk header, counting every emitted line including
// subsequent hunk headers. This is the coordinate the hosting platform's
// comment API addresses.
//
// Exactly one of OldLine/NewLine may be zero (absent), never both:
// additions have no old line, deletions have no new line.
type Line struct {
	Kind     LineKind `json:"kind"`
	Content  string   `json:"content"`
	Position int      `json:"position"`
	OldLine  int      `json:"old_line,omitempty"`
	NewLine  int      `json:"new_line,omitempty"`
}

// Hunk is a contiguous block of the diff with declared old/new ranges.
type Hunk struct {
	OldStart int    `json:"old_start"`
	OldCount int    `json:"old_count"`
	NewStart int    `json:"new_start"`
	NewCount int    `json:"new_count"`
	Header   string `json:"header"`
	Lines    []Line `json:"lines"`
}

// FileDiff is the parsed diff for one changed file. Immutable once
// parsed; owned by the pipeline run that fetched it.
type FileDiff struct {
	// Path is the new-file path (old path for removed files).
	Path string `json:"path"`

	// Change is how the file was changed.
	Change ChangeKind `json:"change"`

	// Patch is the raw unified-diff text the hunks were parsed from.
	Patch string `json:"patch"`

	// Hunks is the ordered hunk sequence. Empty for binary files and
	// pure renames; such files are never commentable.
	Hunks []Hunk `json:"hunks"`

	// Additions and Deletions are totals across all parsed hunks.
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`

	// Truncated is set when hunks beyond the per-file line cap were
	// dropped. LastParsedNewLine is the highest new-file line number
	// that survived parsing; comments past it must be suppressed
	// rather than mis-located.
	Truncated         bool `json:"truncated,omitempty"`
	LastParsedNewLine int  `json:"last_parsed_new_line,omitempty"`
}

// HasHunks reports whether the diff carries any commentable content.
func (fd *FileDiff) HasHunks() bool {
	return len(fd.Hunks) > 0
}

// TotalLines is the number of changed lines across all parsed hunks.
func (fd *FileDiff) TotalLines() int {
	return fd.Additions + fd.Deletions
}
