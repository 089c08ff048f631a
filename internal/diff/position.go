package diff

// PositionIndex answers "what diff position corresponds to new-file
// line N" and "is line N commentable". It is the sole translation
// boundary between the model's new-file line numbers and the hosting
// platform's position coordinates.
type PositionIndex struct {
	positions   map[int]int
	commentable map[int]bool
	hunkOf      map[int]int
	truncated   bool
	lastNewLine int
}

// IndexConfig controls which lines are considered commentable.
type IndexConfig struct {
	// CommentableRadius is how many context lines around an addition
	// or deletion run are commentable. Zero means only additions.
	CommentableRadius int
}

// NewPositionIndex builds the index from a parsed file diff in a
// single pass over its hunks.
func NewPositionIndex(fd *FileDiff, cfg IndexConfig) *PositionIndex {
	idx := &PositionIndex{
		positions:   make(map[int]int),
		commentable: make(map[int]bool),
		hunkOf:      make(map[int]int),
		truncated:   fd.Truncated,
		lastNewLine: fd.LastParsedNewLine,
	}

	for hi, h := range fd.Hunks {
		for _, l := range h.Lines {
			if l.NewLine == 0 {
				continue
			}
			idx.positions[l.NewLine] = l.Position
			idx.hunkOf[l.NewLine] = hi
			if l.Kind == LineAddition {
				idx.commentable[l.NewLine] = true
			}
		}
		if cfg.CommentableRadius > 0 {
			idx.markAdjacentContext(h, cfg.CommentableRadius)
		}
	}
	return idx
}

// markAdjacentContext makes context lines within radius of a changed
// line commentable.
func (idx *PositionIndex) markAdjacentContext(h Hunk, radius int) {
	for i, l := range h.Lines {
		if l.Kind == LineContext {
			continue
		}
		lo := i - radius
		if lo < 0 {
			lo = 0
		}
		hi := i + radius
		if hi > len(h.Lines)-1 {
			hi = len(h.Lines) - 1
		}
		for j := lo; j <= hi; j++ {
			if n := h.Lines[j].NewLine; n != 0 {
				idx.commentable[n] = true
			}
		}
	}
}

// PositionFor returns the diff position for a new-file line. The
// second return is false when the line does not appear in the diff; a
// wrong position is never returned.
func (idx *PositionIndex) PositionFor(newLine int) (int, bool) {
	pos, ok := idx.positions[newLine]
	return pos, ok
}

// IsCommentable reports whether an inline comment may be anchored at
// the given new-file line.
func (idx *PositionIndex) IsCommentable(newLine int) bool {
	return idx.commentable[newLine]
}

// HunkFor returns the index of the hunk containing the new-file line.
func (idx *PositionIndex) HunkFor(newLine int) (int, bool) {
	hi, ok := idx.hunkOf[newLine]
	return hi, ok
}

// BeyondParsedBoundary reports whether the line falls past the point
// where a truncated parse stopped. Comments there must be suppressed,
// not relocated.
func (idx *PositionIndex) BeyondParsedBoundary(newLine int) bool {
	return idx.truncated && newLine > idx.lastNewLine
}
