package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, patch string) *FileDiff {
	t.Helper()
	fd, err := NewParser(ParserConfig{}).Parse("main.go", ChangeModified, patch)
	require.NoError(t, err)
	return fd
}

func TestPositionIndex_AdditionPosition(t *testing.T) {
	fd := mustParse(t, singleHunkPatch)
	idx := NewPositionIndex(fd, IndexConfig{})

	// The addition is new-file line 2 at diff position 2.
	pos, ok := idx.PositionFor(2)
	require.True(t, ok)
	assert.Equal(t, 2, pos)
	assert.True(t, idx.IsCommentable(2))
}

func TestPositionIndex_ContextNotCommentableByDefault(t *testing.T) {
	fd := mustParse(t, singleHunkPatch)
	idx := NewPositionIndex(fd, IndexConfig{})

	pos, ok := idx.PositionFor(3)
	require.True(t, ok)
	assert.Equal(t, 3, pos)
	assert.False(t, idx.IsCommentable(3))
}

func TestPositionIndex_CommentableRadius(t *testing.T) {
	fd := mustParse(t, singleHunkPatch)
	idx := NewPositionIndex(fd, IndexConfig{CommentableRadius: 1})

	assert.True(t, idx.IsCommentable(1), "context line directly above the addition")
	assert.True(t, idx.IsCommentable(3), "context line directly below the addition")
	assert.False(t, idx.IsCommentable(4), "context line outside the radius")
}

func TestPositionIndex_NotFoundNeverWrong(t *testing.T) {
	fd := mustParse(t, singleHunkPatch)
	idx := NewPositionIndex(fd, IndexConfig{})

	_, ok := idx.PositionFor(99)
	assert.False(t, ok)
	assert.False(t, idx.IsCommentable(99))
}

func TestPositionIndex_SecondHunk(t *testing.T) {
	fd := mustParse(t, twoHunkPatch)
	idx := NewPositionIndex(fd, IndexConfig{})

	pos, ok := idx.PositionFor(12)
	require.True(t, ok)
	assert.Equal(t, 8, pos)

	hi, ok := idx.HunkFor(12)
	require.True(t, ok)
	assert.Equal(t, 1, hi)
}

func TestPositionIndex_TruncationBoundary(t *testing.T) {
	fd, err := NewParser(ParserConfig{MaxLinesPerFile: 5}).Parse("main.go", ChangeModified, twoHunkPatch)
	require.NoError(t, err)
	require.True(t, fd.Truncated)

	idx := NewPositionIndex(fd, IndexConfig{})
	assert.False(t, idx.BeyondParsedBoundary(4))
	assert.True(t, idx.BeyondParsedBoundary(12))
}
