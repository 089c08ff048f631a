package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/reviewer/internal/diff"
	"github.com/antinvestor/reviewer/internal/engine"
)

const singleHunkPatch = `@@ -1,3 +1,4 @@
 alpha
+beta
 gamma
 delta`

const twoHunkPatch = `@@ -1,3 +1,4 @@
 alpha
+beta
 gamma
 delta
@@ -10,3 +11,4 @@
 epsilon
+zeta
 eta
 theta`

func indexFor(t *testing.T, patch string, cfg diff.IndexConfig) *diff.PositionIndex {
	t.Helper()
	fd, err := diff.NewParser(diff.ParserConfig{}).Parse("main.go", diff.ChangeModified, patch)
	require.NoError(t, err)
	return diff.NewPositionIndex(fd, cfg)
}

func finding(line int) engine.Finding {
	return engine.Finding{
		File:     "main.go",
		Line:     line,
		Severity: engine.SeverityMedium,
		Category: engine.CategoryBug,
		Title:    "possible nil dereference",
		Body:     "beta may be nil here.",
	}
}

func TestReconcileExactBind(t *testing.T) {
	idx := indexFor(t, singleHunkPatch, diff.IndexConfig{})

	comments, dropped := New(Config{}).Reconcile(
		[]engine.Finding{finding(2)},
		map[string]*diff.PositionIndex{"main.go": idx},
	)

	require.Len(t, comments, 1)
	assert.Empty(t, dropped)

	c := comments[0]
	assert.Equal(t, "main.go", c.Path)
	assert.Equal(t, 2, c.Line)
	assert.Equal(t, 2, c.Position)
	assert.False(t, c.Adjusted)
	assert.Equal(t, "beta may be nil here.", c.Body)
}

func TestReconcileNearestLineFallback(t *testing.T) {
	idx := indexFor(t, singleHunkPatch, diff.IndexConfig{})

	// Line 3 is context, not commentable; line 2 (the addition) is the
	// nearest commentable anchor.
	comments, dropped := New(Config{}).Reconcile(
		[]engine.Finding{finding(3)},
		map[string]*diff.PositionIndex{"main.go": idx},
	)

	require.Len(t, comments, 1)
	assert.Empty(t, dropped)

	c := comments[0]
	assert.Equal(t, 2, c.Line)
	assert.Equal(t, 2, c.Position)
	assert.True(t, c.Adjusted)
	assert.Contains(t, c.Body, "beta may be nil here.")
	assert.Contains(t, c.Body, "line 3")
}

func TestReconcileSearchesDownwardFirst(t *testing.T) {
	// Radius 1 makes lines 1 and 3 commentable alongside the addition
	// at 2. A claim at line 4 must pick 5 only if commentable below,
	// otherwise the nearest above.
	idx := indexFor(t, singleHunkPatch, diff.IndexConfig{CommentableRadius: 1})

	comments, _ := New(Config{}).Reconcile(
		[]engine.Finding{finding(4)},
		map[string]*diff.PositionIndex{"main.go": idx},
	)

	require.Len(t, comments, 1)
	// Nothing commentable below line 4 in this hunk, so it walks up to 3.
	assert.Equal(t, 3, comments[0].Line)
	assert.True(t, comments[0].Adjusted)
}

func TestReconcileWindowExhaustedDrops(t *testing.T) {
	idx := indexFor(t, twoHunkPatch, diff.IndexConfig{})

	// Line 7 is between the hunks, more than 3 lines from any addition.
	comments, dropped := New(Config{}).Reconcile(
		[]engine.Finding{finding(7)},
		map[string]*diff.PositionIndex{"main.go": idx},
	)

	assert.Empty(t, comments)
	require.Len(t, dropped, 1)
	assert.Equal(t, DropLineNotInDiff, dropped[0].Reason)
}

func TestReconcileSameHunkOnly(t *testing.T) {
	idx := indexFor(t, twoHunkPatch, diff.IndexConfig{})

	// Line 13 is context in the second hunk; the only commentable line
	// within the window belonging to the same hunk is the addition at
	// 12. The first hunk must never be considered.
	comments, _ := New(Config{}).Reconcile(
		[]engine.Finding{finding(13)},
		map[string]*diff.PositionIndex{"main.go": idx},
	)

	require.Len(t, comments, 1)
	assert.Equal(t, 12, comments[0].Line)
}

// adjacentHunksPatch has a deletion-only first hunk, so its only
// commentable line lives in the second hunk.
const adjacentHunksPatch = `@@ -1,3 +1,2 @@
 alpha
-beta
 gamma
@@ -5,2 +4,3 @@
 delta
+epsilon
 eta`

func TestReconcileCrossHunkDisabledByDefault(t *testing.T) {
	idx := indexFor(t, adjacentHunksPatch, diff.IndexConfig{})

	// Line 2 is context in the first hunk; the nearest commentable
	// line (5) is in the second hunk and must be refused.
	comments, dropped := New(Config{FallbackWindow: 5}).Reconcile(
		[]engine.Finding{finding(2)},
		map[string]*diff.PositionIndex{"main.go": idx},
	)

	assert.Empty(t, comments)
	require.Len(t, dropped, 1)
	assert.Equal(t, DropLineNotInDiff, dropped[0].Reason)
}

func TestReconcileCrossHunkEnabled(t *testing.T) {
	idx := indexFor(t, adjacentHunksPatch, diff.IndexConfig{})

	comments, dropped := New(Config{FallbackWindow: 5, CrossHunk: true}).Reconcile(
		[]engine.Finding{finding(2)},
		map[string]*diff.PositionIndex{"main.go": idx},
	)

	require.Len(t, comments, 1)
	assert.Empty(t, dropped)
	assert.Equal(t, 5, comments[0].Line)
	assert.True(t, comments[0].Adjusted)
}

func TestReconcileZeroHunkFileDrops(t *testing.T) {
	fd, err := diff.NewParser(diff.ParserConfig{}).Parse("image.png", diff.ChangeModified, "")
	require.NoError(t, err)
	idx := diff.NewPositionIndex(fd, diff.IndexConfig{})

	f := finding(1)
	f.File = "image.png"
	comments, dropped := New(Config{}).Reconcile(
		[]engine.Finding{f},
		map[string]*diff.PositionIndex{"image.png": idx},
	)

	assert.Empty(t, comments)
	require.Len(t, dropped, 1)
	assert.Equal(t, DropLineNotInDiff, dropped[0].Reason)
}

func TestReconcileMissingIndexDrops(t *testing.T) {
	comments, dropped := New(Config{}).Reconcile(
		[]engine.Finding{finding(2)},
		map[string]*diff.PositionIndex{},
	)

	assert.Empty(t, comments)
	require.Len(t, dropped, 1)
	assert.Equal(t, DropLineNotInDiff, dropped[0].Reason)
}

func TestReconcileBeyondTruncationDrops(t *testing.T) {
	fd, err := diff.NewParser(diff.ParserConfig{MaxLinesPerFile: 5}).
		Parse("main.go", diff.ChangeModified, twoHunkPatch)
	require.NoError(t, err)
	require.True(t, fd.Truncated)
	idx := diff.NewPositionIndex(fd, diff.IndexConfig{})

	comments, dropped := New(Config{}).Reconcile(
		[]engine.Finding{finding(12)},
		map[string]*diff.PositionIndex{"main.go": idx},
	)

	assert.Empty(t, comments)
	require.Len(t, dropped, 1)
	assert.Equal(t, DropBeyondTruncation, dropped[0].Reason)
}

func TestReconcileIdempotent(t *testing.T) {
	idx := indexFor(t, twoHunkPatch, diff.IndexConfig{})
	findings := []engine.Finding{finding(2), finding(3), finding(7), finding(13)}
	indexes := map[string]*diff.PositionIndex{"main.go": idx}

	r := New(Config{})
	c1, d1 := r.Reconcile(findings, indexes)
	c2, d2 := r.Reconcile(findings, indexes)

	assert.Equal(t, c1, c2)
	assert.Equal(t, d1, d2)
}
