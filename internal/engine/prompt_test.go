package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/reviewer/internal/diff"
)

const promptFixturePatch = `@@ -1,3 +1,4 @@
 alpha
+beta
 gamma
 delta`

func parsedFile(t *testing.T, path, patch string) *diff.FileDiff {
	t.Helper()
	fd, err := diff.NewParser(diff.ParserConfig{}).Parse(path, diff.ChangeModified, patch)
	require.NoError(t, err)
	return fd
}

func TestPromptBuildIncludesMetadata(t *testing.T) {
	pb, err := NewPromptBuilder()
	require.NoError(t, err)

	prompt, err := pb.Build(PromptInput{
		Title:       "Add beta handling",
		Description: "Introduces beta between alpha and gamma.",
		Files:       []*diff.FileDiff{parsedFile(t, "pkg/seq/seq.go", promptFixturePatch)},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Add beta handling")
	assert.Contains(t, prompt, "Introduces beta")
	assert.Contains(t, prompt, "### pkg/seq/seq.go (modified, +1 -0)")
	assert.Contains(t, prompt, "```diff")
	assert.Contains(t, prompt, "+beta")
	assert.Contains(t, prompt, "@@ -1,3 +1,4 @@")
}

func TestPromptBuildOmitsEmptySections(t *testing.T) {
	pb, err := NewPromptBuilder()
	require.NoError(t, err)

	prompt, err := pb.Build(PromptInput{
		Files: []*diff.FileDiff{parsedFile(t, "a.go", promptFixturePatch)},
	})
	require.NoError(t, err)

	assert.NotContains(t, prompt, "## Title")
	assert.NotContains(t, prompt, "## Description")
}

func TestPromptBuildBudgetCutsLaterFiles(t *testing.T) {
	pb, err := NewPromptBuilder()
	require.NoError(t, err)

	first := parsedFile(t, "first.go", promptFixturePatch)
	second := parsedFile(t, "second.go", promptFixturePatch)
	third := parsedFile(t, "third.go", promptFixturePatch)

	prompt, err := pb.Build(PromptInput{
		Files:    []*diff.FileDiff{first, second, third},
		MaxChars: len(promptFixturePatch) + 1,
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "first.go")
	assert.Contains(t, prompt, "2 further file(s) omitted for size")
	assert.NotContains(t, prompt, "+beta\n gamma\n delta\n```\n\n### third.go")
}

func TestPromptBuildBudgetsRenderedHunks(t *testing.T) {
	pb, err := NewPromptBuilder()
	require.NoError(t, err)

	// A truncated file keeps the full patch but renders only the
	// parsed hunks; budgeting must follow what is actually rendered.
	big := "@@ -1,0 +1,2 @@\n+padline\n+padline\n" +
		"@@ -10,0 +12,50 @@\n+" + strings.Repeat("padline\n+", 49) + "padline"
	fd, err := diff.NewParser(diff.ParserConfig{MaxLinesPerFile: 3}).Parse("big.go", diff.ChangeModified, big)
	require.NoError(t, err)
	require.True(t, fd.Truncated)
	require.Greater(t, len(fd.Patch), 200)

	prompt, err := pb.Build(PromptInput{
		Files:    []*diff.FileDiff{fd},
		MaxChars: 150,
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "+padline")
	assert.NotContains(t, prompt, "omitted for size")
}

func TestPromptBuildClampsDescription(t *testing.T) {
	pb, err := NewPromptBuilder()
	require.NoError(t, err)

	prompt, err := pb.Build(PromptInput{
		Description: strings.Repeat("x", 5000),
		Files:       []*diff.FileDiff{parsedFile(t, "a.go", promptFixturePatch)},
	})
	require.NoError(t, err)

	assert.Less(t, strings.Count(prompt, "x"), 2000)
}
