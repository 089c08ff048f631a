package diff

import (
	"fmt"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// FilePatch is one file's slice of a whole-revision unified diff.
type FilePatch struct {
	Path  string
	Patch string
}

// SplitUnified splits a multi-file unified diff blob into per-file
// patches. Used when the hosting API returns a file entry without its
// own patch and the run falls back to the revision's single .diff
// download; the result feeds the same Parser as per-file patches do.
func SplitUnified(blob []byte) ([]FilePatch, error) {
	fds, err := godiff.ParseMultiFileDiff(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	patches := make([]FilePatch, 0, len(fds))
	for _, fd := range fds {
		var b strings.Builder
		for _, h := range fd.Hunks {
			b.WriteString(fmt.Sprintf("@@ -%d,%d +%d,%d @@",
				h.OrigStartLine, h.OrigLines, h.NewStartLine, h.NewLines))
			if h.Section != "" {
				b.WriteString(" ")
				b.WriteString(h.Section)
			}
			b.WriteString("\n")
			b.Write(h.Body)
			if len(h.Body) > 0 && h.Body[len(h.Body)-1] != '\n' {
				b.WriteString("\n")
			}
		}
		patches = append(patches, FilePatch{
			Path:  stripPathPrefix(fd.NewName, fd.OrigName),
			Patch: b.String(),
		})
	}
	return patches, nil
}

// stripPathPrefix removes the conventional a/ and b/ prefixes, falling
// back to the old name for deletions ("/dev/null" new side).
func stripPathPrefix(newName, origName string) string {
	name := newName
	if name == "/dev/null" || name == "" {
		name = origName
	}
	name = strings.TrimPrefix(name, "b/")
	name = strings.TrimPrefix(name, "a/")
	return name
}
