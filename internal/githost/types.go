// Package githost is the port to the change-hosting platform: listing
// a revision's changed files and posting the finished review. The rest
// of the pipeline depends only on the ChangeHost interface.
package githost

import (
	"context"

	"github.com/antinvestor/reviewer/internal/diff"
)

// Unit identifies one reviewable unit on the host.
type Unit struct {
	Owner  string
	Repo   string
	Number int
}

// Revision is the head commit a review is pinned to.
type Revision string

// ChangedFile is one file of a revision's diff as reported by the host.
type ChangedFile struct {
	Path         string
	PreviousPath string
	Change       diff.ChangeKind
	Patch        string
	Additions    int
	Deletions    int
}

// ReviewEvent is the overall review action.
type ReviewEvent string

const (
	EventApprove        ReviewEvent = "APPROVE"
	EventComment        ReviewEvent = "COMMENT"
	EventRequestChanges ReviewEvent = "REQUEST_CHANGES"
)

// InlineComment anchors a comment body at a diff position.
type InlineComment struct {
	Path     string
	Position int
	Body     string
}

// Review is the terminal artifact posted back to the host.
type Review struct {
	Revision Revision
	Body     string
	Event    ReviewEvent
	Comments []InlineComment
}

// ChangeHost abstracts the hosting platform API.
type ChangeHost interface {
	// ListChangedFiles returns every changed file of the unit's current
	// revision, fully paginated, in the host's order.
	ListChangedFiles(ctx context.Context, unit Unit) ([]ChangedFile, error)

	// GetUnifiedDiff downloads the unit's whole-revision diff as one
	// unified-diff blob. Fallback source when the file listing omits
	// inline patches.
	GetUnifiedDiff(ctx context.Context, unit Unit) (string, error)

	// CreateReview posts a review with inline comments pinned to the
	// given revision.
	CreateReview(ctx context.Context, unit Unit, review Review) error

	// PostComment posts a plain unit-level comment, used for skip and
	// failure notices where a positioned review is impossible.
	PostComment(ctx context.Context, unit Unit, body string) error
}
