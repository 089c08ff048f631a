package run

import (
	"context"
	"fmt"
	"time"

	"github.com/pitabwire/util"

	"github.com/antinvestor/reviewer/internal/diff"
	"github.com/antinvestor/reviewer/internal/engine"
	"github.com/antinvestor/reviewer/internal/githost"
	"github.com/antinvestor/reviewer/internal/reconcile"
)

// State is a review run's pipeline stage.
type State string

const (
	StateAccepted    State = "accepted"
	StateFetching    State = "fetching"
	StateFiltering   State = "filtering"
	StateParsing     State = "parsing"
	StatePrompting   State = "prompting"
	StateValidating  State = "validating"
	StateReconciling State = "reconciling"
	StateEmitting    State = "emitting"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateSkipped     State = "skipped"
)

// Terminal reports whether the state is final. Terminal runs are never
// resumed, only restarted as brand-new runs.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateSkipped
}

// Terminal-state reasons surfaced in logs and explanatory comments.
const (
	ReasonDeadlineExceeded = "deadline-exceeded"
	ReasonDiffTooLarge     = "diff-too-large"
	ReasonNothingToReview  = "nothing-to-review"
	ReasonFetchFailed      = "fetch-failed"
	ReasonCompletionFailed = "completion-failed"
	ReasonEmitFailed       = "emit-failed"
	ReasonSuperseded       = "superseded"
)

// validNext encodes the allowed state machine edges.
var validNext = map[State][]State{
	StateAccepted:    {StateFetching, StateFailed, StateSkipped},
	StateFetching:    {StateFiltering, StateFailed, StateSkipped},
	StateFiltering:   {StateParsing, StateFailed, StateSkipped},
	StateParsing:     {StatePrompting, StateFailed, StateSkipped},
	StatePrompting:   {StateValidating, StateFailed},
	StateValidating:  {StateReconciling, StateFailed},
	StateReconciling: {StateEmitting, StateFailed},
	StateEmitting:    {StateCompleted, StateFailed},
}

// ReviewRun is the unit of work for one revision. It lives only for
// the duration of the pipeline; nothing is persisted beyond logs.
type ReviewRun struct {
	ID         RunID
	Unit       githost.Unit
	Revision   githost.Revision
	Title      string
	Descr      string
	AcceptedAt time.Time

	State  State
	Reason string

	Files    []*diff.FileDiff
	Result   *engine.Result
	Comments []reconcile.Comment
	Dropped  []reconcile.Dropped

	// notes accumulate user-visible filtering decisions for the review
	// body (files dropped by caps, malformed diffs skipped).
	notes []string
}

func newReviewRun(req Request) *ReviewRun {
	return &ReviewRun{
		ID:         NewRunID(),
		Unit:       req.Unit,
		Revision:   req.Revision,
		Title:      req.Title,
		Descr:      req.Description,
		AcceptedAt: time.Now(),
		State:      StateAccepted,
	}
}

// transition moves the run to the next state, enforcing the machine's
// edges. A bad transition is a programming error and panics in tests
// via the returned error path.
func (r *ReviewRun) transition(ctx context.Context, to State) error {
	for _, next := range validNext[r.State] {
		if next == to {
			util.Log(ctx).Debug("run state change",
				"run", r.ID.Short(),
				"from", r.State,
				"to", to,
			)
			r.State = to
			return nil
		}
	}
	return fmt.Errorf("invalid run transition %s -> %s", r.State, to)
}

// finish moves the run to a terminal state with a reason.
func (r *ReviewRun) finish(ctx context.Context, to State, reason string) {
	if r.State.Terminal() {
		return
	}
	r.Reason = reason
	if err := r.transition(ctx, to); err != nil {
		// Every non-terminal state has an edge to Failed and Skipped
		// edges exist early; force the terminal state rather than
		// leaving the run dangling.
		r.State = to
	}
}

func (r *ReviewRun) note(format string, args ...any) {
	r.notes = append(r.notes, fmt.Sprintf(format, args...))
}
