package run

import (
	"context"
	"errors"
	"sync"

	"github.com/antinvestor/reviewer/internal/githost"
	"github.com/antinvestor/reviewer/internal/llm"
)

// errSuperseded is the cancel cause for a run displaced by a newer
// revision of the same unit.
var errSuperseded = errors.New("superseded by newer revision")

// gatedClient decorates the completion client with the admission
// limiter and the shared retry policy, so the review engine stays
// unaware of either. The token is acquired per attempt, immediately
// before the call.
type gatedClient struct {
	base    llm.Client
	limiter *AdmissionLimiters
	policy  RetryPolicy
}

func (c *gatedClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var out *llm.CompletionResponse
	err := WithRetry(ctx, c.policy, ClassifyCompletion, nil, func(ctx context.Context) error {
		if waitErr := c.limiter.WaitCompletion(ctx); waitErr != nil {
			return waitErr
		}
		resp, callErr := c.base.Complete(ctx, req)
		if callErr != nil {
			return callErr
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// activeRuns tracks the newest run's cancel func per unit, for the
// optional cancel-superseded mode. Keyed by unit only: a new revision
// replaces, and cancels, the previous one.
type activeRuns struct {
	mu   sync.Mutex
	runs map[string]activeRun
}

type activeRun struct {
	revision githost.Revision
	cancel   context.CancelCauseFunc
}

func newActiveRuns() *activeRuns {
	return &activeRuns{runs: make(map[string]activeRun)}
}

func unitKey(unit githost.Unit) string {
	return dedupKey(unit, "")
}

// replace registers the run and cancels any in-flight run for a
// different revision of the same unit.
func (a *activeRuns) replace(unit githost.Unit, revision githost.Revision, cancel context.CancelCauseFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := unitKey(unit)
	if prev, ok := a.runs[key]; ok && prev.revision != revision {
		prev.cancel(errSuperseded)
	}
	a.runs[key] = activeRun{revision: revision, cancel: cancel}
}

// remove unregisters the run if it is still the unit's current one.
func (a *activeRuns) remove(unit githost.Unit, revision githost.Revision) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := unitKey(unit)
	if cur, ok := a.runs[key]; ok && cur.revision == revision {
		delete(a.runs, key)
	}
}
