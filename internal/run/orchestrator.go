package run

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/util"
	"golang.org/x/sync/semaphore"

	"github.com/antinvestor/reviewer/internal/diff"
	"github.com/antinvestor/reviewer/internal/engine"
	"github.com/antinvestor/reviewer/internal/githost"
	"github.com/antinvestor/reviewer/internal/llm"
	"github.com/antinvestor/reviewer/internal/reconcile"
)

// Config is the orchestration tuning surface. Zero values take the
// documented defaults.
type Config struct {
	MaxFilesPerRun  int
	MaxLinesPerFile int
	MaxTotalLines   int

	// BestEffortPartial reviews as much of an oversized diff as fits
	// instead of skipping the run.
	BestEffortPartial bool

	SkipPathGlobs  []string
	SkipExtensions []string

	CommentableRadius int
	FallbackWindow    int
	FallbackCrossHunk bool

	Retry RetryPolicy

	HostAPIRequestsPerHour      int
	CompletionRequestsPerMinute int

	RunDeadline       time.Duration
	MaxConcurrentRuns int64

	// CancelSupersededRuns cancels the in-flight run for an older
	// revision when a newer revision of the same unit arrives.
	CancelSupersededRuns bool

	Model          llm.Model
	MaxTokens      int
	Temperature    float64
	MaxPromptChars int
}

const (
	defaultMaxFiles       = 50
	defaultMaxTotalLines  = 8000
	defaultRunDeadline    = 10 * time.Minute
	defaultConcurrentRuns = 8
)

func (c Config) normalized() Config {
	if c.MaxFilesPerRun <= 0 {
		c.MaxFilesPerRun = defaultMaxFiles
	}
	if c.MaxTotalLines <= 0 {
		c.MaxTotalLines = defaultMaxTotalLines
	}
	if c.RunDeadline <= 0 {
		c.RunDeadline = defaultRunDeadline
	}
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = defaultConcurrentRuns
	}
	c.Retry = c.Retry.normalized()
	return c
}

// Request asks for one revision to be reviewed.
type Request struct {
	Unit        githost.Unit
	Revision    githost.Revision
	Title       string
	Description string
}

// Orchestrator runs review pipelines concurrently. Shared mutable
// state is exactly the admission limiters, the dedup store and the
// superseded-run registry; everything else is per-run.
type Orchestrator struct {
	cfg        Config
	host       githost.ChangeHost
	tokens     githost.TokenSource
	engine     *engine.Engine
	parser     *diff.Parser
	reconciler *reconcile.Reconciler
	limiters   *AdmissionLimiters
	dedup      DedupStore

	sem    *semaphore.Weighted
	active *activeRuns
	wg     sync.WaitGroup
}

// NewOrchestrator wires the pipeline. completions is the raw client;
// the orchestrator wraps it so every model call passes the completion
// limiter and the shared retry policy.
func NewOrchestrator(
	cfg Config,
	host githost.ChangeHost,
	completions llm.Client,
	tokens githost.TokenSource,
	dedup DedupStore,
) (*Orchestrator, error) {
	cfg = cfg.normalized()

	limiters := NewAdmissionLimiters(cfg.HostAPIRequestsPerHour, cfg.CompletionRequestsPerMinute)

	gated := &gatedClient{
		base:    completions,
		limiter: limiters,
		policy:  cfg.Retry,
	}

	eng, err := engine.NewEngine(gated, engine.EngineConfig{
		Model:          cfg.Model,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		MaxPromptChars: cfg.MaxPromptChars,
	})
	if err != nil {
		return nil, fmt.Errorf("review engine: %w", err)
	}

	return &Orchestrator{
		cfg:        cfg,
		host:       host,
		tokens:     tokens,
		engine:     eng,
		parser:     diff.NewParser(diff.ParserConfig{MaxLinesPerFile: cfg.MaxLinesPerFile}),
		reconciler: reconcile.New(reconcile.Config{
			FallbackWindow: cfg.FallbackWindow,
			CrossHunk:      cfg.FallbackCrossHunk,
		}),
		limiters: limiters,
		dedup:    dedup,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentRuns),
		active:   newActiveRuns(),
	}, nil
}

// Submit enqueues a review run and returns immediately. A submission
// for a (unit, revision) pair already in flight is a no-op. The caller
// is responsible for having authenticated the inbound notification.
func (o *Orchestrator) Submit(ctx context.Context, req Request) {
	log := util.Log(ctx)
	key := dedupKey(req.Unit, req.Revision)

	ok, err := o.dedup.TryBegin(ctx, key)
	if err != nil {
		log.WithError(err).Error("dedup admission failed", "key", key)
		return
	}
	if !ok {
		log.Info("duplicate submission dropped", "key", key)
		return
	}

	// The run outlives the notification's request context.
	baseCtx, cancelCause := context.WithCancelCause(context.WithoutCancel(ctx))
	runCtx, cancel := context.WithTimeout(baseCtx, o.cfg.RunDeadline)

	if o.cfg.CancelSupersededRuns {
		o.active.replace(req.Unit, req.Revision, cancelCause)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer cancelCause(nil)
		defer func() {
			if o.cfg.CancelSupersededRuns {
				o.active.remove(req.Unit, req.Revision)
			}
			if endErr := o.dedup.End(context.WithoutCancel(runCtx), key); endErr != nil {
				log.WithError(endErr).Error("dedup release failed", "key", key)
			}
		}()

		if acqErr := o.sem.Acquire(runCtx, 1); acqErr != nil {
			log.WithError(acqErr).Warn("run never admitted", "key", key)
			return
		}
		defer o.sem.Release(1)

		o.execute(runCtx, req)
	}()
}

// Wait blocks until all in-flight runs finish. Shutdown path.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// execute drives one run through the state machine.
func (o *Orchestrator) execute(ctx context.Context, req Request) {
	r := newReviewRun(req)
	log := util.Log(ctx).With(
		"run", r.ID.Short(),
		"unit", fmt.Sprintf("%s/%s#%d", r.Unit.Owner, r.Unit.Repo, r.Unit.Number),
		"revision", r.Revision,
	)

	log.Info("review run accepted")

	if err := o.runPipeline(ctx, r); err != nil {
		if !r.State.Terminal() {
			reason := r.Reason
			if reason == "" {
				reason = ReasonCompletionFailed
			}
			if ctx.Err() != nil {
				reason = ReasonDeadlineExceeded
				if errors.Is(context.Cause(ctx), errSuperseded) {
					reason = ReasonSuperseded
				}
			}
			r.finish(ctx, StateFailed, reason)
		}
		if r.Reason == ReasonSuperseded {
			log.Info("review run superseded by newer revision")
			return
		}
		log.WithError(err).Error("review run failed", "reason", r.Reason)
		o.postNotice(ctx, r)
		return
	}

	log.Info("review run finished",
		"state", r.State,
		"reason", r.Reason,
		"comments", len(r.Comments),
		"dropped", len(r.Dropped),
	)
	if r.State == StateSkipped {
		o.postNotice(ctx, r)
	}
}

func (o *Orchestrator) runPipeline(ctx context.Context, r *ReviewRun) error {
	if err := o.fetch(ctx, r); err != nil {
		return err
	}
	if err := o.filter(ctx, r); err != nil || r.State.Terminal() {
		return err
	}
	if err := o.parse(ctx, r); err != nil || r.State.Terminal() {
		return err
	}
	if err := o.review(ctx, r); err != nil {
		return err
	}
	if err := o.reconcileFindings(ctx, r); err != nil {
		return err
	}
	return o.emit(ctx, r)
}

// fetch pulls the changed-file list, retried under the host limiter.
func (o *Orchestrator) fetch(ctx context.Context, r *ReviewRun) error {
	if err := r.transition(ctx, StateFetching); err != nil {
		return err
	}

	var files []githost.ChangedFile
	err := WithRetry(ctx, o.cfg.Retry, githost.Classify, o.tokens.Invalidate, func(ctx context.Context) error {
		if waitErr := o.limiters.WaitHost(ctx); waitErr != nil {
			return waitErr
		}
		var listErr error
		files, listErr = o.host.ListChangedFiles(ctx, r.Unit)
		return listErr
	})
	if err != nil {
		r.Reason = ReasonFetchFailed
		return fmt.Errorf("fetch changed files: %w", err)
	}

	o.fillMissingPatches(ctx, r, files)

	r.Files = make([]*diff.FileDiff, 0, len(files))
	for i := range files {
		cf := files[i]
		r.Files = append(r.Files, &diff.FileDiff{
			Path:   cf.Path,
			Change: cf.Change,
			Patch:  cf.Patch,
		})
	}
	return nil
}

// fillMissingPatches falls back to the unit's whole-revision diff for
// file entries the listing returned without an inline patch despite
// reporting edits. Failure here is tolerated: affected files parse to
// zero hunks and their findings are dropped at reconciliation.
func (o *Orchestrator) fillMissingPatches(ctx context.Context, r *ReviewRun, files []githost.ChangedFile) {
	missing := 0
	for i := range files {
		if files[i].Patch == "" && files[i].Additions+files[i].Deletions > 0 {
			missing++
		}
	}
	if missing == 0 {
		return
	}
	log := util.Log(ctx)

	var blob string
	err := WithRetry(ctx, o.cfg.Retry, githost.Classify, o.tokens.Invalidate, func(ctx context.Context) error {
		if waitErr := o.limiters.WaitHost(ctx); waitErr != nil {
			return waitErr
		}
		var diffErr error
		blob, diffErr = o.host.GetUnifiedDiff(ctx, r.Unit)
		return diffErr
	})
	if err != nil {
		log.WithError(err).Warn("whole-revision diff fallback failed", "files_missing_patch", missing)
		return
	}

	patches, err := diff.SplitUnified([]byte(blob))
	if err != nil {
		log.WithError(err).Warn("whole-revision diff unparseable")
		return
	}

	byPath := make(map[string]string, len(patches))
	for _, p := range patches {
		byPath[p.Path] = p.Patch
	}

	filled := 0
	for i := range files {
		if files[i].Patch != "" || files[i].Additions+files[i].Deletions == 0 {
			continue
		}
		if patch, ok := byPath[files[i].Path]; ok {
			files[i].Patch = patch
			filled++
		}
	}
	if filled > 0 {
		r.note("%d file(s) recovered from the whole-revision diff", filled)
	}
	log.Debug("filled missing patches", "missing", missing, "filled", filled)
}

// filter applies exclusions and caps before any parsing happens.
func (o *Orchestrator) filter(ctx context.Context, r *ReviewRun) error {
	if err := r.transition(ctx, StateFiltering); err != nil {
		return err
	}
	log := util.Log(ctx)

	kept := r.Files[:0]
	skipped := 0
	for _, fd := range r.Files {
		if o.excluded(fd.Path) {
			skipped++
			continue
		}
		kept = append(kept, fd)
	}
	if skipped > 0 {
		r.note("%d file(s) excluded by path filters.", skipped)
	}

	if len(kept) > o.cfg.MaxFilesPerRun {
		r.note("%d file(s) beyond the %d-file cap were not reviewed.",
			len(kept)-o.cfg.MaxFilesPerRun, o.cfg.MaxFilesPerRun)
		kept = kept[:o.cfg.MaxFilesPerRun]
	}

	total := 0
	for _, fd := range kept {
		total += patchLines(fd.Patch)
	}
	if total > o.cfg.MaxTotalLines {
		if !o.cfg.BestEffortPartial {
			log.Info("diff too large, skipping run", "lines", total, "cap", o.cfg.MaxTotalLines)
			r.finish(ctx, StateSkipped, ReasonDiffTooLarge)
			return nil
		}
		budget := o.cfg.MaxTotalLines
		partial := kept[:0]
		for _, fd := range kept {
			n := patchLines(fd.Patch)
			if n > budget {
				break
			}
			budget -= n
			partial = append(partial, fd)
		}
		if len(partial) == 0 {
			log.Info("diff too large, no file fits the budget", "lines", total, "cap", o.cfg.MaxTotalLines)
			r.finish(ctx, StateSkipped, ReasonDiffTooLarge)
			return nil
		}
		r.note("Change exceeds the %d-line budget; only the first %d file(s) were reviewed.",
			o.cfg.MaxTotalLines, len(partial))
		kept = partial
	}

	if len(kept) == 0 {
		r.finish(ctx, StateSkipped, ReasonNothingToReview)
		return nil
	}

	r.Files = kept
	return nil
}

// parse runs the diff parser per file. One malformed file is excluded,
// not fatal to the run.
func (o *Orchestrator) parse(ctx context.Context, r *ReviewRun) error {
	if err := r.transition(ctx, StateParsing); err != nil {
		return err
	}
	log := util.Log(ctx)

	parsed := r.Files[:0]
	malformed := 0
	for _, fd := range r.Files {
		p, err := o.parser.Parse(fd.Path, fd.Change, fd.Patch)
		if err != nil {
			malformed++
			log.WithError(err).Warn("malformed file diff excluded", "file", fd.Path)
			continue
		}
		parsed = append(parsed, p)
	}
	if malformed > 0 {
		r.note("%d file(s) with unparseable diffs were not reviewed.", malformed)
	}

	if len(parsed) == 0 {
		r.finish(ctx, StateSkipped, ReasonNothingToReview)
		return nil
	}

	r.Files = parsed
	return nil
}

// review runs the prompt/complete/validate round trip.
func (o *Orchestrator) review(ctx context.Context, r *ReviewRun) error {
	if err := r.transition(ctx, StatePrompting); err != nil {
		return err
	}
	if err := r.transition(ctx, StateValidating); err != nil {
		return err
	}

	result, err := o.engine.Review(ctx, r.Title, r.Descr, r.Files)
	if err != nil {
		r.Reason = ReasonCompletionFailed
		return fmt.Errorf("review completion: %w", err)
	}
	r.Result = result
	return nil
}

// reconcileFindings binds findings to diff positions. Pure logic.
func (o *Orchestrator) reconcileFindings(ctx context.Context, r *ReviewRun) error {
	if err := r.transition(ctx, StateReconciling); err != nil {
		return err
	}

	indexes := make(map[string]*diff.PositionIndex, len(r.Files))
	for _, fd := range r.Files {
		indexes[fd.Path] = diff.NewPositionIndex(fd, diff.IndexConfig{
			CommentableRadius: o.cfg.CommentableRadius,
		})
	}

	r.Comments, r.Dropped = o.reconciler.Reconcile(r.Result.Findings, indexes)
	for _, d := range r.Dropped {
		util.Log(ctx).Info("finding dropped",
			"file", d.Finding.File,
			"line", d.Finding.Line,
			"reason", d.Reason,
		)
	}
	return nil
}

// emit posts the review. Non-idempotent: retried only for failures
// known to have left nothing behind.
func (o *Orchestrator) emit(ctx context.Context, r *ReviewRun) error {
	if err := r.transition(ctx, StateEmitting); err != nil {
		return err
	}

	review := githost.Review{
		Revision: r.Revision,
		Body:     o.reviewBody(r),
		Event:    reviewEvent(r.Result.Disposition),
		Comments: make([]githost.InlineComment, 0, len(r.Comments)),
	}
	for _, c := range r.Comments {
		review.Comments = append(review.Comments, githost.InlineComment{
			Path:     c.Path,
			Position: c.Position,
			Body:     commentBody(c),
		})
	}

	err := WithRetry(ctx, o.cfg.Retry, githost.ClassifyPost, o.tokens.Invalidate, func(ctx context.Context) error {
		if waitErr := o.limiters.WaitHost(ctx); waitErr != nil {
			return waitErr
		}
		return o.host.CreateReview(ctx, r.Unit, review)
	})
	if err != nil {
		r.Reason = ReasonEmitFailed
		return fmt.Errorf("emit review: %w", err)
	}

	r.finish(ctx, StateCompleted, "")
	return nil
}

// postNotice posts a minimal explanatory comment for skipped and
// failed runs. Best effort: a failure here is only logged.
func (o *Orchestrator) postNotice(ctx context.Context, r *ReviewRun) {
	body := noticeBody(r)
	if body == "" {
		return
	}

	// The run context may already be past its deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := o.limiters.WaitHost(ctx); err != nil {
		return
	}
	if err := o.host.PostComment(ctx, r.Unit, body); err != nil {
		util.Log(ctx).WithError(err).Warn("explanatory comment not posted")
	}
}

func (o *Orchestrator) excluded(p string) bool {
	for _, ext := range o.cfg.SkipExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	for _, glob := range o.cfg.SkipPathGlobs {
		if ok, _ := path.Match(glob, p); ok {
			return true
		}
	}
	return false
}

// reviewBody assembles the summary plus any filtering notes.
func (o *Orchestrator) reviewBody(r *ReviewRun) string {
	var b strings.Builder
	b.WriteString(r.Result.Summary)

	if n := len(r.Dropped); n > 0 {
		fmt.Fprintf(&b, "\n\n%d finding(s) could not be anchored to the diff and were omitted.", n)
	}
	for _, note := range r.notes {
		b.WriteString("\n\n")
		b.WriteString(note)
	}
	return b.String()
}

func reviewEvent(d engine.Disposition) githost.ReviewEvent {
	switch d {
	case engine.DispositionRequestChanges:
		return githost.EventRequestChanges
	case engine.DispositionApprove:
		return githost.EventApprove
	default:
		return githost.EventComment
	}
}

// commentBody renders one inline comment.
func commentBody(c reconcile.Comment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s, %s)\n\n%s",
		c.Finding.Title, c.Finding.Severity, c.Finding.Category, c.Body)
	if c.Finding.Suggestion != "" {
		fmt.Fprintf(&b, "\n\n```suggestion\n%s\n```", c.Finding.Suggestion)
	}
	return b.String()
}

func noticeBody(r *ReviewRun) string {
	switch r.Reason {
	case ReasonDiffTooLarge:
		return "Automated review skipped: the change is too large to analyze as a whole."
	case ReasonNothingToReview, ReasonSuperseded:
		return ""
	case ReasonDeadlineExceeded:
		return "Automated review failed: the run exceeded its deadline."
	case "":
		return ""
	default:
		return fmt.Sprintf("Automated review failed (%s).", r.Reason)
	}
}

func patchLines(patch string) int {
	if patch == "" {
		return 0
	}
	return strings.Count(patch, "\n") + 1
}
