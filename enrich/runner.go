package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"gridfill/grid"
	"gridfill/research"
	"gridfill/stream"
)

// DefaultTimeout is the ceiling on a single run. A run still pending at the
// ceiling is forcibly closed and its outstanding cells abandoned.
const DefaultTimeout = 10 * time.Minute

// ErrBusy is returned when a submission arrives while a run is in flight.
var ErrBusy = errors.New("an enrichment run is already in progress")

// SubmissionError reports that group or run creation failed. No run state is
// created and the caller must not proceed to streaming.
type SubmissionError struct {
	Stage string
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed during %s: %v", e.Stage, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimedOut  Outcome = "timed out"
	OutcomeFailed    Outcome = "failed"
)

// Surface is the grid UI collaborator the core mutates cell state through.
// Calls arrive from the reconciliation loop, strictly serialized.
type Surface interface {
	SetCellValue(row, col int, value string)
	FlashCell(row, col int)
	MarkPending(cells []grid.Coord)
	ClearPending(cells []grid.Coord)
	ReportCounts(success, errors int)
	ReportBusy(busy bool)
	RunEnded(outcome Outcome, elapsed time.Duration)
}

// Runner owns the run lifecycle: it submits batches, drives the single
// reconciliation loop, and guarantees the stream and pending state are torn
// down exactly once per run, whether by completion, cancellation, or
// timeout.
type Runner struct {
	client  *research.Client
	surface Surface
	timeout time.Duration
	log     *log.Logger

	mu     sync.Mutex
	active *activeRun
}

type activeRun struct {
	run       *Run
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

// RunnerOption configures the Runner.
type RunnerOption func(*Runner)

// WithTimeout overrides the run ceiling.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = logger
	}
}

// NewRunner creates a runner bound to a research client and a UI surface.
func NewRunner(client *research.Client, surface Surface, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:  client,
		surface: surface,
		timeout: DefaultTimeout,
		log:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Busy reports whether a run is in flight.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Enrich submits one job per selected row and starts the reconciliation
// loop. It returns the group identifier on success, ErrBusy while a run is
// in flight, or a SubmissionError that left no state behind. The caller's
// context governs submission only; the run itself is bounded by the
// runner's timeout and by Cancel.
func (r *Runner) Enrich(ctx context.Context, g *grid.Grid, sel grid.Selection, proc research.Processor) (string, error) {
	if !proc.Valid() {
		return "", fmt.Errorf("unknown processor tier %q", proc)
	}

	specs := BuildJobSpecs(g, sel)
	if len(specs) == 0 {
		return "", fmt.Errorf("selection contains no data rows")
	}

	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return "", ErrBusy
	}
	// Reserve the slot before the remote call so a second submission is
	// rejected rather than racing.
	reserved := &activeRun{done: make(chan struct{})}
	r.active = reserved
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		r.active = nil
		r.mu.Unlock()
	}

	groupID, runIDs, err := r.submit(ctx, specs, proc)
	if err != nil {
		release()
		return "", err
	}

	table := BuildCorrelation(runIDs, specs)
	cells := sel.Clamp(g).Cells()
	run := newRun(groupID, table, cells)

	runCtx, cancel := context.WithTimeout(context.Background(), r.timeout)

	// Cancel reads the run handle under the lock, so publish it the same way.
	r.mu.Lock()
	reserved.run = run
	reserved.cancel = cancel
	cancelledDuringSubmit := reserved.cancelled
	r.mu.Unlock()

	r.surface.MarkPending(cells)
	r.surface.ReportCounts(0, 0)
	r.surface.ReportBusy(true)

	r.log.Info("run submitted", "group_id", groupID, "jobs", len(specs), "cells", len(cells), "processor", proc)

	go r.loop(runCtx, reserved)

	if cancelledDuringSubmit {
		// A cancel landed while submission was in flight; honor it now that
		// the run handle exists.
		r.Cancel()
	}
	return groupID, nil
}

// submit creates the group and adds all runs in one batched call.
func (r *Runner) submit(ctx context.Context, specs []JobSpec, proc research.Processor) (string, []string, error) {
	groupID, err := r.client.CreateGroup(ctx)
	if err != nil {
		return "", nil, &SubmissionError{Stage: "group creation", Err: err}
	}

	runIDs, err := r.client.AddRuns(ctx, groupID, RunInputs(specs, proc))
	if err != nil {
		return "", nil, &SubmissionError{Stage: "job submission", Err: err}
	}
	return groupID, runIDs, nil
}

// Cancel stops the active run: best-effort remote notification, immediate
// local stream close, pending set cleared. A no-op while idle, safe to call
// again once resolved, and a cancel arriving while submission is still in
// flight is deferred until the run handle exists.
func (r *Runner) Cancel() {
	r.mu.Lock()
	a := r.active
	if a == nil {
		r.mu.Unlock()
		return
	}
	a.cancelled = true
	if a.cancel == nil {
		// Submission still in flight; Enrich picks the flag up once the
		// run handle exists.
		r.mu.Unlock()
		return
	}
	groupID := a.run.GroupID
	r.mu.Unlock()

	// The remote jobs keep running server-side; only local listening stops.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.client.CancelGroup(ctx, groupID); err != nil {
			r.log.Warn("remote cancel failed", "group_id", groupID, "err", err)
		}
	}()

	a.cancel()
}

// Wait blocks until the active run (if any) has fully released its state.
func (r *Runner) Wait() {
	r.mu.Lock()
	a := r.active
	r.mu.Unlock()
	if a == nil {
		return
	}
	<-a.done
}

// loop is the single reconciliation loop: it consumes the group's prepared
// event stream strictly in arrival order and applies each event. The
// context carries both the timeout ceiling and cancellation; closing the
// stream is what stops further frame delivery.
func (r *Runner) loop(ctx context.Context, a *activeRun) {
	defer close(a.done)

	body, err := r.client.OpenEvents(ctx, a.run.GroupID)
	if err != nil {
		r.log.Error("failed to open event stream", "group_id", a.run.GroupID, "err", err)
		r.finalize(a, r.terminalOutcome(ctx, a))
		return
	}

	src := stream.NewSource(body, r.client, r.log)
	defer src.Close()

	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if err == io.EOF {
				r.finalize(a, OutcomeCompleted)
				return
			}
			r.finalize(a, r.terminalOutcome(ctx, a))
			return
		}
		if done := a.run.apply(ev, r.surface, r.log); done {
			r.finalize(a, OutcomeCompleted)
			return
		}
	}
}

// terminalOutcome classifies an abnormal loop exit.
func (r *Runner) terminalOutcome(ctx context.Context, a *activeRun) Outcome {
	r.mu.Lock()
	cancelled := a.cancelled
	r.mu.Unlock()
	if cancelled {
		return OutcomeCancelled
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return OutcomeTimedOut
	}
	return OutcomeFailed
}

// finalize tears the run down exactly once: residual pending cells cleared,
// busy flag dropped, elapsed time recorded. Called only from the loop, so
// the three termination paths are mutually exclusive by construction;
// releasing the context also disarms the timeout.
func (r *Runner) finalize(a *activeRun, outcome Outcome) {
	elapsed := time.Since(a.run.Started)

	if remaining := a.run.drainPending(); len(remaining) > 0 {
		r.surface.ClearPending(remaining)
	}

	if outcome == OutcomeCancelled {
		// Cancellation discards counts.
		r.surface.ReportCounts(0, 0)
	} else {
		r.surface.ReportCounts(a.run.Success, a.run.Errors)
	}
	r.surface.ReportBusy(false)
	r.surface.RunEnded(outcome, elapsed)

	a.cancel()

	r.log.Info("run ended", "group_id", a.run.GroupID, "outcome", outcome,
		"success", a.run.Success, "errors", a.run.Errors, "elapsed", elapsed)

	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()
}
